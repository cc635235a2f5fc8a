package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/parley-sh/parley/internal/store"
)

const composeFile = "docker-compose.yml"

// composeTemplate is the per-tenant stack. The agent container embeds the
// client that calls back into the convergence API.
const composeTemplate = `services:
  agent:
    image: parley/sandbox-agent:latest
    restart: unless-stopped
    environment:
      PARLEY_SANDBOX_ID: "{{ .ID }}"
      PARLEY_ORG_ID: "{{ .OrgID }}"
      PARLEY_SANDBOX_NAME: "{{ .Name }}"
      PARLEY_CALLBACK_URL: "{{ .CallbackURL }}"
      PARLEY_API_TOKEN: "{{ .APIToken }}"
    networks:
      - sandbox
networks:
  sandbox:
    driver: bridge
`

var composeTmpl = template.Must(template.New("compose").Parse(composeTemplate))

type composeParams struct {
	ID          string
	OrgID       string
	Name        string
	CallbackURL string
	APIToken    string
}

func (m *Manager) renderCompose(dir string, sb store.Sandbox) error {
	f, err := os.Create(filepath.Join(dir, composeFile))
	if err != nil {
		return fmt.Errorf("create compose file: %w", err)
	}
	defer f.Close()

	params := composeParams{
		ID:          sb.ID.String(),
		OrgID:       sb.OrgID.String(),
		Name:        sb.Name,
		CallbackURL: m.callbackURL,
		APIToken:    m.apiToken,
	}
	if err := composeTmpl.Execute(f, params); err != nil {
		return fmt.Errorf("render compose file: %w", err)
	}
	return nil
}

// ComposeRunner shells out to docker compose for the rendered stack.
type ComposeRunner struct{}

func (ComposeRunner) Up(ctx context.Context, dir string) error {
	return runCompose(ctx, dir, "up", "-d")
}

func (ComposeRunner) Down(ctx context.Context, dir string) error {
	return runCompose(ctx, dir, "down", "--volumes")
}

func runCompose(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", append([]string{"compose"}, args...)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker compose %s: %w: %s", args[0], err, out)
	}
	return nil
}

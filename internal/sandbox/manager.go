package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/parley-sh/parley/internal/events"
	"github.com/parley-sh/parley/internal/store"
)

// Runner starts and stops a rendered sandbox stack.
type Runner interface {
	Up(ctx context.Context, dir string) error
	Down(ctx context.Context, dir string) error
}

// Registry is the persisted sandbox lifecycle, backed by the store.
type Registry interface {
	CreateSandbox(ctx context.Context, sb store.Sandbox) error
	SandboxByID(ctx context.Context, id uuid.UUID) (*store.Sandbox, error)
	ListSandboxes(ctx context.Context, orgID uuid.UUID) ([]store.Sandbox, error)
	UpdateSandboxStatus(ctx context.Context, id uuid.UUID, status string) error
	TouchSandbox(ctx context.Context, id uuid.UUID) error
}

// Publisher announces lifecycle transitions on the event bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// Manager provisions per-tenant sandboxes: it renders a compose file, starts
// the stack, and tracks the lifecycle in the registry. Each sandbox embeds a
// client that calls back into the convergence API at CallbackURL.
type Manager struct {
	registry    Registry
	runner      Runner
	publisher   Publisher
	dataDir     string
	callbackURL string
	apiToken    string
	logger      *slog.Logger
}

func NewManager(registry Registry, runner Runner, publisher Publisher, dataDir, callbackURL, apiToken string, logger *slog.Logger) *Manager {
	return &Manager{
		registry:    registry,
		runner:      runner,
		publisher:   publisher,
		dataDir:     dataDir,
		callbackURL: callbackURL,
		apiToken:    apiToken,
		logger:      logger,
	}
}

// Spawn provisions a new sandbox for an organization.
func (m *Manager) Spawn(ctx context.Context, orgID uuid.UUID, name string) (*store.Sandbox, error) {
	sb := store.Sandbox{
		ID:     uuid.New(),
		OrgID:  orgID,
		Name:   name,
		Status: store.SandboxStarting,
	}

	dir := m.sandboxDir(sb.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	if err := m.renderCompose(dir, sb); err != nil {
		return nil, err
	}

	if err := m.registry.CreateSandbox(ctx, sb); err != nil {
		return nil, fmt.Errorf("record sandbox: %w", err)
	}

	if err := m.runner.Up(ctx, dir); err != nil {
		if updateErr := m.registry.UpdateSandboxStatus(ctx, sb.ID, store.SandboxUnhealthy); updateErr != nil {
			m.logger.Error("failed to mark sandbox unhealthy", "sandbox_id", sb.ID, "error", updateErr)
		}
		return nil, fmt.Errorf("start sandbox: %w", err)
	}

	m.announce(events.SubjectSandboxSpawned, sb)
	m.logger.Info("sandbox spawned", "sandbox_id", sb.ID, "org_id", orgID, "name", name)
	return &sb, nil
}

// Status reads a sandbox's lifecycle row. Returns (nil, nil) when unknown.
func (m *Manager) Status(ctx context.Context, id uuid.UUID) (*store.Sandbox, error) {
	return m.registry.SandboxByID(ctx, id)
}

// List returns the organization's live sandboxes.
func (m *Manager) List(ctx context.Context, orgID uuid.UUID) ([]store.Sandbox, error) {
	return m.registry.ListSandboxes(ctx, orgID)
}

// Destroy tears a sandbox down and marks it destroyed. The row is kept for
// audit; the rendered directory is removed.
func (m *Manager) Destroy(ctx context.Context, id uuid.UUID) error {
	sb, err := m.registry.SandboxByID(ctx, id)
	if err != nil {
		return err
	}
	if sb == nil {
		return fmt.Errorf("unknown sandbox %s", id)
	}

	dir := m.sandboxDir(id)
	if err := m.runner.Down(ctx, dir); err != nil {
		return fmt.Errorf("stop sandbox: %w", err)
	}
	if err := m.registry.UpdateSandboxStatus(ctx, id, store.SandboxDestroyed); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("failed to remove sandbox dir", "sandbox_id", id, "error", err)
	}

	sb.Status = store.SandboxDestroyed
	m.announce(events.SubjectSandboxDestroyed, *sb)
	m.logger.Info("sandbox destroyed", "sandbox_id", id)
	return nil
}

// HandleHeartbeat is the NATS handler for parley.sandbox.heartbeat.
func (m *Manager) HandleHeartbeat(subject string, data []byte) {
	ctx := context.Background()

	var hb events.Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		m.logger.Error("failed to parse heartbeat", "error", err)
		return
	}
	id, err := uuid.Parse(hb.SandboxID)
	if err != nil {
		m.logger.Error("invalid sandbox id in heartbeat", "sandbox_id", hb.SandboxID, "error", err)
		return
	}
	if err := m.registry.TouchSandbox(ctx, id); err != nil {
		m.logger.Error("failed to record heartbeat", "sandbox_id", id, "error", err)
	}
}

func (m *Manager) sandboxDir(id uuid.UUID) string {
	return filepath.Join(m.dataDir, id.String())
}

func (m *Manager) announce(subject string, sb store.Sandbox) {
	if m.publisher == nil {
		return
	}
	evt := events.SandboxLifecycle{
		SandboxID: sb.ID.String(),
		OrgID:     sb.OrgID.String(),
		Name:      sb.Name,
		Status:    sb.Status,
	}
	if err := m.publisher.Publish(subject, evt); err != nil {
		m.logger.Warn("failed to publish sandbox event", "subject", subject, "error", err)
	}
}

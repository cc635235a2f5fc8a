package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/parley-sh/parley/internal/events"
	"github.com/parley-sh/parley/internal/store"
)

type fakeRegistry struct {
	rows      map[uuid.UUID]*store.Sandbox
	touched   []uuid.UUID
	createErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{rows: make(map[uuid.UUID]*store.Sandbox)}
}

func (r *fakeRegistry) CreateSandbox(_ context.Context, sb store.Sandbox) error {
	if r.createErr != nil {
		return r.createErr
	}
	copied := sb
	r.rows[sb.ID] = &copied
	return nil
}

func (r *fakeRegistry) SandboxByID(_ context.Context, id uuid.UUID) (*store.Sandbox, error) {
	return r.rows[id], nil
}

func (r *fakeRegistry) ListSandboxes(_ context.Context, orgID uuid.UUID) ([]store.Sandbox, error) {
	var out []store.Sandbox
	for _, sb := range r.rows {
		if sb.OrgID == orgID && sb.Status != store.SandboxDestroyed {
			out = append(out, *sb)
		}
	}
	return out, nil
}

func (r *fakeRegistry) UpdateSandboxStatus(_ context.Context, id uuid.UUID, status string) error {
	if sb, ok := r.rows[id]; ok {
		sb.Status = status
	}
	return nil
}

func (r *fakeRegistry) TouchSandbox(_ context.Context, id uuid.UUID) error {
	r.touched = append(r.touched, id)
	return nil
}

type fakeRunner struct {
	upDirs   []string
	downDirs []string
	upErr    error
}

func (r *fakeRunner) Up(_ context.Context, dir string) error {
	if r.upErr != nil {
		return r.upErr
	}
	r.upDirs = append(r.upDirs, dir)
	return nil
}

func (r *fakeRunner) Down(_ context.Context, dir string) error {
	r.downDirs = append(r.downDirs, dir)
	return nil
}

type fakePublisher struct {
	published []string
}

func (p *fakePublisher) Publish(subject string, _ any) error {
	p.published = append(p.published, subject)
	return nil
}

func newTestManager(t *testing.T, registry Registry, runner Runner, pub Publisher) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(registry, runner, pub, t.TempDir(), "http://parley:8780", "secret-token", logger)
}

func TestSpawn(t *testing.T) {
	registry := newFakeRegistry()
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	m := newTestManager(t, registry, runner, pub)
	orgID := uuid.New()

	sb, err := m.Spawn(context.Background(), orgID, "research-env")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sb.Status != store.SandboxStarting {
		t.Errorf("expected status starting, got %q", sb.Status)
	}
	if registry.rows[sb.ID] == nil {
		t.Fatal("sandbox not recorded in registry")
	}
	if len(runner.upDirs) != 1 {
		t.Fatalf("expected one compose up, got %d", len(runner.upDirs))
	}

	raw, err := os.ReadFile(filepath.Join(runner.upDirs[0], composeFile))
	if err != nil {
		t.Fatalf("compose file not rendered: %v", err)
	}
	rendered := string(raw)
	for _, want := range []string{sb.ID.String(), orgID.String(), "research-env", "http://parley:8780", "secret-token"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("compose file missing %q", want)
		}
	}

	if len(pub.published) != 1 || pub.published[0] != events.SubjectSandboxSpawned {
		t.Errorf("expected spawned event, got %v", pub.published)
	}
}

func TestSpawn_RunnerFailureMarksUnhealthy(t *testing.T) {
	registry := newFakeRegistry()
	runner := &fakeRunner{upErr: errors.New("docker not running")}
	m := newTestManager(t, registry, runner, &fakePublisher{})

	_, err := m.Spawn(context.Background(), uuid.New(), "broken")
	if err == nil {
		t.Fatal("expected error when runner fails")
	}
	for _, sb := range registry.rows {
		if sb.Status != store.SandboxUnhealthy {
			t.Errorf("expected unhealthy status, got %q", sb.Status)
		}
	}
}

func TestDestroy(t *testing.T) {
	registry := newFakeRegistry()
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	m := newTestManager(t, registry, runner, pub)

	sb, err := m.Spawn(context.Background(), uuid.New(), "short-lived")
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	if err := m.Destroy(context.Background(), sb.ID); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}

	if registry.rows[sb.ID].Status != store.SandboxDestroyed {
		t.Errorf("expected destroyed status, got %q", registry.rows[sb.ID].Status)
	}
	if len(runner.downDirs) != 1 {
		t.Errorf("expected one compose down, got %d", len(runner.downDirs))
	}
	if _, err := os.Stat(runner.upDirs[0]); !os.IsNotExist(err) {
		t.Error("sandbox dir should be removed after destroy")
	}
	if pub.published[len(pub.published)-1] != events.SubjectSandboxDestroyed {
		t.Errorf("expected destroyed event, got %v", pub.published)
	}
}

func TestDestroy_UnknownSandbox(t *testing.T) {
	m := newTestManager(t, newFakeRegistry(), &fakeRunner{}, &fakePublisher{})
	if err := m.Destroy(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error for unknown sandbox")
	}
}

func TestHandleHeartbeat(t *testing.T) {
	registry := newFakeRegistry()
	m := newTestManager(t, registry, &fakeRunner{}, &fakePublisher{})

	id := uuid.New()
	payload, _ := json.Marshal(events.Heartbeat{SandboxID: id.String()})
	m.HandleHeartbeat(events.SubjectSandboxHeartbeat, payload)

	if len(registry.touched) != 1 || registry.touched[0] != id {
		t.Errorf("expected heartbeat to touch %s, got %v", id, registry.touched)
	}
}

func TestHandleHeartbeat_BadPayloadIgnored(t *testing.T) {
	registry := newFakeRegistry()
	m := newTestManager(t, registry, &fakeRunner{}, &fakePublisher{})

	m.HandleHeartbeat(events.SubjectSandboxHeartbeat, []byte("not json"))
	m.HandleHeartbeat(events.SubjectSandboxHeartbeat, []byte(`{"sandbox_id":"not-a-uuid"}`))

	if len(registry.touched) != 0 {
		t.Errorf("malformed heartbeats must not touch rows, got %v", registry.touched)
	}
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sandbox lifecycle statuses.
const (
	SandboxStarting  = "starting"
	SandboxRunning   = "running"
	SandboxUnhealthy = "unhealthy"
	SandboxDestroyed = "destroyed"
)

// Sandbox is one tenant's provisioned container environment.
type Sandbox struct {
	ID        uuid.UUID  `json:"id"`
	OrgID     uuid.UUID  `json:"org_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// CreateSandbox records a newly provisioned sandbox in status "starting".
func (s *Store) CreateSandbox(ctx context.Context, sb Sandbox) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sandboxes (id, org_id, name, status, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		sb.ID, sb.OrgID, sb.Name, sb.Status,
	)
	if err != nil {
		return fmt.Errorf("insert sandbox: %w", err)
	}
	return nil
}

// SandboxByID reads one sandbox row. Returns (nil, nil) when absent.
func (s *Store) SandboxByID(ctx context.Context, id uuid.UUID) (*Sandbox, error) {
	sb := &Sandbox{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, name, status, created_at, last_seen
		FROM sandboxes WHERE id = $1`,
		id,
	).Scan(&sb.ID, &sb.OrgID, &sb.Name, &sb.Status, &sb.CreatedAt, &sb.LastSeen)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select sandbox: %w", err)
	}
	return sb, nil
}

// ListSandboxes returns all non-destroyed sandboxes for an organization.
func (s *Store) ListSandboxes(ctx context.Context, orgID uuid.UUID) ([]Sandbox, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, name, status, created_at, last_seen
		FROM sandboxes WHERE org_id = $1 AND status != $2
		ORDER BY created_at`,
		orgID, SandboxDestroyed,
	)
	if err != nil {
		return nil, fmt.Errorf("select sandboxes: %w", err)
	}
	defer rows.Close()

	var out []Sandbox
	for rows.Next() {
		var sb Sandbox
		if err := rows.Scan(&sb.ID, &sb.OrgID, &sb.Name, &sb.Status, &sb.CreatedAt, &sb.LastSeen); err != nil {
			return nil, fmt.Errorf("scan sandbox: %w", err)
		}
		out = append(out, sb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sandboxes: %w", err)
	}
	return out, nil
}

// UpdateSandboxStatus moves a sandbox through its lifecycle.
func (s *Store) UpdateSandboxStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sandboxes SET status = $1 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update sandbox status: %w", err)
	}
	return nil
}

// TouchSandbox records a heartbeat and marks the sandbox running.
func (s *Store) TouchSandbox(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sandboxes SET last_seen = now(), status = $1
		WHERE id = $2 AND status != $3`,
		SandboxRunning, id, SandboxDestroyed,
	)
	if err != nil {
		return fmt.Errorf("touch sandbox: %w", err)
	}
	return nil
}

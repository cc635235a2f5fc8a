package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/parley-sh/parley/internal/llm"
)

// RecordUsage accumulates token and cost totals for an organization.
func (s *Store) RecordUsage(ctx context.Context, orgID uuid.UUID, tokens llm.Usage, cost float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO org_usage (org_id, prompt_tokens, completion_tokens, total_tokens, estimated_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (org_id) DO UPDATE SET
			prompt_tokens = org_usage.prompt_tokens + EXCLUDED.prompt_tokens,
			completion_tokens = org_usage.completion_tokens + EXCLUDED.completion_tokens,
			total_tokens = org_usage.total_tokens + EXCLUDED.total_tokens,
			estimated_cost = org_usage.estimated_cost + EXCLUDED.estimated_cost,
			updated_at = now()`,
		orgID, tokens.PromptTokens, tokens.CompletionTokens, tokens.TotalTokens, cost,
	)
	if err != nil {
		return fmt.Errorf("upsert usage: %w", err)
	}
	return nil
}

// OrgUsage is the accumulated usage row for one organization.
type OrgUsage struct {
	OrgID            uuid.UUID `json:"org_id"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	EstimatedCost    float64   `json:"estimated_cost"`
}

// GetUsage reads the accumulated usage for an organization. A missing row
// reads back as zero usage.
func (s *Store) GetUsage(ctx context.Context, orgID uuid.UUID) (*OrgUsage, error) {
	u := &OrgUsage{OrgID: orgID}
	err := s.pool.QueryRow(ctx, `
		SELECT prompt_tokens, completion_tokens, total_tokens, estimated_cost
		FROM org_usage WHERE org_id = $1`,
		orgID,
	).Scan(&u.PromptTokens, &u.CompletionTokens, &u.TotalTokens, &u.EstimatedCost)
	if err != nil {
		if isNoRows(err) {
			return u, nil
		}
		return nil, fmt.Errorf("select usage: %w", err)
	}
	return u, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/parley-sh/parley/internal/convergence"
)

// SaveSession persists a completed convergence session and its turn history.
// Tables: sessions, session_turns. The session is keyed by the caller's
// opaque task identifier.
func (s *Store) SaveSession(ctx context.Context, taskID string, orgID uuid.UUID, session *convergence.Session) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	configJSON, err := json.Marshal(session.Config)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal config: %w", err)
	}
	finalReplyJSON, err := json.Marshal(session.FinalReply)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal final reply: %w", err)
	}

	sessionID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, task_id, org_id, original_query, config, converged, convergence_score,
			iterations, prompt_tokens, completion_tokens, total_tokens, estimated_cost, final_reply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())`,
		sessionID, taskID, orgID, session.OriginalQuery, configJSON, session.Converged, session.ConvergenceScore,
		session.Iterations, session.CumulativeTokens.PromptTokens, session.CumulativeTokens.CompletionTokens,
		session.CumulativeTokens.TotalTokens, session.EstimatedCost, finalReplyJSON,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert session: %w", err)
	}

	for _, turn := range session.Turns {
		replyJSON, err := json.Marshal(turn.Reply)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal turn reply: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO session_turns (id, session_id, iteration_index, party, party_role, reply)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), sessionID, turn.IterationIndex, string(turn.Party), turn.PartyRole, replyJSON,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert turn: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	return sessionID, nil
}

// SessionRecord is a persisted session read back for API consumers.
type SessionRecord struct {
	ID      uuid.UUID           `json:"id"`
	TaskID  string              `json:"task_id"`
	OrgID   uuid.UUID           `json:"org_id"`
	Session convergence.Session `json:"session"`
}

// GetSession reads a persisted session with its full turn history.
func (s *Store) GetSession(ctx context.Context, taskID string) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var configJSON, finalReplyJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, task_id, org_id, original_query, config, converged, convergence_score,
			iterations, prompt_tokens, completion_tokens, total_tokens, estimated_cost, final_reply
		FROM sessions WHERE task_id = $1`,
		taskID,
	).Scan(&rec.ID, &rec.TaskID, &rec.OrgID, &rec.Session.OriginalQuery, &configJSON, &rec.Session.Converged,
		&rec.Session.ConvergenceScore, &rec.Session.Iterations, &rec.Session.CumulativeTokens.PromptTokens,
		&rec.Session.CumulativeTokens.CompletionTokens, &rec.Session.CumulativeTokens.TotalTokens,
		&rec.Session.EstimatedCost, &finalReplyJSON)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	if err := json.Unmarshal(configJSON, &rec.Session.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal(finalReplyJSON, &rec.Session.FinalReply); err != nil {
		return nil, fmt.Errorf("unmarshal final reply: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT iteration_index, party, party_role, reply
		FROM session_turns WHERE session_id = $1
		ORDER BY iteration_index, CASE party WHEN 'A' THEN 0 ELSE 1 END`,
		rec.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turn convergence.Turn
		var party string
		var replyJSON []byte
		if err := rows.Scan(&turn.IterationIndex, &party, &turn.PartyRole, &replyJSON); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Party = convergence.Party(party)
		if err := json.Unmarshal(replyJSON, &turn.Reply); err != nil {
			return nil, fmt.Errorf("unmarshal turn reply: %w", err)
		}
		rec.Session.Turns = append(rec.Session.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	return rec, nil
}

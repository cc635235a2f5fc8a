package convergence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/parley-sh/parley/internal/llm"
)

// TurnService is the external language-model collaborator.
type TurnService interface {
	Complete(ctx context.Context, r llm.Request) (*llm.Completion, error)
}

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second

	turnMaxTokens = 4096
)

// Executor runs a single dialogue turn: it assembles the outbound request,
// retries transient failures with exponential backoff, and validates the
// reply against the structural contract.
type Executor struct {
	svc        TurnService
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewExecutor(svc TurnService, logger *slog.Logger) *Executor {
	return &Executor{
		svc:        svc,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     logger,
	}
}

// SetRetryPolicy overrides the retry bound and initial backoff delay.
func (e *Executor) SetRetryPolicy(maxRetries int, retryDelay time.Duration) {
	e.maxRetries = maxRetries
	e.retryDelay = retryDelay
}

// ExecuteTurn performs one call to the turn service. payload, when non-nil,
// is serialized and appended to the user content as structured context.
func (e *Executor) ExecuteTurn(ctx context.Context, role, prompt string, payload any, cfg Config) (Reply, error) {
	user := prompt
	if payload != nil {
		ctxJSON, err := json.Marshal(payload)
		if err != nil {
			return Reply{}, fmt.Errorf("marshal context payload: %w", err)
		}
		user = prompt + "\n\nContext:\n" + string(ctxJSON)
	}

	req := llm.Request{
		System:      systemPrompt(role),
		User:        user,
		Model:       cfg.ModelIdentifier,
		Temperature: cfg.Temperature,
		MaxTokens:   turnMaxTokens,
	}

	comp, err := e.completeWithRetry(ctx, req)
	if err != nil {
		return Reply{}, err
	}

	reply, err := decodeReply(comp.Text)
	if err != nil {
		return Reply{}, err
	}
	reply.TokensUsed = comp.Usage
	return reply, nil
}

func (e *Executor) completeWithRetry(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	delay := e.retryDelay
	var lastErr error
	for attempt := 0; ; attempt++ {
		comp, err := e.svc.Complete(ctx, req)
		if err == nil {
			return comp, nil
		}
		if !transient(err) {
			return nil, err
		}
		lastErr = err
		if attempt >= e.maxRetries {
			break
		}
		e.logger.Warn("transient turn failure, backing off",
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("retries exhausted after %d attempts: %w", e.maxRetries+1, lastErr)
}

// transient classifies a turn-service failure. Rate limits and server errors
// are retryable, as are transport-level failures; everything else fails the
// turn immediately.
func transient(err error) bool {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wireReply uses pointer fields so a missing key is distinguishable from a
// zero value; any missing or mistyped field is a ContractViolation.
type wireReply struct {
	Text           *string   `json:"text"`
	ShouldContinue *bool     `json:"should_continue"`
	OpenGaps       *[]string `json:"open_gaps"`
	Confidence     *int      `json:"confidence"`
}

func decodeReply(raw string) (Reply, error) {
	var w wireReply
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Reply{}, &ContractViolation{Reason: fmt.Sprintf("reply is not a valid JSON object: %v", err)}
	}
	if w.Text == nil || *w.Text == "" {
		return Reply{}, &ContractViolation{Reason: "text missing or empty"}
	}
	if w.ShouldContinue == nil {
		return Reply{}, &ContractViolation{Reason: "should_continue missing"}
	}
	if w.OpenGaps == nil {
		return Reply{}, &ContractViolation{Reason: "open_gaps missing"}
	}
	if w.Confidence == nil {
		return Reply{}, &ContractViolation{Reason: "confidence missing"}
	}
	return Reply{
		Text:           *w.Text,
		ShouldContinue: *w.ShouldContinue,
		OpenGaps:       *w.OpenGaps,
		Confidence:     *w.Confidence,
	}, nil
}

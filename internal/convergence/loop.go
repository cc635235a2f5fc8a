package convergence

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/parley-sh/parley/internal/pricing"
)

// TurnExecutor runs one dialogue turn against the external model.
type TurnExecutor interface {
	ExecuteTurn(ctx context.Context, role, prompt string, payload any, cfg Config) (Reply, error)
}

// Loop alternates the two parties until one of them converges or the
// iteration bound is exhausted. One Run invocation owns one Session; distinct
// runs share no state.
type Loop struct {
	exec    TurnExecutor
	pricing *pricing.Table
	logger  *slog.Logger

	// OnIteration, when set, is called once per completed iteration. Panics
	// inside the observer are logged and swallowed.
	OnIteration func(IterationSnapshot)
}

func NewLoop(exec TurnExecutor, table *pricing.Table, logger *slog.Logger) *Loop {
	return &Loop{exec: exec, pricing: table, logger: logger}
}

// Run drives one full convergence session. On success it returns a fully
// populated Session; on failure it returns a typed error (*ConfigError,
// *TurnFailure or *Cancelled) and no session.
func (l *Loop) Run(ctx context.Context, query string, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := validateRun(query, cfg); err != nil {
		return nil, err
	}

	s := &Session{OriginalQuery: query, Config: cfg}

	for i := 1; i <= cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &Cancelled{Iteration: i, Err: err}
		}

		prompt := query
		var payload any
		if i > 1 {
			prev := s.Turns[len(s.Turns)-1].Reply
			prompt = refinementPrompt(query)
			payload = refinementContext{Critique: prev.Text, OpenGaps: prev.OpenGaps}
		}

		aReply, err := l.turn(ctx, s, PartyA, cfg.PartyARole, prompt, payload, i)
		if err != nil {
			return nil, err
		}
		s.Iterations = i

		if HasConverged(aReply) {
			s.Converged = true
			s.FinalReply = aReply
			s.ConvergenceScore = Score(aReply)
			l.notify(IterationSnapshot{IterationIndex: i, PartyAReply: &aReply, Converged: true})
			return l.finalize(s), nil
		}

		if err := ctx.Err(); err != nil {
			return nil, &Cancelled{Iteration: i, Err: err}
		}

		bReply, err := l.turn(ctx, s, PartyB, cfg.PartyBRole, critiquePrompt(query), critiqueContext{Answer: aReply.Text}, i)
		if err != nil {
			return nil, err
		}

		converged := HasConverged(bReply)
		if converged {
			s.Converged = true
			s.FinalReply = bReply
			s.ConvergenceScore = Score(bReply)
		}
		l.notify(IterationSnapshot{IterationIndex: i, PartyAReply: &aReply, PartyBReply: &bReply, Converged: converged})
		if converged {
			return l.finalize(s), nil
		}
	}

	// Bound exhausted: the final iteration's better reply wins, ties to the
	// later turn (Party B).
	n := len(s.Turns)
	best := s.Turns[n-1].Reply
	if other := s.Turns[n-2].Reply; Score(other) > Score(best) {
		best = other
	}
	s.FinalReply = best
	s.ConvergenceScore = Score(best)
	return l.finalize(s), nil
}

func (l *Loop) turn(ctx context.Context, s *Session, party Party, role, prompt string, payload any, iteration int) (Reply, error) {
	reply, err := l.exec.ExecuteTurn(ctx, role, prompt, payload, s.Config)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Reply{}, &Cancelled{Iteration: iteration, Err: err}
		}
		return Reply{}, &TurnFailure{
			Party:       party,
			Iteration:   iteration,
			TokensSpent: s.CumulativeTokens,
			Err:         err,
		}
	}

	s.Turns = append(s.Turns, Turn{
		IterationIndex: iteration,
		Party:          party,
		PartyRole:      role,
		Reply:          reply,
	})
	s.CumulativeTokens.PromptTokens += reply.TokensUsed.PromptTokens
	s.CumulativeTokens.CompletionTokens += reply.TokensUsed.CompletionTokens
	s.CumulativeTokens.TotalTokens += reply.TokensUsed.TotalTokens

	l.logger.Debug("turn complete",
		"party", string(party),
		"iteration", iteration,
		"score", Score(reply),
		"open_gaps", len(reply.OpenGaps),
	)
	return reply, nil
}

func (l *Loop) notify(snap IterationSnapshot) {
	if l.OnIteration == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("iteration observer panicked", "iteration", snap.IterationIndex, "panic", r)
		}
	}()
	l.OnIteration(snap)
}

func (l *Loop) finalize(s *Session) *Session {
	s.EstimatedCost = l.pricing.EstimateCost(
		s.CumulativeTokens.PromptTokens,
		s.CumulativeTokens.CompletionTokens,
		s.Config.ModelIdentifier,
	)
	l.logger.Info("session finished",
		"converged", s.Converged,
		"iterations", s.Iterations,
		"score", s.ConvergenceScore,
		"total_tokens", s.CumulativeTokens.TotalTokens,
		"estimated_cost", pricing.Display(s.EstimatedCost),
	)
	return s
}

func validateRun(query string, cfg Config) error {
	if strings.TrimSpace(query) == "" {
		return &ConfigError{Field: "query", Reason: "must not be empty"}
	}
	if cfg.MaxIterations < 1 {
		return &ConfigError{Field: "max_iterations", Reason: "must be at least 1"}
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return &ConfigError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	return nil
}

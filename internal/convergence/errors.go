package convergence

import (
	"fmt"

	"github.com/parley-sh/parley/internal/llm"
)

// ConfigError reports an invalid query or config field, detected before any
// external call is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// ContractViolation reports a model reply that failed structural validation.
// It is never retried.
type ContractViolation struct {
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation: %s", e.Reason)
}

// TurnFailure is the terminal failure of a whole run: either a turn exhausted
// its retries or the reply violated the contract. TokensSpent carries the
// cumulative usage accumulated before the failure so callers can account for
// the wasted spend; no partial session is returned.
type TurnFailure struct {
	Party       Party
	Iteration   int
	TokensSpent llm.Usage
	Err         error
}

func (e *TurnFailure) Error() string {
	return fmt.Sprintf("turn failed (party %s, iteration %d): %v", e.Party, e.Iteration, e.Err)
}

func (e *TurnFailure) Unwrap() error { return e.Err }

// Cancelled reports a cooperative abort observed between iterations or before
// a turn. Distinct from TurnFailure; no retry is attempted.
type Cancelled struct {
	Iteration int
	Err       error
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("cancelled at iteration %d: %v", e.Iteration, e.Err)
}

func (e *Cancelled) Unwrap() error { return e.Err }

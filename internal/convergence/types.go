package convergence

import "github.com/parley-sh/parley/internal/llm"

// Party identifies which side of the dialogue produced a turn.
type Party string

const (
	PartyA Party = "A"
	PartyB Party = "B"
)

// Reply is one structured turn from either party, decoded from the model's
// JSON output and validated before it enters the loop.
type Reply struct {
	Text           string    `json:"text"`
	ShouldContinue bool      `json:"should_continue"`
	OpenGaps       []string  `json:"open_gaps"`
	Confidence     int       `json:"confidence"`
	TokensUsed     llm.Usage `json:"tokens_used"`
}

// Turn is a Reply attributed to a party and an iteration. Turns are appended
// to the session history and never mutated afterward.
type Turn struct {
	IterationIndex int    `json:"iteration_index"`
	Party          Party  `json:"party"`
	PartyRole      string `json:"party_role"`
	Reply          Reply  `json:"reply"`
}

// Config is the per-session configuration for one Run invocation.
type Config struct {
	PartyARole      string  `json:"party_a_role"`
	PartyBRole      string  `json:"party_b_role"`
	MaxIterations   int     `json:"max_iterations"`
	Temperature     float64 `json:"temperature"`
	ModelIdentifier string  `json:"model_identifier"`
}

// Defaults for unset Config fields.
const (
	DefaultPartyARole    = "Expert Researcher — comprehensive analysis"
	DefaultPartyBRole    = "Critical Reviewer — finds gaps"
	DefaultMaxIterations = 8
	DefaultTemperature   = 0.3
	DefaultModel         = "claude-sonnet-4-20250514"
)

// WithDefaults fills unset fields. A zero Temperature is treated as unset.
func (c Config) WithDefaults() Config {
	if c.PartyARole == "" {
		c.PartyARole = DefaultPartyARole
	}
	if c.PartyBRole == "" {
		c.PartyBRole = DefaultPartyBRole
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.ModelIdentifier == "" {
		c.ModelIdentifier = DefaultModel
	}
	return c
}

// Session is the accumulated state and final result of one convergence run.
// It is exclusively owned by the loop while running and handed to the caller
// as an immutable result.
type Session struct {
	OriginalQuery    string    `json:"original_query"`
	Config           Config    `json:"config"`
	Turns            []Turn    `json:"turns"`
	CumulativeTokens llm.Usage `json:"cumulative_tokens"`
	Converged        bool      `json:"converged"`
	FinalReply       Reply     `json:"final_reply"`
	ConvergenceScore int       `json:"convergence_score"`
	Iterations       int       `json:"iterations"`
	EstimatedCost    float64   `json:"estimated_cost"`
}

// IterationSnapshot is handed to the OnIteration observer after each
// completed iteration.
type IterationSnapshot struct {
	IterationIndex int
	PartyAReply    *Reply
	PartyBReply    *Reply
	Converged      bool
}

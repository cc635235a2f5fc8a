// Package pricing maps token usage to estimated spend. Rates are currency
// units per 1,000,000 tokens.
package pricing

import "math"

// Rates is the per-model price pair.
type Rates struct {
	Prompt     float64
	Completion float64
}

// Table is an immutable model→rates lookup with a designated fallback for
// unrecognized model identifiers. It is built once at startup and never
// mutated.
type Table struct {
	rates        map[string]Rates
	defaultModel string
}

// NewTable builds a pricing table. The default model must be present in
// rates; unknown lookups fall back to its rates.
func NewTable(rates map[string]Rates, defaultModel string) *Table {
	copied := make(map[string]Rates, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	return &Table{rates: copied, defaultModel: defaultModel}
}

// Default is the standard table for the models this service runs against.
func Default() *Table {
	return NewTable(map[string]Rates{
		"claude-sonnet-4-20250514": {Prompt: 3.0, Completion: 15.0},
		"claude-opus-4-20250514":   {Prompt: 15.0, Completion: 75.0},
		"claude-3-5-haiku-latest":  {Prompt: 0.8, Completion: 4.0},
	}, "claude-sonnet-4-20250514")
}

// EstimateCost returns the full-precision estimated cost for the given token
// counts against the model's rates.
func (t *Table) EstimateCost(promptTokens, completionTokens int, model string) float64 {
	r, ok := t.rates[model]
	if !ok {
		r = t.rates[t.defaultModel]
	}
	return (float64(promptTokens)*r.Prompt + float64(completionTokens)*r.Completion) / 1_000_000
}

// Display rounds a cost to 6 decimal places for presentation. Stored values
// keep full precision.
func Display(cost float64) float64 {
	return math.Round(cost*1e6) / 1e6
}

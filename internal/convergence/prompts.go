package convergence

import "fmt"

const systemFraming = `You are %s, one of two participants in a structured deliberation.

Work the query as far as you can this turn, then report honestly on what remains.

Respond with a single JSON object and nothing else:
{
  "text": "your substantive contribution this turn",
  "should_continue": true if further iteration is needed, false if the work is complete,
  "open_gaps": ["each piece of missing information, one per entry; [] if none"],
  "confidence": 0-100 self-assessment
}

Never wrap the JSON in markdown fences. "text" must not be empty.`

// systemPrompt frames the turn for the active party's role.
func systemPrompt(role string) string {
	return fmt.Sprintf(systemFraming, role)
}

// refinementPrompt is Party-A's instruction for iterations after the first.
// The reviewer's critique and gaps ride along as the turn's context payload.
func refinementPrompt(query string) string {
	return fmt.Sprintf("Original query: %s\n\n"+
		"A reviewer examined your previous answer; their critique and the gaps they identified follow as context. "+
		"Produce a revised answer that addresses each identified gap.", query)
}

// refinementContext carries Party-B's prior turn into Party-A's refinement.
type refinementContext struct {
	Critique string   `json:"critique"`
	OpenGaps []string `json:"open_gaps"`
}

// critiquePrompt is Party-B's instruction. Party-A's answer rides along
// verbatim as the turn's context payload.
func critiquePrompt(query string) string {
	return fmt.Sprintf("Original query: %s\n\n"+
		"Another participant's answer follows as context. Scrutinize it: find missing information, "+
		"unstated assumptions and weak reasoning. List every gap you find in open_gaps. "+
		"If the answer is genuinely complete, say so.", query)
}

// critiqueContext carries Party-A's answer into Party-B's critique.
type critiqueContext struct {
	Answer string `json:"answer"`
}

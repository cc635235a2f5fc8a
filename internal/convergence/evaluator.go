package convergence

// Score computes the rubric score for a reply.
//
// continueComponent: 0 if the party wants another round, 60 once it stops.
// gapComponent: 40 with no open gaps, minus 10 per gap, floored at 0.
// The sum is clamped to [0,100] even though the formula cannot currently
// leave that range.
func Score(r Reply) int {
	continueComponent := 60
	if r.ShouldContinue {
		continueComponent = 0
	}

	gapComponent := 40
	if n := len(r.OpenGaps); n > 0 {
		gapComponent = 40 - 10*n
		if gapComponent < 0 {
			gapComponent = 0
		}
	}

	return clamp(continueComponent + gapComponent)
}

// HasConverged reports whether a reply terminates the dialogue: the party is
// done and names no open gaps. The predicate is independent of Score.
func HasConverged(r Reply) bool {
	return !r.ShouldContinue && len(r.OpenGaps) == 0
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

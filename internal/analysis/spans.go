package analysis

// collectSuspiciousSequences walks the token analyses in position order and
// collects maximal contiguous runs of low-confidence tokens. Runs of length 1
// are discarded: an isolated weak token still counts toward the aggregate
// score, but a cluster is the stronger fabrication signal.
func collectSuspiciousSequences(analyses []TokenAnalysis) []SuspiciousSequence {
	out := []SuspiciousSequence{}
	runStart := -1
	for i := 0; i <= len(analyses); i++ {
		if i < len(analyses) && analyses[i].LowConfidence {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 && i-runStart >= 2 {
			out = append(out, summarizeRun(analyses[runStart:i]))
		}
		runStart = -1
	}
	return out
}

func summarizeRun(run []TokenAnalysis) SuspiciousSequence {
	tokens := make([]string, 0, len(run))
	total := 0.0
	for _, item := range run {
		tokens = append(tokens, item.Token)
		total += item.LogProbability
	}
	return SuspiciousSequence{
		Tokens:        tokens,
		AvgLogprob:    total / float64(len(run)),
		StartPosition: run[0].Position,
		EndPosition:   run[len(run)-1].Position,
	}
}

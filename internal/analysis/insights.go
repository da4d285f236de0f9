package analysis

import "fmt"

// TrendClassifier judges how per-token confidence evolves across a sequence.
// The half-split comparison below is a heuristic, not a contract; it sits
// behind this interface so the banding can be tuned without touching the
// scoring path.
type TrendClassifier interface {
	Classify(analyses []TokenAnalysis) Trend
}

// HalfSplitTrend compares the mean log-probability of the first half of the
// sequence against the second half. Differences within Margin (in nats) are
// treated as noise and reported stable.
type HalfSplitTrend struct {
	Margin float64
}

const defaultTrendMargin = 0.25

func (h HalfSplitTrend) Classify(analyses []TokenAnalysis) Trend {
	margin := h.Margin
	if margin <= 0 {
		margin = defaultTrendMargin
	}
	mid := len(analyses) / 2
	first, second := analyses[:mid], analyses[mid:]
	if len(first) == 0 || len(second) == 0 {
		return TrendStable
	}
	delta := meanLogprob(second) - meanLogprob(first)
	switch {
	case delta < -margin:
		return TrendDeclining
	case delta > margin:
		return TrendImproving
	default:
		return TrendStable
	}
}

func meanLogprob(analyses []TokenAnalysis) float64 {
	total := 0.0
	for _, item := range analyses {
		total += item.LogProbability
	}
	return total / float64(len(analyses))
}

// BuildInsights enriches a report with the weakest token, the confidence
// trend, recommended actions and a technical summary. A nil classifier falls
// back to the default half-split heuristic.
func BuildInsights(report Report, classifier TrendClassifier) Insights {
	if classifier == nil {
		classifier = HalfSplitTrend{}
	}
	return Insights{
		Report:              report,
		MostSuspiciousToken: mostSuspiciousToken(report.TokenAnalyses),
		RecommendedActions:  recommendedActions(report),
		TechnicalSummary:    technicalSummary(report),
		ConfidenceTrend:     classifier.Classify(report.TokenAnalyses),
	}
}

// mostSuspiciousToken returns the token with the minimum log-probability,
// ties broken by earliest position.
func mostSuspiciousToken(analyses []TokenAnalysis) *TokenAnalysis {
	if len(analyses) == 0 {
		return nil
	}
	weakest := analyses[0]
	for _, item := range analyses[1:] {
		if item.LogProbability < weakest.LogProbability {
			weakest = item
		}
	}
	return &weakest
}

func recommendedActions(report Report) []string {
	actions := []string{}
	switch report.Risk {
	case RiskCritical:
		actions = append(actions, "Quarantine this response and require manual review before any downstream use")
	case RiskHigh:
		actions = append(actions, "Route this response for manual review before it reaches end users")
	case RiskMedium:
		actions = append(actions, "Spot-check the flagged tokens against a trusted source")
	default:
		actions = append(actions, "No intervention needed; confidence is within the configured tolerance")
	}
	if len(report.SuspiciousSequences) > 1 {
		actions = append(actions, "Flag the suspicious spans for retraining or prompt adjustment")
	}
	if report.LowConfidenceTokens > 0 && report.Risk != RiskLow {
		actions = append(actions, fmt.Sprintf("Inspect the %d low-confidence token(s) for fabricated names, numbers or citations", report.LowConfidenceTokens))
	}
	return actions
}

func technicalSummary(report Report) string {
	summary := fmt.Sprintf(
		"Sequence of %d tokens scored %.3f normalized log-probability with %d low-confidence token(s); risk classified as %s.",
		report.SequenceLength, report.NormalizedSeqLogprob, report.LowConfidenceTokens, report.Risk)
	if report.Risk == RiskHigh || report.Risk == RiskCritical {
		summary += " Elevated hallucination risk: treat unverified claims in this response as unreliable."
	}
	return summary
}

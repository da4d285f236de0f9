package analysis

import "math"

// Detect scores a token sequence against cfg and returns the full report.
// The probability list must be non-empty and every probability must lie in
// (0, 1]; violations fail the whole call with no partial report.
func Detect(text string, tokens []TokenProbability, cfg Config) (Report, error) {
	return detect(text, tokens, cfg.Normalized(), nil)
}

// DetectWithThreshold is Detect with the hallucination threshold overridden
// for this call only. The low-confidence threshold and ratio still come from
// cfg.
func DetectWithThreshold(text string, tokens []TokenProbability, cfg Config, threshold float64) (Report, error) {
	return detect(text, tokens, cfg.Normalized(), &threshold)
}

func detect(text string, tokens []TokenProbability, cfg Config, override *float64) (Report, error) {
	if len(tokens) == 0 {
		return Report{}, ErrEmptySequence
	}
	for i, tp := range tokens {
		if tp.Probability <= 0 || tp.Probability > 1 {
			return Report{}, &ProbabilityRangeError{Position: i, Value: tp.Probability}
		}
	}

	threshold := cfg.HallucinationThreshold
	if override != nil {
		threshold = *override
	}
	if threshold >= 0 {
		threshold = defaultHallucinationThreshold
	}

	analyses := make([]TokenAnalysis, 0, len(tokens))
	seqLogprob := 0.0
	lowCount := 0
	for _, tp := range tokens {
		lp := math.Log(tp.Probability)
		low := lp < cfg.LowConfidenceThreshold
		if low {
			lowCount++
		}
		seqLogprob += lp
		analyses = append(analyses, TokenAnalysis{
			Token:          tp.Token,
			LogProbability: lp,
			LowConfidence:  low,
			Position:       tp.Position,
		})
	}
	length := len(tokens)
	normalized := seqLogprob / float64(length)

	suspected := normalized < threshold ||
		float64(lowCount)/float64(length) > cfg.MaxLowConfidenceRatio

	return Report{
		Text:                 text,
		SequenceLength:       length,
		SeqLogprob:           seqLogprob,
		NormalizedSeqLogprob: normalized,
		TokenAnalyses:        analyses,
		LowConfidenceTokens:  lowCount,
		SuspiciousSequences:  collectSuspiciousSequences(analyses),
		Suspected:            suspected,
		Risk:                 classifyRisk(normalized, threshold, suspected),
		ConfidenceScore:      confidenceScore(normalized, threshold),
	}, nil
}

// classifyRisk bands the normalized sequence log-probability by how far it
// falls below the (negative) threshold T: medium within |T|/5 nats below T,
// high down to 4T, critical beyond that (double-digit averages at the
// default threshold). The bands are strictly monotonic and a suspected
// sequence is never reported low.
func classifyRisk(normalized, threshold float64, suspected bool) RiskLevel {
	mediumFloor := threshold - math.Abs(threshold)/5
	switch {
	case normalized < 4*threshold:
		return RiskCritical
	case normalized < mediumFloor:
		return RiskHigh
	case normalized < threshold:
		return RiskMedium
	default:
		if suspected {
			return RiskMedium
		}
		return RiskLow
	}
}

// confidenceScore maps the normalized sequence log-probability onto [0, 100]
// with a logistic curve whose midpoint sits at twice the threshold. The
// scaling keeps the score above 90 for anything banded low and near zero at
// the critical boundary, for any negative threshold.
func confidenceScore(normalized, threshold float64) float64 {
	midpoint := 2 * threshold
	steepness := 2.25 / math.Abs(threshold)
	score := 100 / (1 + math.Exp(-steepness*(normalized-midpoint)))
	return round2(clamp(score, 0, 100))
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}
	return value
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

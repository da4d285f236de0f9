package analysis

// Analyzer ties the pure scoring functions to a ConfigStore. It holds no
// other state: thresholds are read fresh from the store on every call, so an
// administrative Update takes effect immediately and reports are never
// computed against a half-applied config.
type Analyzer struct {
	store *ConfigStore
	trend TrendClassifier
}

// Options tunes a single analysis call.
type Options struct {
	// Threshold overrides the store's hallucination threshold for this call.
	Threshold *float64
	// IncludeDetailedAnalysis requests the insight enrichment layer.
	IncludeDetailedAnalysis bool
}

func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{
		store: NewConfigStore(cfg),
		trend: HalfSplitTrend{},
	}
}

// ConfigStore exposes the analyzer's threshold store for administrative
// reads and partial updates.
func (a *Analyzer) ConfigStore() *ConfigStore {
	return a.store
}

// DetectHallucination scores one token sequence with the current config. An
// optional non-nil threshold overrides the configured hallucination cutoff.
func (a *Analyzer) DetectHallucination(text string, tokens []TokenProbability, threshold *float64) (Report, error) {
	cfg := a.store.Config()
	if threshold != nil {
		return DetectWithThreshold(text, tokens, cfg, *threshold)
	}
	return Detect(text, tokens, cfg)
}

// AnalyzeSequenceConfidence scores a sequence and, when detailed analysis is
// requested, wraps the report in the insight layer. Without the flag the
// insight fields are left at their zero values apart from the embedded
// report.
func (a *Analyzer) AnalyzeSequenceConfidence(text string, tokens []TokenProbability, opts Options) (Insights, error) {
	report, err := a.DetectHallucination(text, tokens, opts.Threshold)
	if err != nil {
		return Insights{}, err
	}
	if !opts.IncludeDetailedAnalysis {
		return Insights{Report: report}, nil
	}
	return BuildInsights(report, a.trend), nil
}

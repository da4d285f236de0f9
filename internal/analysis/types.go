package analysis

// TokenProbability is one token of a model response paired with the
// probability the model assigned to it. Position is the zero-based index of
// the token within the response.
type TokenProbability struct {
	Token       string  `json:"token"`
	Probability float64 `json:"probability"`
	Position    int     `json:"position"`
}

// TokenAnalysis is the per-token scoring output derived from a
// TokenProbability.
type TokenAnalysis struct {
	Token          string  `json:"token"`
	LogProbability float64 `json:"logprob"`
	LowConfidence  bool    `json:"is_low_confidence"`
	Position       int     `json:"position"`
}

// SuspiciousSequence is a maximal contiguous run of two or more
// low-confidence tokens. Runs never overlap and are reported in position
// order.
type SuspiciousSequence struct {
	Tokens        []string `json:"tokens"`
	AvgLogprob    float64  `json:"avg_logprob"`
	StartPosition int      `json:"start_position"`
	EndPosition   int      `json:"end_position"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Report is the full scoring result for one token sequence. It is freshly
// allocated per call and never mutated after construction.
type Report struct {
	Text                 string               `json:"text,omitempty"`
	SequenceLength       int                  `json:"sequence_length"`
	SeqLogprob           float64              `json:"seq_logprob"`
	NormalizedSeqLogprob float64              `json:"normalized_seq_logprob"`
	TokenAnalyses        []TokenAnalysis      `json:"token_analyses"`
	LowConfidenceTokens  int                  `json:"low_confidence_tokens"`
	SuspiciousSequences  []SuspiciousSequence `json:"suspicious_sequences"`
	Suspected            bool                 `json:"is_hallucination_suspected"`
	Risk                 RiskLevel            `json:"hallucination_risk"`
	ConfidenceScore      float64              `json:"confidence_score"`
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Insights extends a Report with the optional enrichment layer: the weakest
// token, a first-half/second-half confidence trend, severity-scaled
// recommended actions and a templated technical summary.
type Insights struct {
	Report
	MostSuspiciousToken *TokenAnalysis `json:"most_suspicious_token,omitempty"`
	RecommendedActions  []string       `json:"recommended_actions"`
	TechnicalSummary    string         `json:"technical_summary"`
	ConfidenceTrend     Trend          `json:"confidence_trend"`
}

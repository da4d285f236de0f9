package server

import (
	"encoding/json"
	"time"

	"halprobe/internal/analysis"
)

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AnalysisRequest carries one scored sequence submission. Callers supply
// either a raw provider response payload or parallel tokens/probabilities
// lists; supplying both is rejected.
type AnalysisRequest struct {
	Text          string          `json:"text,omitempty"`
	Tokens        []string        `json:"tokens,omitempty"`
	Probabilities []float64       `json:"probabilities,omitempty"`
	Response      json.RawMessage `json:"response,omitempty"`
	Threshold     *float64        `json:"threshold,omitempty"`
	Detailed      bool            `json:"detailed,omitempty"`
}

// AnalysisMeta is the stored record of one completed analysis.
type AnalysisMeta struct {
	AnalysisID  string             `json:"analysis_id"`
	CreatorType string             `json:"creator_type"`
	CreatorSub  string             `json:"creator_sub,omitempty"`
	Source      string             `json:"source"`
	Request     AnalysisRequest    `json:"request"`
	CreatedAt   string             `json:"created_at"`
	Report      *analysis.Insights `json:"report,omitempty"`
	Risk        RiskSnapshot       `json:"risk"`
}

// RiskSnapshot is the flattened risk view kept next to the full report so
// listings and the metrics overview never re-parse report JSON.
type RiskSnapshot struct {
	Risk                 string  `json:"hallucination_risk"`
	Suspected            bool    `json:"is_hallucination_suspected"`
	ConfidenceScore      float64 `json:"confidence_score"`
	NormalizedSeqLogprob float64 `json:"normalized_seq_logprob"`
	SequenceLength       int     `json:"sequence_length"`
	LowConfidenceTokens  int     `json:"low_confidence_tokens"`
	SuspiciousSpans      int     `json:"suspicious_spans"`
}

type AuditEvent struct {
	Timestamp  string `json:"timestamp"`
	AnalysisID string `json:"analysis_id,omitempty"`
	ActorType  string `json:"actor_type"`
	ActorSub   string `json:"actor_sub,omitempty"`
	Action     string `json:"action"`
	Result     string `json:"result"`
	IPHash     string `json:"ip_hash,omitempty"`
	UAHash     string `json:"ua_hash,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt       string  `json:"generated_at"`
	TotalAnalyses     int     `json:"total_analyses"`
	SuspectedAnalyses int     `json:"suspected_analyses"`
	LowRisk           int     `json:"low_risk"`
	MediumRisk        int     `json:"medium_risk"`
	HighRisk          int     `json:"high_risk"`
	CriticalRisk      int     `json:"critical_risk"`
	AverageConfidence float64 `json:"average_confidence_score"`
	AverageNormalized float64 `json:"average_normalized_seq_logprob"`
}

type StoreSnapshot struct {
	Analyses []AnalysisMeta `json:"analyses"`
	Audit    []AuditEvent   `json:"audit"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func snapshotRisk(report analysis.Report) RiskSnapshot {
	return RiskSnapshot{
		Risk:                 string(report.Risk),
		Suspected:            report.Suspected,
		ConfidenceScore:      report.ConfidenceScore,
		NormalizedSeqLogprob: report.NormalizedSeqLogprob,
		SequenceLength:       report.SequenceLength,
		LowConfidenceTokens:  report.LowConfidenceTokens,
		SuspiciousSpans:      len(report.SuspiciousSequences),
	}
}

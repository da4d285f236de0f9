package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"halprobe/internal/analysis"
)

// ErrRateLimited marks an analysis rejected by the per-IP limiter so the
// router can answer 429 instead of 400.
var ErrRateLimited = errors.New("analysis rate limit reached")

// AnalysisService is what the router needs from the scoring layer.
type AnalysisService interface {
	Analyze(request AnalysisRequest, creator Principal, creatorType, source, ipHash, uaHash string) (AnalysisMeta, error)
	Thresholds() analysis.Config
	UpdateThresholds(patch analysis.ConfigPatch, actor Principal) analysis.Config
}

// Service runs analyses synchronously: scoring is a single pass over the
// tokens, so there is no queue and the caller gets the stored record back.
type Service struct {
	cfg      ServerConfig
	store    Store
	analyzer *analysis.Analyzer
	obs      *Observability
	limiter  *ipRateLimiter
}

func NewService(cfg ServerConfig, store Store, analyzer *analysis.Analyzer, obs *Observability) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		analyzer: analyzer,
		obs:      obs,
		limiter:  newIPRateLimiter(cfg.Limits.AnalyzeRPM),
	}
}

func (s *Service) Analyze(request AnalysisRequest, creator Principal, creatorType, source, ipHash, uaHash string) (AnalysisMeta, error) {
	if !s.limiter.Allow(ipHash) {
		s.obs.MarkRejected(context.Background(), "rate_limit")
		_ = s.store.AppendAudit(AuditEvent{
			Timestamp: nowRFC3339(),
			ActorType: creatorType,
			ActorSub:  creator.Subject,
			Action:    "analysis.reject",
			Result:    "rate_limited",
			IPHash:    ipHash,
			UAHash:    uaHash,
		})
		return AnalysisMeta{}, ErrRateLimited
	}

	tokens, err := resolveTokens(request)
	if err != nil {
		s.obs.MarkRejected(context.Background(), "invalid_input")
		_ = s.store.AppendAudit(AuditEvent{
			Timestamp: nowRFC3339(),
			ActorType: creatorType,
			ActorSub:  creator.Subject,
			Action:    "analysis.reject",
			Result:    "invalid_input",
			IPHash:    ipHash,
			UAHash:    uaHash,
			Detail:    err.Error(),
		})
		return AnalysisMeta{}, err
	}

	insights, err := s.analyzer.AnalyzeSequenceConfidence(request.Text, tokens, analysis.Options{
		Threshold:               request.Threshold,
		IncludeDetailedAnalysis: request.Detailed,
	})
	if err != nil {
		s.obs.MarkRejected(context.Background(), "invalid_input")
		_ = s.store.AppendAudit(AuditEvent{
			Timestamp: nowRFC3339(),
			ActorType: creatorType,
			ActorSub:  creator.Subject,
			Action:    "analysis.reject",
			Result:    "invalid_input",
			IPHash:    ipHash,
			UAHash:    uaHash,
			Detail:    err.Error(),
		})
		return AnalysisMeta{}, err
	}

	analysisID, err := randomID("an")
	if err != nil {
		return AnalysisMeta{}, err
	}
	meta := AnalysisMeta{
		AnalysisID:  analysisID,
		CreatorType: creatorType,
		CreatorSub:  creator.Subject,
		Source:      source,
		Request:     request,
		CreatedAt:   nowRFC3339(),
		Report:      &insights,
		Risk:        snapshotRisk(insights.Report),
	}
	if err := s.store.CreateAnalysis(meta); err != nil {
		return AnalysisMeta{}, err
	}
	_ = s.store.AppendAudit(AuditEvent{
		Timestamp:  nowRFC3339(),
		AnalysisID: analysisID,
		ActorType:  creatorType,
		ActorSub:   creator.Subject,
		Action:     "analysis.create",
		Result:     meta.Risk.Risk,
		IPHash:     ipHash,
		UAHash:     uaHash,
		Detail:     fmt.Sprintf("length=%d suspected=%t", meta.Risk.SequenceLength, meta.Risk.Suspected),
	})
	s.obs.MarkAnalysis(context.Background(), meta.Risk.Risk, meta.Risk.Suspected,
		meta.Risk.ConfidenceScore, meta.Risk.SequenceLength)
	return meta, nil
}

// Thresholds returns the live scoring config.
func (s *Service) Thresholds() analysis.Config {
	return s.analyzer.ConfigStore().Config()
}

// UpdateThresholds applies a partial threshold update and records who did it.
func (s *Service) UpdateThresholds(patch analysis.ConfigPatch, actor Principal) analysis.Config {
	updated := s.analyzer.ConfigStore().Update(patch)
	_ = s.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		ActorType: "admin",
		ActorSub:  actor.Subject,
		Action:    "config.update",
		Result:    "applied",
		Detail: fmt.Sprintf("hallucination_threshold=%.4f low_confidence_threshold=%.4f max_low_confidence_ratio=%.4f",
			updated.HallucinationThreshold, updated.LowConfidenceThreshold, updated.MaxLowConfidenceRatio),
	})
	s.obs.MarkConfigUpdate(context.Background())
	return updated
}

// resolveTokens turns a request into token probabilities. Raw provider
// payloads and explicit token lists are mutually exclusive.
func resolveTokens(request AnalysisRequest) ([]analysis.TokenProbability, error) {
	hasResponse := len(request.Response) > 0
	hasLists := len(request.Tokens) > 0 || len(request.Probabilities) > 0
	switch {
	case hasResponse && hasLists:
		return nil, errors.New("response payload and token lists are mutually exclusive")
	case hasResponse:
		return analysis.ParseTokenizedResponse(request.Response)
	case hasLists:
		return analysis.NewTokenProbabilities(request.Tokens, request.Probabilities)
	default:
		return nil, errors.New("response payload or tokens/probabilities required")
	}
}

func randomID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

type ipRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	records map[string][]time.Time
}

func newIPRateLimiter(rpm int) *ipRateLimiter {
	if rpm <= 0 {
		rpm = 60
	}
	return &ipRateLimiter{
		rpm:     rpm,
		records: map[string][]time.Time{},
	}
}

func (l *ipRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	items := filterRecentTime(l.records[key], cutoff)
	if len(items) >= l.rpm {
		l.records[key] = items
		return false
	}
	items = append(items, now)
	l.records[key] = items
	return true
}

func filterRecentTime(items []time.Time, cutoff time.Time) []time.Time {
	if len(items) == 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.After(cutoff) {
			out = append(out, item)
		}
	}
	return out
}

func hashString(input string) string {
	sum := sha256Sum(input)
	return sum[:16]
}

func sha256Sum(input string) string {
	hash := sha256.New()
	_, _ = hash.Write([]byte(input))
	return hex.EncodeToString(hash.Sum(nil))
}

// Ensure Service implements AnalysisService at compile time.
var _ AnalysisService = (*Service)(nil)

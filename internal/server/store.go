package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type Store interface {
	CreateAnalysis(meta AnalysisMeta) error
	GetAnalysis(analysisID string) (AnalysisMeta, bool)
	ListAnalyses(limit int) []AnalysisMeta
	ListAnalysesByCreator(creatorSub string, limit int) []AnalysisMeta
	AppendAudit(event AuditEvent) error
	ListAudit(limit int) []AuditEvent
	GetMetricsOverview() MetricsOverview
}

// MemoryFileStore keeps everything in memory and mirrors the state to a JSON
// snapshot file when a path is configured. Good enough for single-node
// deployments and tests; Postgres takes over beyond that.
type MemoryFileStore struct {
	mu       sync.RWMutex
	path     string
	analyses map[string]AnalysisMeta
	audit    []AuditEvent
}

func NewMemoryFileStore(path string) (*MemoryFileStore, error) {
	store := &MemoryFileStore{
		path:     path,
		analyses: map[string]AnalysisMeta{},
		audit:    []AuditEvent{},
	}
	if strings.TrimSpace(path) == "" {
		return store, nil
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MemoryFileStore) CreateAnalysis(meta AnalysisMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.analyses[meta.AnalysisID]; exists {
		return fmt.Errorf("analysis %s already exists", meta.AnalysisID)
	}
	s.analyses[meta.AnalysisID] = meta
	return s.persistLocked()
}

func (s *MemoryFileStore) GetAnalysis(analysisID string) (AnalysisMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.analyses[analysisID]
	return meta, ok
}

func (s *MemoryFileStore) ListAnalyses(limit int) []AnalysisMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AnalysisMeta, 0, len(s.analyses))
	for _, meta := range s.analyses {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) ListAnalysesByCreator(creatorSub string, limit int) []AnalysisMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AnalysisMeta, 0)
	for _, meta := range s.analyses {
		if meta.CreatorSub == creatorSub {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) AppendAudit(event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(event.Timestamp) == "" {
		event.Timestamp = nowRFC3339()
	}
	s.audit = append(s.audit, event)
	if len(s.audit) > 5000 {
		s.audit = s.audit[len(s.audit)-5000:]
	}
	return s.persistLocked()
}

func (s *MemoryFileStore) ListAudit(limit int) []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.audit) == 0 {
		return []AuditEvent{}
	}
	out := make([]AuditEvent, len(s.audit))
	copy(out, s.audit)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) GetMetricsOverview() MetricsOverview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overview := MetricsOverview{
		GeneratedAt: nowRFC3339(),
	}
	var confidenceTotal float64
	var normalizedTotal float64
	for _, meta := range s.analyses {
		overview.TotalAnalyses++
		if meta.Risk.Suspected {
			overview.SuspectedAnalyses++
		}
		switch strings.ToLower(strings.TrimSpace(meta.Risk.Risk)) {
		case "low":
			overview.LowRisk++
		case "medium":
			overview.MediumRisk++
		case "high":
			overview.HighRisk++
		case "critical":
			overview.CriticalRisk++
		}
		confidenceTotal += meta.Risk.ConfidenceScore
		normalizedTotal += meta.Risk.NormalizedSeqLogprob
	}
	if overview.TotalAnalyses > 0 {
		overview.AverageConfidence = confidenceTotal / float64(overview.TotalAnalyses)
		overview.AverageNormalized = normalizedTotal / float64(overview.TotalAnalyses)
	}
	return overview
}

func (s *MemoryFileStore) load() error {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store snapshot: %w", err)
	}
	var snapshot StoreSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode store snapshot: %w", err)
	}
	for _, meta := range snapshot.Analyses {
		s.analyses[meta.AnalysisID] = meta
	}
	s.audit = snapshot.Audit
	if s.audit == nil {
		s.audit = []AuditEvent{}
	}
	return nil
}

func (s *MemoryFileStore) persistLocked() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	analyses := make([]AnalysisMeta, 0, len(s.analyses))
	for _, meta := range s.analyses {
		analyses = append(analyses, meta)
	}
	sort.Slice(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt < analyses[j].CreatedAt
	})
	snapshot := StoreSnapshot{
		Analyses: analyses,
		Audit:    s.audit,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write store temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace store snapshot: %w", err)
	}
	return nil
}

package server

import (
	"encoding/json"
	"errors"
	"testing"

	"halprobe/internal/analysis"
)

func newTestService(t *testing.T, cfg ServerConfig) (*Service, *MemoryFileStore) {
	t.Helper()
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	analyzer := analysis.NewAnalyzer(cfg.Analysis)
	return NewService(cfg, store, analyzer, nil), store
}

func TestServiceAnalyzeFromTokenLists(t *testing.T) {
	service, store := newTestService(t, DefaultServerConfig())
	meta, err := service.Analyze(AnalysisRequest{
		Text:          "The cat sat",
		Tokens:        []string{"The", " cat", " sat"},
		Probabilities: []float64{0.9, 0.8, 0.85},
	}, Principal{Subject: "user-1"}, "user", "test", "ip-hash", "ua-hash")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if meta.AnalysisID == "" {
		t.Fatal("expected an analysis id")
	}
	if meta.Risk.Risk != "low" || meta.Risk.Suspected {
		t.Fatalf("expected confident sequence to score low, got %+v", meta.Risk)
	}
	if meta.Report == nil || meta.Report.SequenceLength != 3 {
		t.Fatalf("expected stored report with length 3, got %+v", meta.Report)
	}
	stored, ok := store.GetAnalysis(meta.AnalysisID)
	if !ok {
		t.Fatal("analysis must be persisted")
	}
	if stored.CreatorSub != "user-1" {
		t.Fatalf("creator lost: %+v", stored)
	}
	audit := store.ListAudit(10)
	if len(audit) != 1 || audit[0].Action != "analysis.create" {
		t.Fatalf("expected one create audit event, got %+v", audit)
	}
}

func TestServiceAnalyzeFromResponsePayload(t *testing.T) {
	service, _ := newTestService(t, DefaultServerConfig())
	raw := json.RawMessage(`{"choices":[{"logprobs":{"tokens":["Hello"," world"],"token_logprobs":[-0.1,-0.2]}}]}`)
	meta, err := service.Analyze(AnalysisRequest{Response: raw, Detailed: true},
		Principal{}, "anonymous", "test", "ip-hash", "ua-hash")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if meta.Risk.SequenceLength != 2 {
		t.Fatalf("expected 2 tokens from payload, got %d", meta.Risk.SequenceLength)
	}
	if meta.Report == nil || meta.Report.TechnicalSummary == "" {
		t.Fatal("detailed analysis must include the insight layer")
	}
}

func TestServiceAnalyzeRejectsAmbiguousInput(t *testing.T) {
	service, store := newTestService(t, DefaultServerConfig())
	_, err := service.Analyze(AnalysisRequest{
		Tokens:        []string{"a"},
		Probabilities: []float64{0.5},
		Response:      json.RawMessage(`{"tokens":["a"],"logprobs":[-0.5]}`),
	}, Principal{}, "anonymous", "test", "ip-hash", "ua-hash")
	if err == nil {
		t.Fatal("expected mutually exclusive inputs to be rejected")
	}
	audit := store.ListAudit(10)
	if len(audit) != 1 || audit[0].Result != "invalid_input" {
		t.Fatalf("expected an invalid_input audit event, got %+v", audit)
	}
}

func TestServiceAnalyzeRejectsEmptyRequest(t *testing.T) {
	service, _ := newTestService(t, DefaultServerConfig())
	_, err := service.Analyze(AnalysisRequest{}, Principal{}, "anonymous", "test", "ip", "ua")
	if err == nil {
		t.Fatal("expected empty request to be rejected")
	}
}

func TestServiceAnalyzeRateLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Limits.AnalyzeRPM = 1
	service, _ := newTestService(t, cfg)
	request := AnalysisRequest{Tokens: []string{"a"}, Probabilities: []float64{0.9}}

	if _, err := service.Analyze(request, Principal{}, "anonymous", "test", "ip-a", "ua"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := service.Analyze(request, Principal{}, "anonymous", "test", "ip-a", "ua")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// A different client is unaffected.
	if _, err := service.Analyze(request, Principal{}, "anonymous", "test", "ip-b", "ua"); err != nil {
		t.Fatalf("other client: %v", err)
	}
}

func TestServiceThresholdUpdateAffectsNextAnalysis(t *testing.T) {
	service, store := newTestService(t, DefaultServerConfig())
	request := AnalysisRequest{Tokens: []string{"a", "b"}, Probabilities: []float64{0.2, 0.2}}

	before, err := service.Analyze(request, Principal{}, "anonymous", "test", "ip-1", "ua")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if before.Risk.Suspected {
		t.Fatal("expected not suspected at default threshold")
	}

	strict := -1.0
	updated := service.UpdateThresholds(analysis.ConfigPatch{HallucinationThreshold: &strict}, Principal{Subject: "admin-1"})
	if updated.HallucinationThreshold != -1.0 {
		t.Fatalf("expected threshold -1.0, got %.2f", updated.HallucinationThreshold)
	}

	after, err := service.Analyze(request, Principal{}, "anonymous", "test", "ip-2", "ua")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !after.Risk.Suspected {
		t.Fatal("threshold update must apply to the next analysis")
	}

	found := false
	for _, event := range store.ListAudit(10) {
		if event.Action == "config.update" && event.ActorSub == "admin-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a config.update audit event")
	}
}

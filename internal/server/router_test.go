package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"halprobe/internal/analysis"
)

func newTestServer(t *testing.T) (*httptest.Server, *MemoryFileStore) {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Security.AdminToken = "secret-token"
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	analyzer := analysis.NewAnalyzer(cfg.Analysis)
	service := NewService(cfg, store, analyzer, nil)
	auth := NewAuth(nil, cfg)
	api := NewAPI(auth, store, service, nil)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server, store
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func TestRouterHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	response, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
}

func TestRouterCreateAndFetchAnalysis(t *testing.T) {
	server, _ := newTestServer(t)
	resp := postJSON(t, server.URL+"/api/v1/analyses", map[string]any{
		"text":          "The cat sat",
		"tokens":        []string{"The", " cat", " sat"},
		"probabilities": []float64{0.9, 0.8, 0.85},
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var created AnalysisMeta
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.AnalysisID == "" {
		t.Fatal("expected analysis id in response")
	}
	if created.Risk.Risk != "low" {
		t.Fatalf("expected low risk, got %s", created.Risk.Risk)
	}

	fetch, err := http.Get(server.URL + "/api/v1/analyses/" + created.AnalysisID)
	if err != nil {
		t.Fatalf("GET analysis failed: %v", err)
	}
	defer fetch.Body.Close()
	if fetch.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", fetch.StatusCode)
	}
}

func TestRouterCreateAnalysisRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t)
	resp := postJSON(t, server.URL+"/api/v1/analyses", map[string]any{
		"tokens":        []string{"a", "b"},
		"probabilities": []float64{0.9},
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatched lists, got %d", resp.StatusCode)
	}
}

func TestRouterGetAnalysisNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/api/v1/analyses/an_missing")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRouterAdminRequiresAuth(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/api/v1/admin/config")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRouterAdminConfigGetAndPatch(t *testing.T) {
	server, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v1/admin/config", nil)
	req.Header.Set("X-Admin-Token", "secret-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET config failed: %v", err)
	}
	var cfg analysis.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	resp.Body.Close()
	if cfg.HallucinationThreshold != -2.5 {
		t.Fatalf("expected default threshold -2.5, got %.2f", cfg.HallucinationThreshold)
	}

	raw, _ := json.Marshal(map[string]any{"hallucination_threshold": -1.5})
	patchReq, _ := http.NewRequest(http.MethodPatch, server.URL+"/api/v1/admin/config", bytes.NewReader(raw))
	patchReq.Header.Set("Content-Type", "application/json")
	patchReq.Header.Set("X-Admin-Token", "secret-token")
	patchResp, err := http.DefaultClient.Do(patchReq)
	if err != nil {
		t.Fatalf("PATCH config failed: %v", err)
	}
	defer patchResp.Body.Close()
	if patchResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", patchResp.StatusCode)
	}
	var updated analysis.Config
	if err := json.NewDecoder(patchResp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated config: %v", err)
	}
	if updated.HallucinationThreshold != -1.5 {
		t.Fatalf("expected patched threshold -1.5, got %.2f", updated.HallucinationThreshold)
	}
	if updated.LowConfidenceThreshold != -2.0 {
		t.Fatalf("unpatched field changed: %.2f", updated.LowConfidenceThreshold)
	}
}

func TestRouterAdminMetricsOverview(t *testing.T) {
	server, _ := newTestServer(t)
	createResp := postJSON(t, server.URL+"/api/v1/analyses", map[string]any{
		"tokens":        []string{"a", "b"},
		"probabilities": []float64{0.01, 0.02},
	}, nil)
	createResp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v1/admin/metrics/overview", nil)
	req.Header.Set("X-Admin-Token", "secret-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET overview failed: %v", err)
	}
	defer resp.Body.Close()
	var overview MetricsOverview
	if err := json.NewDecoder(resp.Body).Decode(&overview); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if overview.TotalAnalyses != 1 {
		t.Fatalf("expected one analysis, got %d", overview.TotalAnalyses)
	}
	if overview.SuspectedAnalyses != 1 {
		t.Fatalf("expected the weak sequence to be suspected, got %d", overview.SuspectedAnalyses)
	}
}

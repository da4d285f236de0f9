package analysis

import (
	"sync"
	"testing"
)

func ptrFloat(v float64) *float64 { return &v }

func TestConfigStorePartialUpdate(t *testing.T) {
	store := NewConfigStore(DefaultConfig())

	updated := store.Update(ConfigPatch{HallucinationThreshold: ptrFloat(-1.5)})
	if updated.HallucinationThreshold != -1.5 {
		t.Fatalf("expected threshold -1.5, got %.2f", updated.HallucinationThreshold)
	}
	if updated.LowConfidenceThreshold != defaultLowConfidenceThreshold {
		t.Fatalf("unpatched field changed: %.2f", updated.LowConfidenceThreshold)
	}
	if updated.MaxLowConfidenceRatio != defaultMaxLowConfidenceRatio {
		t.Fatalf("unpatched field changed: %.2f", updated.MaxLowConfidenceRatio)
	}

	updated = store.Update(ConfigPatch{MaxLowConfidenceRatio: ptrFloat(0.5)})
	if updated.HallucinationThreshold != -1.5 {
		t.Fatalf("earlier patch lost: %.2f", updated.HallucinationThreshold)
	}
	if updated.MaxLowConfidenceRatio != 0.5 {
		t.Fatalf("expected ratio 0.5, got %.2f", updated.MaxLowConfidenceRatio)
	}
}

func TestConfigStoreRejectsUnusableValues(t *testing.T) {
	store := NewConfigStore(Config{})
	cfg := store.Config()
	if cfg != DefaultConfig() {
		t.Fatalf("zero config must normalize to defaults, got %+v", cfg)
	}

	cfg = store.Update(ConfigPatch{
		HallucinationThreshold: ptrFloat(1.0),
		MaxLowConfidenceRatio:  ptrFloat(2.0),
	})
	if cfg.HallucinationThreshold != defaultHallucinationThreshold {
		t.Fatalf("positive threshold must fall back to default, got %.2f", cfg.HallucinationThreshold)
	}
	if cfg.MaxLowConfidenceRatio != defaultMaxLowConfidenceRatio {
		t.Fatalf("ratio above 1 must fall back to default, got %.2f", cfg.MaxLowConfidenceRatio)
	}
}

func TestConfigStoreFreshReadPerCall(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig())
	tokens := mustTokens(t, []string{"a", "b"}, []float64{0.2, 0.2})

	before, err := analyzer.DetectHallucination("", tokens, nil)
	if err != nil {
		t.Fatalf("DetectHallucination: %v", err)
	}
	if before.Suspected {
		t.Fatal("expected not suspected at default threshold")
	}

	analyzer.ConfigStore().Update(ConfigPatch{HallucinationThreshold: ptrFloat(-1.0)})
	after, err := analyzer.DetectHallucination("", tokens, nil)
	if err != nil {
		t.Fatalf("DetectHallucination: %v", err)
	}
	if !after.Suspected {
		t.Fatal("threshold update must take effect on the next call")
	}
}

func TestConfigStoreConcurrentReads(t *testing.T) {
	store := NewConfigStore(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg := store.Config()
				if cfg.HallucinationThreshold >= 0 {
					t.Error("observed unnormalized config")
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			value := -1.0 - float64(step)
			store.Update(ConfigPatch{HallucinationThreshold: &value})
		}(i)
	}
	wg.Wait()
}

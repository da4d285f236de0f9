package analysis

import "sync"

const (
	defaultHallucinationThreshold = -2.5
	defaultLowConfidenceThreshold = -2.0
	defaultMaxLowConfidenceRatio  = 0.3
)

// Config holds the three tunable scoring thresholds. It is an immutable value
// passed explicitly into the scoring functions; callers may share or clone it
// freely.
type Config struct {
	// HallucinationThreshold is the cutoff on the normalized sequence
	// log-probability below which a sequence is suspected.
	HallucinationThreshold float64 `json:"hallucination_threshold" yaml:"hallucination_threshold"`
	// LowConfidenceThreshold is the cutoff on a single token's
	// log-probability below which the token is flagged low-confidence.
	LowConfidenceThreshold float64 `json:"low_confidence_threshold" yaml:"low_confidence_threshold"`
	// MaxLowConfidenceRatio is the fraction of low-confidence tokens above
	// which a sequence is suspected regardless of its aggregate score.
	MaxLowConfidenceRatio float64 `json:"max_low_confidence_ratio" yaml:"max_low_confidence_ratio"`
}

func DefaultConfig() Config {
	return Config{
		HallucinationThreshold: defaultHallucinationThreshold,
		LowConfidenceThreshold: defaultLowConfidenceThreshold,
		MaxLowConfidenceRatio:  defaultMaxLowConfidenceRatio,
	}
}

// Normalized returns a copy with unusable field values replaced by defaults.
// Both log-probability thresholds must be negative and the ratio must lie in
// (0, 1).
func (c Config) Normalized() Config {
	out := c
	if out.HallucinationThreshold >= 0 {
		out.HallucinationThreshold = defaultHallucinationThreshold
	}
	if out.LowConfidenceThreshold >= 0 {
		out.LowConfidenceThreshold = defaultLowConfidenceThreshold
	}
	if out.MaxLowConfidenceRatio <= 0 || out.MaxLowConfidenceRatio >= 1 {
		out.MaxLowConfidenceRatio = defaultMaxLowConfidenceRatio
	}
	return out
}

// ConfigPatch is a partial threshold update. Nil fields keep their prior
// values.
type ConfigPatch struct {
	HallucinationThreshold *float64 `json:"hallucination_threshold,omitempty" yaml:"hallucination_threshold,omitempty"`
	LowConfidenceThreshold *float64 `json:"low_confidence_threshold,omitempty" yaml:"low_confidence_threshold,omitempty"`
	MaxLowConfidenceRatio  *float64 `json:"max_low_confidence_ratio,omitempty" yaml:"max_low_confidence_ratio,omitempty"`
}

// ConfigStore is the only stateful part of the core. Reads return a value
// copy, so a config observed by one analysis call is never mutated under it.
type ConfigStore struct {
	mu      sync.RWMutex
	current Config
}

func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{current: cfg.Normalized()}
}

// Config returns the current thresholds.
func (s *ConfigStore) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies a partial merge and returns the resulting config. Only the
// fields supplied in the patch change.
func (s *ConfigStore) Update(patch ConfigPatch) Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current
	if patch.HallucinationThreshold != nil {
		next.HallucinationThreshold = *patch.HallucinationThreshold
	}
	if patch.LowConfidenceThreshold != nil {
		next.LowConfidenceThreshold = *patch.LowConfidenceThreshold
	}
	if patch.MaxLowConfidenceRatio != nil {
		next.MaxLowConfidenceRatio = *patch.MaxLowConfidenceRatio
	}
	s.current = next.Normalized()
	return s.current
}

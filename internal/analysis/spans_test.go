package analysis

import (
	"math"
	"testing"
)

func analysesFromFlags(flags []bool) []TokenAnalysis {
	out := make([]TokenAnalysis, 0, len(flags))
	for i, low := range flags {
		lp := -0.1
		if low {
			lp = -3.0 - float64(i)
		}
		out = append(out, TokenAnalysis{
			Token:          string(rune('a' + i)),
			LogProbability: lp,
			LowConfidence:  low,
			Position:       i,
		})
	}
	return out
}

func TestCollectSuspiciousSequencesRuns(t *testing.T) {
	cases := []struct {
		name  string
		flags []bool
		spans [][2]int
	}{
		{"no low tokens", []bool{false, false, false}, nil},
		{"isolated low token discarded", []bool{false, true, false}, nil},
		{"single run", []bool{false, true, true, false}, [][2]int{{1, 2}}},
		{"run at end", []bool{false, false, true, true, true}, [][2]int{{2, 4}}},
		{"two runs", []bool{true, true, false, true, true, true}, [][2]int{{0, 1}, {3, 5}}},
		{"whole sequence", []bool{true, true, true}, [][2]int{{0, 2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spans := collectSuspiciousSequences(analysesFromFlags(tc.flags))
			if len(spans) != len(tc.spans) {
				t.Fatalf("expected %d spans, got %d", len(tc.spans), len(spans))
			}
			for i, want := range tc.spans {
				if spans[i].StartPosition != want[0] || spans[i].EndPosition != want[1] {
					t.Fatalf("span %d: expected [%d,%d], got [%d,%d]",
						i, want[0], want[1], spans[i].StartPosition, spans[i].EndPosition)
				}
				if len(spans[i].Tokens) != want[1]-want[0]+1 {
					t.Fatalf("span %d: expected %d member tokens, got %d",
						i, want[1]-want[0]+1, len(spans[i].Tokens))
				}
			}
			for i := 1; i < len(spans); i++ {
				if spans[i].StartPosition <= spans[i-1].EndPosition {
					t.Fatal("spans must not overlap and must be ordered left to right")
				}
			}
		})
	}
}

func TestCollectSuspiciousSequencesAverage(t *testing.T) {
	analyses := []TokenAnalysis{
		{Token: "a", LogProbability: -3.0, LowConfidence: true, Position: 0},
		{Token: "b", LogProbability: -5.0, LowConfidence: true, Position: 1},
		{Token: "c", LogProbability: -0.1, LowConfidence: false, Position: 2},
	}
	spans := collectSuspiciousSequences(analyses)
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if math.Abs(spans[0].AvgLogprob-(-4.0)) > 1e-12 {
		t.Fatalf("expected average logprob -4.0, got %.6f", spans[0].AvgLogprob)
	}
}

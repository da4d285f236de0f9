package analysis

import (
	"encoding/json"
	"math"
)

// Two upstream response shapes are recognized, both carrying equal-length
// parallel lists of token texts and natural-log probabilities:
//
//	Format A (nested): {"choices":[{"logprobs":{"tokens":[...],"token_logprobs":[...]}}]}
//	Format B (flat):   {"tokens":[...],"logprobs":[...]}
//
// Only the first choice of Format A is consulted. Anything else fails with
// ErrUnsupportedFormat; the parser never guesses at ambiguous payloads.

type nestedResponse struct {
	Choices []struct {
		Logprobs *struct {
			Tokens        []string  `json:"tokens"`
			TokenLogprobs []float64 `json:"token_logprobs"`
		} `json:"logprobs"`
	} `json:"choices"`
}

type flatResponse struct {
	Tokens   []string  `json:"tokens"`
	Logprobs []float64 `json:"logprobs"`
}

// ParseTokenizedResponse converts a raw provider payload into the canonical
// ordered token/probability triples. Each natural-log value lp becomes the
// probability e^lp; positions are the zero-based token indices.
func ParseTokenizedResponse(raw []byte) ([]TokenProbability, error) {
	var nested nestedResponse
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested.Choices) > 0 {
		lp := nested.Choices[0].Logprobs
		if lp != nil && lp.Tokens != nil && lp.TokenLogprobs != nil {
			return zipLogprobs(lp.Tokens, lp.TokenLogprobs)
		}
	}

	var flat flatResponse
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Tokens != nil && flat.Logprobs != nil {
		return zipLogprobs(flat.Tokens, flat.Logprobs)
	}

	return nil, ErrUnsupportedFormat
}

func zipLogprobs(tokens []string, logprobs []float64) ([]TokenProbability, error) {
	if len(tokens) != len(logprobs) {
		return nil, ErrLengthMismatch
	}
	out := make([]TokenProbability, 0, len(tokens))
	for i, token := range tokens {
		out = append(out, TokenProbability{
			Token:       token,
			Probability: math.Exp(logprobs[i]),
			Position:    i,
		})
	}
	return out, nil
}

// NewTokenProbabilities zips two equal-length ordered lists of token text and
// probability into canonical triples, with position set to the list index.
func NewTokenProbabilities(tokens []string, probabilities []float64) ([]TokenProbability, error) {
	if len(tokens) != len(probabilities) {
		return nil, ErrLengthMismatch
	}
	out := make([]TokenProbability, 0, len(tokens))
	for i, token := range tokens {
		out = append(out, TokenProbability{
			Token:       token,
			Probability: probabilities[i],
			Position:    i,
		})
	}
	return out, nil
}

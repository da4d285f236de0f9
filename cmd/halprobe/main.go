package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"halprobe/internal/analysis"
)

func main() {
	inputPath := flag.String("input", envOr("HALPROBE_INPUT", ""), "Path to provider response JSON ('-' for stdin)")
	tokensFlag := flag.String("tokens", "", "Comma-separated token list (paired with -probs)")
	probsFlag := flag.String("probs", "", "Comma-separated probability list (paired with -tokens)")
	text := flag.String("text", "", "Original response text (optional)")
	threshold := flag.Float64("threshold", 0, "Hallucination threshold override (negative log-probability; 0=config default)")
	lowThreshold := flag.Float64("low-confidence-threshold", 0, "Per-token low-confidence threshold (0=default)")
	maxLowRatio := flag.Float64("max-low-ratio", 0, "Max low-confidence token ratio (0=default)")
	detailed := flag.Bool("detailed", false, "Include insight layer: trend, recommended actions, technical summary")
	format := flag.String("format", "text", "Output format: text|json")
	outputPath := flag.String("out", "", "Write full report JSON to this file")
	strict := flag.Bool("strict", false, "Exit non-zero when hallucination is suspected")
	flag.Parse()

	tokens, err := loadTokens(*inputPath, *tokensFlag, *probsFlag)
	if err != nil {
		exitWith(err.Error())
	}

	cfg := analysis.DefaultConfig()
	if *lowThreshold < 0 {
		cfg.LowConfidenceThreshold = *lowThreshold
	}
	if *maxLowRatio > 0 && *maxLowRatio < 1 {
		cfg.MaxLowConfidenceRatio = *maxLowRatio
	}
	analyzer := analysis.NewAnalyzer(cfg)

	opts := analysis.Options{IncludeDetailedAnalysis: *detailed}
	if *threshold < 0 {
		opts.Threshold = threshold
	}
	insights, err := analyzer.AnalyzeSequenceConfidence(*text, tokens, opts)
	if err != nil {
		exitWith("analysis failed: " + err.Error())
	}

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(insights)
	default:
		printText(insights, *detailed)
	}

	if strings.TrimSpace(*outputPath) != "" {
		if err := writeJSON(*outputPath, insights); err != nil {
			exitWith("failed to write report: " + err.Error())
		}
	}

	if *strict && insights.Suspected {
		os.Exit(1)
	}
}

func loadTokens(inputPath, tokensFlag, probsFlag string) ([]analysis.TokenProbability, error) {
	hasInput := strings.TrimSpace(inputPath) != ""
	hasLists := strings.TrimSpace(tokensFlag) != "" || strings.TrimSpace(probsFlag) != ""
	switch {
	case hasInput && hasLists:
		return nil, fmt.Errorf("-input and -tokens/-probs are mutually exclusive")
	case hasInput:
		data, err := readInput(inputPath)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return analysis.ParseTokenizedResponse(data)
	case hasLists:
		tokens := splitList(tokensFlag)
		rawProbs := splitList(probsFlag)
		probs := make([]float64, 0, len(rawProbs))
		for _, raw := range rawProbs {
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid probability %q", raw)
			}
			probs = append(probs, value)
		}
		return analysis.NewTokenProbabilities(tokens, probs)
	default:
		return nil, fmt.Errorf("-input or -tokens/-probs is required")
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filepath.Clean(path))
}

func splitList(raw string) []string {
	return strings.Split(raw, ",")
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func printText(insights analysis.Insights, detailed bool) {
	fmt.Printf("Sequence length: %d\n", insights.SequenceLength)
	fmt.Printf("Seq logprob: %.4f\n", insights.SeqLogprob)
	fmt.Printf("Normalized: %.4f\n", insights.NormalizedSeqLogprob)
	fmt.Printf("Low-confidence tokens: %d\n", insights.LowConfidenceTokens)
	fmt.Printf("Suspected: %t\n", insights.Suspected)
	fmt.Printf("Risk: %s\n", insights.Risk)
	fmt.Printf("Confidence score: %.2f\n\n", insights.ConfidenceScore)

	for _, span := range insights.SuspiciousSequences {
		fmt.Printf("[SPAN] positions %d-%d avg_logprob=%.4f tokens=%s\n",
			span.StartPosition, span.EndPosition, span.AvgLogprob,
			strings.Join(span.Tokens, ""))
	}
	if len(insights.SuspiciousSequences) > 0 {
		fmt.Println()
	}

	if detailed {
		if insights.MostSuspiciousToken != nil {
			fmt.Printf("Most suspicious token: %q at position %d (logprob %.4f)\n",
				insights.MostSuspiciousToken.Token,
				insights.MostSuspiciousToken.Position,
				insights.MostSuspiciousToken.LogProbability)
		}
		fmt.Printf("Confidence trend: %s\n", insights.ConfidenceTrend)
		fmt.Printf("Summary: %s\n", insights.TechnicalSummary)
		for _, action := range insights.RecommendedActions {
			fmt.Printf("  - %s\n", action)
		}
	}
}

func printJSON(insights analysis.Insights) {
	data, err := json.MarshalIndent(insights, "", "  ")
	if err != nil {
		exitWith("failed to encode report JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), data, 0o644)
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	os.Exit(2)
}

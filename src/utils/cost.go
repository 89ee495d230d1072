package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Pricing per 1M tokens (as of 2025)
const (
	// OpenAI GPT-3.5-turbo
	GPT35InputPer1M  = 0.50
	GPT35OutputPer1M = 1.50

	// OpenAI GPT-4
	GPT4InputPer1M  = 30.00
	GPT4OutputPer1M = 60.00

	// OpenAI Embeddings
	EmbeddingPer1M = 0.10 // text-embedding-ada-002
)

// EstimateTokenCount estimates token count from text (rough approximation)
// More accurate: ~1 token per 4 characters for English
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)

	// Rough estimate: 1 token ≈ 4 characters
	tokenCount := len(text) / 4

	// Add some buffer for special tokens
	if tokenCount < 10 {
		tokenCount = 10
	}

	return tokenCount
}

// ModelCost prices one inference against the named model.
func ModelCost(inputTokens, outputTokens int, model string) float64 {
	var inputCost, outputCost float64

	switch {
	case strings.Contains(strings.ToLower(model), "gpt-4"):
		inputCost = float64(inputTokens) * GPT4InputPer1M / 1000000
		outputCost = float64(outputTokens) * GPT4OutputPer1M / 1000000
	default:
		// GPT-3.5 pricing also stands in for unknown models
		inputCost = float64(inputTokens) * GPT35InputPer1M / 1000000
		outputCost = float64(outputTokens) * GPT35OutputPer1M / 1000000
	}

	return inputCost + outputCost
}

// EmbeddingCost prices generating an embedding for the given token count.
func EmbeddingCost(tokens int) float64 {
	return float64(tokens) * EmbeddingPer1M / 1000000
}

// HitSaving is the money a single cache hit avoided spending: the full
// model call that did not happen, minus the embedding we still paid for to
// run the similarity check. Accrued onto the entry's costSaved on each hit.
func HitSaving(query, response, model string) (saving float64, tokens int) {
	inputTokens := EstimateTokenCount(query)
	outputTokens := EstimateTokenCount(response)

	saving = ModelCost(inputTokens, outputTokens, model) - EmbeddingCost(inputTokens)
	if saving < 0 {
		saving = 0
	}
	return saving, inputTokens + outputTokens
}

// NormalizeQuery collapses whitespace and case so near-identical prompts
// aggregate under one key in the prediction history.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// QueryHash produces a stable id component for a normalized query.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

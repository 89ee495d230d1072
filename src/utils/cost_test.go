package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 10, EstimateTokenCount("hi"), "short text floors at 10 tokens")
	assert.Equal(t, 100, EstimateTokenCount(strings.Repeat("a", 400)))
	assert.Equal(t, 10, EstimateTokenCount("   "))
}

func TestModelCost_GPT4CostsMore(t *testing.T) {
	cheap := ModelCost(1000, 1000, "gpt-3.5-turbo")
	expensive := ModelCost(1000, 1000, "gpt-4")

	assert.Greater(t, expensive, cheap)
	assert.InDelta(t, 0.002, cheap, 1e-9)
	assert.InDelta(t, 0.09, expensive, 1e-9)
}

func TestModelCost_UnknownModelUsesBasePricing(t *testing.T) {
	assert.Equal(t, ModelCost(500, 500, "gpt-3.5-turbo"), ModelCost(500, 500, "some-future-model"))
}

func TestHitSaving_NeverNegative(t *testing.T) {
	saving, tokens := HitSaving("short", "short", "gpt-3.5-turbo")
	assert.GreaterOrEqual(t, saving, 0.0)
	assert.Equal(t, 20, tokens)

	// A long GPT-4 answer saves real money.
	saving, _ = HitSaving(strings.Repeat("q", 4000), strings.Repeat("a", 4000), "gpt-4")
	assert.Greater(t, saving, 0.0)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "what is a goroutine", NormalizeQuery("  What   IS a\tGoroutine "))
	assert.Equal(t, "", NormalizeQuery("   "))
}

func TestQueryHash_StableAcrossPhrasings(t *testing.T) {
	a := QueryHash("What is Redis?")
	b := QueryHash("  what   is redis? ")
	c := QueryHash("what is memcached?")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

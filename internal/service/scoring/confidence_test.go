package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreConfidenceTier3Cap(t *testing.T) {
	// A single tier-3 mention and a thousand tier-3 mentions land under
	// the same ceiling: volume alone never buys trust.
	single := ScoreConfidence(0, 0, 1, 0.4)
	flood := ScoreConfidence(0, 0, 1000, 0.4)

	assert.True(t, single.IsTier3Only)
	assert.True(t, flood.IsTier3Only)
	assert.LessOrEqual(t, single.Score, 0.4)
	assert.LessOrEqual(t, flood.Score, 0.4)
	assert.True(t, flood.Breakdown.Tier3Capped)
	assert.Equal(t, 0.4, flood.Breakdown.Ceiling)
}

func TestScoreConfidenceCorroborationLiftsCap(t *testing.T) {
	capped := ScoreConfidence(0, 0, 200, 0.4)
	lifted := ScoreConfidence(0, 1, 200, 0.4)

	assert.False(t, lifted.IsTier3Only)
	assert.True(t, lifted.HasTier12Corroboration)
	assert.Greater(t, lifted.Score, capped.Score)
	assert.Equal(t, 1.0, lifted.Breakdown.Ceiling)
}

func TestScoreConfidenceDiversity(t *testing.T) {
	// Same total volume, more distinct tiers, higher score.
	narrow := ScoreConfidence(9, 0, 0, 0.4)
	broad := ScoreConfidence(3, 3, 3, 0.4)

	assert.Greater(t, broad.Score, narrow.Score)
	assert.InDelta(t, 1.0, broad.Breakdown.DiversityFactor, 0.001)
	assert.InDelta(t, 1.0/3.0, narrow.Breakdown.DiversityFactor, 0.001)
}

func TestScoreConfidenceEmpty(t *testing.T) {
	c := ScoreConfidence(0, 0, 0, 0.4)

	assert.Equal(t, 0.0, c.Score)
	assert.False(t, c.IsTier3Only)
	assert.False(t, c.HasTier12Corroboration)
}

func TestScoreConfidenceBounded(t *testing.T) {
	c := ScoreConfidence(100000, 100000, 100000, 0.4)

	assert.LessOrEqual(t, c.Score, 1.0)
	assert.LessOrEqual(t, c.Breakdown.VolumeFactor, 1.0)
}

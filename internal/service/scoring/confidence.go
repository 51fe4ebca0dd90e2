package scoring

import (
	"math"

	"trendpulse/internal/domain/trend"
)

// volumeWeight and diversityWeight split the base confidence between
// evidence volume and source-tier diversity.
const (
	volumeWeight    = 0.6
	diversityWeight = 0.4
)

// ScoreConfidence combines source-tier diversity and evidence volume
// into a confidence score in [0,1]. Tier-3-only clusters are capped at
// the configured ceiling regardless of volume so a single low-trust
// source can never manufacture a trend on its own; corroboration from a
// tier-1 or tier-2 source lifts the cap.
func ScoreConfidence(tier1, tier2, tier3 int, tier3Ceiling float64) trend.Confidence {
	total := tier1 + tier2 + tier3

	c := trend.Confidence{
		HasTier12Corroboration: tier1+tier2 > 0,
		IsTier3Only:            tier3 > 0 && tier1+tier2 == 0,
	}
	if total == 0 {
		return c
	}

	// Volume saturates logarithmically: 100 corroborating mentions are
	// not a hundred times more convincing than one.
	volume := math.Log10(1+float64(total)) / 2
	if volume > 1 {
		volume = 1
	}

	tiers := 0
	for _, n := range []int{tier1, tier2, tier3} {
		if n > 0 {
			tiers++
		}
	}
	diversity := float64(tiers) / 3

	ceiling := 1.0
	if c.IsTier3Only {
		ceiling = tier3Ceiling
	}

	score := volumeWeight*volume + diversityWeight*diversity
	capped := false
	if score > ceiling {
		score = ceiling
		capped = c.IsTier3Only
	}

	c.Score = score
	c.Breakdown = trend.ConfidenceBreakdown{
		VolumeFactor:    volume,
		DiversityFactor: diversity,
		Ceiling:         ceiling,
		Tier3Capped:     capped,
	}

	return c
}

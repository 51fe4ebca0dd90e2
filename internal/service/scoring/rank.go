package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"trendpulse/internal/domain/trend"
)

// ComposerConfig contains configuration for rank composition.
type ComposerConfig struct {
	ZScoreWeight       float64
	ConfidenceWeight   float64
	LabelQualityWeight float64
	DecayHalfLife      time.Duration
	EvergreenRelStdDev float64
	BreakingMaxAge     time.Duration
}

// Composer merges velocity, confidence, recency decay, and label
// quality into a single ordering score and decides the trending and
// breaking flags.
type Composer struct {
	config ComposerConfig
}

// NewComposer creates a new rank composer.
func NewComposer(config ComposerConfig) *Composer {
	if config.DecayHalfLife <= 0 {
		config.DecayHalfLife = 6 * time.Hour
	}
	return &Composer{config: config}
}

// Compose fills the event's derived ordering fields in place: label
// quality, evergreen penalty, recency decay, rank score, and the
// trending/breaking flags. A stable event carries no rank score; it has
// no current signal to order by.
func (c *Composer) Compose(e *trend.TrendEvent, b trend.Baseline, now time.Time) {
	e.LabelQuality = LabelQuality(e.CanonicalLabel, e.LabelSource)
	e.EvergreenPenalty = c.evergreenPenalty(b)
	e.RecencyDecay = c.recencyDecay(e.LastSeenAt, now)

	e.IsTrending = e.Stage == trend.StageSurging || e.Stage == trend.StagePeaking ||
		(e.Stage == trend.StageEmerging && e.Confidence >= 0.3)

	e.IsBreaking = e.IsTrending &&
		e.Stage == trend.StageSurging &&
		e.ConfidenceBreakdown.Tier3Capped == false &&
		e.Tier1Count+e.Tier2Count > 0 &&
		now.Sub(e.FirstSeenAt) <= c.config.BreakingMaxAge

	if e.Stage == trend.StageStable && !e.IsTrending {
		e.RankScore = nil
		return
	}

	signal := c.signalStrength(e)
	rank := c.config.ZScoreWeight*signal +
		c.config.ConfidenceWeight*e.Confidence +
		c.config.LabelQualityWeight*e.LabelQuality
	rank = (rank - e.EvergreenPenalty) * e.RecencyDecay
	if rank < 0 {
		rank = 0
	}

	e.RankScore = &rank
}

// signalStrength squashes the z-score into [0,1). Without a defined
// baseline it falls back to an absolute-volume heuristic on the hourly
// velocity.
func (c *Composer) signalStrength(e *trend.TrendEvent) float64 {
	if e.ZScore != nil && *e.ZScore > 0 {
		return *e.ZScore / (*e.ZScore + 5)
	}
	if e.Velocity1h > 0 {
		return e.Velocity1h / (e.Velocity1h + 10)
	}
	return 0
}

// evergreenPenalty down-weights perennial topics whose volume is always
// elevated: a baseline with meaningful mean volume but low relative
// deviation is uninformative as a trend.
func (c *Composer) evergreenPenalty(b trend.Baseline) float64 {
	if !b.Defined || b.Avg7d < 1 {
		return 0
	}
	if b.RelStdDev < c.config.EvergreenRelStdDev {
		return 0.2
	}
	return 0
}

func (c *Composer) recencyDecay(lastSeen time.Time, now time.Time) float64 {
	if lastSeen.IsZero() || !now.After(lastSeen) {
		return 1
	}
	age := now.Sub(lastSeen)
	return math.Exp(-math.Ln2 * float64(age) / float64(c.config.DecayHalfLife))
}

// LabelQuality scores how informative a canonical label is. Generated
// fallback labels and entity-only labels rank below labels derived from
// an event phrase; very short labels are penalized as generic.
func LabelQuality(label string, source trend.LabelSource) float64 {
	var q float64
	switch source {
	case trend.LabelFromPhrase:
		q = 1.0
	case trend.LabelEntityOnly:
		q = 0.7
	case trend.LabelFallback:
		q = 0.4
	default:
		q = 0.4
	}

	if len(strings.Fields(label)) < 2 {
		q *= 0.8
	}

	return q
}

// OrderFeed sorts events into the exact trending feed order:
// is_breaking descending, then rank_score descending with nulls last,
// then confidence_score descending. The same tie-break is applied by
// the SQL feed query; this helper keeps in-memory consumers and tests
// deterministic.
func OrderFeed(events []trend.TrendEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]

		if a.IsBreaking != b.IsBreaking {
			return a.IsBreaking
		}

		switch {
		case a.RankScore == nil && b.RankScore == nil:
		case a.RankScore == nil:
			return false
		case b.RankScore == nil:
			return true
		case *a.RankScore != *b.RankScore:
			return *a.RankScore > *b.RankScore
		}

		return a.Confidence > b.Confidence
	})
}

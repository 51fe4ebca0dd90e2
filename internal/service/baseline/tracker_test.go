package baseline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trendpulse/internal/domain/trend"
)

var base = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	return NewTracker(Config{Shards: 4, MinObservations: 3})
}

// feedConstantRate folds `perHour` observations into every hour of the
// trailing `days` ending at `end`.
func feedConstantRate(tr *Tracker, topic string, perHour, days int, end time.Time) {
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	for at := start; at.Before(end); at = at.Add(time.Hour) {
		for i := 0; i < perHour; i++ {
			tr.Update(topic, at.Add(time.Duration(i)*time.Minute))
		}
	}
}

func TestGetUndefinedBelowMinObservations(t *testing.T) {
	tr := newTestTracker()

	// Three mentions inside a single hour are one data point.
	tr.Update("sparse", base.Add(-2*time.Hour))
	tr.Update("sparse", base.Add(-2*time.Hour+10*time.Minute))
	tr.Update("sparse", base.Add(-2*time.Hour+20*time.Minute))

	b := tr.Get("sparse", base)
	assert.False(t, b.Defined)
	assert.Equal(t, 1, b.Observations)

	tr.Update("sparse", base.Add(-3*time.Hour))
	tr.Update("sparse", base.Add(-4*time.Hour))

	b = tr.Get("sparse", base)
	assert.True(t, b.Defined)
	assert.Equal(t, 3, b.Observations)
}

func TestGetConstantRateBaseline(t *testing.T) {
	tr := newTestTracker()
	feedConstantRate(tr, "steady", 2, 7, base)

	b := tr.Get("steady", base)
	assert.True(t, b.Defined)
	assert.InDelta(t, 2.0, b.Avg7d, 0.01)
	assert.InDelta(t, 0.0, b.HourlyStdDev, 0.01)
	assert.GreaterOrEqual(t, b.HourlyStdDev, 0.0)
}

func TestGetExcludesCurrentHour(t *testing.T) {
	tr := newTestTracker()
	feedConstantRate(tr, "steady", 2, 7, base)

	// A burst inside the in-progress hour must not inflate the baseline
	// it is measured against.
	for i := 0; i < 40; i++ {
		tr.Update("steady", base.Add(time.Duration(i)*time.Minute))
	}

	b := tr.Get("steady", base)
	assert.InDelta(t, 2.0, b.Avg7d, 0.01)
}

func TestDeterministicReplay(t *testing.T) {
	stamps := []time.Time{
		base.Add(-30 * time.Hour),
		base.Add(-20 * time.Hour),
		base.Add(-20*time.Hour + 5*time.Minute),
		base.Add(-6 * time.Hour),
		base.Add(-90 * time.Minute),
	}

	a := newTestTracker()
	b := newTestTracker()
	for _, at := range stamps {
		a.Update("replay", at)
	}
	// Same stream in a different arrival order.
	for i := len(stamps) - 1; i >= 0; i-- {
		b.Update("replay", stamps[i])
	}

	assert.Equal(t, a.Get("replay", base), b.Get("replay", base))
}

func TestLongWindowFoldsOut(t *testing.T) {
	tr := newTestTracker()

	tr.Update("ancient", base.Add(-45*24*time.Hour))
	feedConstantRate(tr, "ancient", 1, 2, base)

	b := tr.Get("ancient", base)
	// The 45-day-old bucket is folded out: only the 48 recent
	// observations remain, averaged over the full 30-day window.
	assert.InDelta(t, 48.0/720.0, b.Avg30d, 0.01)
}

func TestSeededBaselineUsedUntilFreshBuckets(t *testing.T) {
	tr := newTestTracker()

	seeded := trend.Baseline{
		TopicKey:     "restored",
		Avg7d:        3.5,
		HourlyStdDev: 1.2,
		Observations: 100,
		Defined:      true,
	}
	tr.Seed(seeded)

	got := tr.Get("restored", base)
	assert.Equal(t, seeded, got)

	// Fresh observations take over from the seed.
	tr.Update("restored", base.Add(-2*time.Hour))
	got = tr.Get("restored", base)
	assert.Equal(t, 1, got.Observations)
}

package scoring

import (
	"trendpulse/internal/domain/trend"
)

// DetectorConfig contains configuration for velocity and spike
// detection.
type DetectorConfig struct {
	SurgeZScore   float64
	EmergingFloor int
	StdDevEpsilon float64
}

// Detector computes short-window velocity, acceleration, and the
// standardized deviation against a topic's baseline, then classifies
// the lifecycle stage. The computation is pure: it never touches
// storage or the clock.
type Detector struct {
	config DetectorConfig
}

// NewDetector creates a new velocity detector.
func NewDetector(config DetectorConfig) *Detector {
	if config.StdDevEpsilon <= 0 {
		config.StdDevEpsilon = 0.5
	}
	return &Detector{config: config}
}

// Measure produces the cluster's current metrics from its window counts
// and baseline. The z-score is nil when the baseline is undefined so
// sparse topics are never scored by division against a zero deviation.
func (d *Detector) Measure(counts trend.WindowCounts, b trend.Baseline, prevStage trend.Stage, wasTrending bool) trend.Metrics {
	m := trend.Metrics{
		Velocity1h: float64(counts.Last1h),
		Velocity6h: float64(counts.Last6h) / 6,
	}
	m.Acceleration = m.Velocity1h - m.Velocity6h

	if b.Defined {
		std := b.HourlyStdDev
		if std < d.config.StdDevEpsilon {
			std = d.config.StdDevEpsilon
		}
		z := (m.Velocity1h - b.Avg7d) / std
		m.ZScore = &z
	}

	m.Stage = trend.NextStage(prevStage, trend.StageInputs{
		ZScore:          m.ZScore,
		Acceleration:    m.Acceleration,
		Velocity1h:      m.Velocity1h,
		Volume1h:        counts.Last1h,
		BaselineDefined: b.Defined,
		BaselineMean:    b.Avg7d,
		WasTrending:     wasTrending,
	}, trend.StageThresholds{
		SurgeZScore:   d.config.SurgeZScore,
		EmergingFloor: d.config.EmergingFloor,
	})

	return m
}

// SpikeMagnitude is the percent-over-baseline of the current velocity,
// recorded once at spike detection time.
func SpikeMagnitude(velocity1h, baselineMean float64) float64 {
	if baselineMean <= 0 {
		return 0
	}
	return (velocity1h/baselineMean - 1) * 100
}

// SpikeFired reports whether a spike should fire for this pass: exactly
// once when a cluster enters a surge episode, not again while the
// episode continues.
func SpikeFired(prevStage, nextStage trend.Stage) bool {
	return nextStage.InSurgeEpisode() && !prevStage.InSurgeEpisode()
}

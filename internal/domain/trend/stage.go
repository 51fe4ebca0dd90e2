package trend

// Stage is the lifecycle stage of a trend event.
type Stage string

const (
	StageEmerging  Stage = "emerging"
	StageSurging   Stage = "surging"
	StagePeaking   Stage = "peaking"
	StageDeclining Stage = "declining"
	StageStable    Stage = "stable"
)

// StageInputs are the current metrics a stage transition is decided on.
// ZScore is nil when the topic's baseline is undefined.
type StageInputs struct {
	ZScore          *float64
	Acceleration    float64
	Velocity1h      float64
	Volume1h        int
	BaselineDefined bool
	BaselineMean    float64
	WasTrending     bool
}

// StageThresholds configure the stage classification rules.
type StageThresholds struct {
	// SurgeZScore is the standardized deviation at which a topic counts
	// as surging or peaking.
	SurgeZScore float64

	// EmergingFloor is the minimum 1h volume for a topic without a
	// baseline to count as emerging.
	EmergingFloor int
}

// NextStage classifies the lifecycle stage from the previous stage and
// the current metrics. Rules are ordered; the first match wins:
//
//	surging   z >= surge threshold and accelerating
//	peaking   z >= surge threshold and no longer accelerating
//	emerging  baseline undefined and current volume at or above the floor
//	declining velocity below the baseline mean after having trended
//	stable    everything else
func NextStage(prev Stage, in StageInputs, th StageThresholds) Stage {
	if in.ZScore != nil && *in.ZScore >= th.SurgeZScore {
		if in.Acceleration > 0 {
			return StageSurging
		}
		return StagePeaking
	}

	if !in.BaselineDefined {
		if in.Volume1h >= th.EmergingFloor {
			return StageEmerging
		}
		return StageStable
	}

	if in.Velocity1h < in.BaselineMean && in.WasTrending {
		return StageDeclining
	}

	return StageStable
}

// InSurgeEpisode reports whether a stage belongs to an ongoing surge
// episode. A spike fires once when a cluster enters an episode and not
// again until the episode ends.
func (s Stage) InSurgeEpisode() bool {
	return s == StageSurging || s == StagePeaking
}

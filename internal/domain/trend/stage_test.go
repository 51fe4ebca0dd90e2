package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func zp(v float64) *float64 { return &v }

func TestNextStage(t *testing.T) {
	th := StageThresholds{SurgeZScore: 3.0, EmergingFloor: 5}

	tests := []struct {
		name string
		prev Stage
		in   StageInputs
		want Stage
	}{
		{
			name: "high z-score and accelerating is surging",
			prev: StageStable,
			in:   StageInputs{ZScore: zp(4.2), Acceleration: 1.5, BaselineDefined: true},
			want: StageSurging,
		},
		{
			name: "high z-score without acceleration is peaking",
			prev: StageSurging,
			in:   StageInputs{ZScore: zp(3.5), Acceleration: -0.3, BaselineDefined: true},
			want: StagePeaking,
		},
		{
			name: "surge threshold exactly met counts as surging",
			prev: StageStable,
			in:   StageInputs{ZScore: zp(3.0), Acceleration: 0.1, BaselineDefined: true},
			want: StageSurging,
		},
		{
			name: "no baseline with volume above floor is emerging",
			prev: StageStable,
			in:   StageInputs{Volume1h: 8, BaselineDefined: false},
			want: StageEmerging,
		},
		{
			name: "no baseline below volume floor stays stable",
			prev: StageStable,
			in:   StageInputs{Volume1h: 2, BaselineDefined: false},
			want: StageStable,
		},
		{
			name: "below baseline mean after trending is declining",
			prev: StageSurging,
			in: StageInputs{
				ZScore:          zp(-0.5),
				Velocity1h:      1,
				BaselineDefined: true,
				BaselineMean:    4,
				WasTrending:     true,
			},
			want: StageDeclining,
		},
		{
			name: "below baseline mean without trending history is stable",
			prev: StageStable,
			in: StageInputs{
				ZScore:          zp(-0.5),
				Velocity1h:      1,
				BaselineDefined: true,
				BaselineMean:    4,
				WasTrending:     false,
			},
			want: StageStable,
		},
		{
			name: "surge rule wins over declining rule",
			prev: StageDeclining,
			in: StageInputs{
				ZScore:          zp(6),
				Acceleration:    2,
				Velocity1h:      1,
				BaselineDefined: true,
				BaselineMean:    4,
				WasTrending:     true,
			},
			want: StageSurging,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextStage(tt.prev, tt.in, th)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInSurgeEpisode(t *testing.T) {
	assert.True(t, StageSurging.InSurgeEpisode())
	assert.True(t, StagePeaking.InSurgeEpisode())
	assert.False(t, StageEmerging.InSurgeEpisode())
	assert.False(t, StageDeclining.InSurgeEpisode())
	assert.False(t, StageStable.InSurgeEpisode())
}

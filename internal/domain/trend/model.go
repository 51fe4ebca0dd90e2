package trend

import (
	"errors"
	"fmt"
	"time"
)

// Common errors shared across the engine and its adapters.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateMention = errors.New("duplicate mention")
)

// SourceTier classifies source trustworthiness: 1 is highest, 3 is lowest.
type SourceTier int

const (
	TierPrimary   SourceTier = 1
	TierSecondary SourceTier = 2
	TierLowTrust  SourceTier = 3
)

// Valid reports whether the tier is one of the three known tiers.
func (t SourceTier) Valid() bool {
	return t >= TierPrimary && t <= TierLowTrust
}

// LabelSource records where an event's canonical label came from.
type LabelSource string

const (
	LabelFromPhrase LabelSource = "phrase"
	LabelFallback   LabelSource = "fallback"
	LabelEntityOnly LabelSource = "entity"
)

// Mention is one observation of a topic or entity from one source at one
// time. Mentions are immutable once recorded; raw mention identity is
// owned by the ingest collaborator and referenced via RawTextRef.
type Mention struct {
	TopicKey   string
	EntityType string
	SourceID   string
	SourceTier SourceTier
	ObservedAt time.Time
	RawTextRef string
	DedupKey   string
}

// IdentityKey is the uniqueness key a mention is deduplicated on. Two
// mentions sharing an identity key would inflate counts and must
// collapse to one.
func (m Mention) IdentityKey() string {
	return fmt.Sprintf("%s|%s|%s", m.TopicKey, m.SourceID, m.DedupKey)
}

// Baseline holds rolling historical volume statistics for one topic.
// Defined is false until the topic reaches the minimum observation
// count; an undefined baseline excludes the topic from z-score spike
// detection.
type Baseline struct {
	TopicKey     string
	Avg7d        float64
	Avg30d       float64
	HourlyStdDev float64
	RelStdDev    float64
	Observations int
	Defined      bool
	UpdatedAt    time.Time
}

// WindowCounts are the current mention counts for a cluster at the four
// scoring windows.
type WindowCounts struct {
	Last15m int `json:"count_15m"`
	Last1h  int `json:"count_1h"`
	Last6h  int `json:"count_6h"`
	Last24h int `json:"count_24h"`
}

// Metrics is the output of a velocity/spike measurement for one cluster.
// ZScore is nil when the baseline is undefined.
type Metrics struct {
	Velocity1h   float64
	Velocity6h   float64
	Acceleration float64
	ZScore       *float64
	Stage        Stage
}

// ConfidenceBreakdown retains the factors that produced a confidence
// score so downstream consumers can audit why it was assigned.
type ConfidenceBreakdown struct {
	VolumeFactor    float64 `json:"volume_factor"`
	DiversityFactor float64 `json:"diversity_factor"`
	Ceiling         float64 `json:"ceiling"`
	Tier3Capped     bool    `json:"tier3_capped"`
}

// Confidence is a corroboration score in [0,1] with its breakdown.
type Confidence struct {
	Score                  float64
	HasTier12Corroboration bool
	IsTier3Only            bool
	Breakdown              ConfidenceBreakdown
}

// TrendEvent is the canonical unit surfaced to consumers: one cluster of
// near-duplicate topic labels with its scoring and lifecycle metadata.
// The engine exclusively owns the derived fields (velocities, scores,
// stage) and never hard-deletes an event; archival is external policy.
type TrendEvent struct {
	EventKey       string      `json:"event_key"`
	CanonicalLabel string      `json:"canonical_label"`
	AliasVariants  []string    `json:"alias_variants"`
	LabelSource    LabelSource `json:"label_source"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	PeakAt      time.Time `json:"peak_at"`

	Counts       WindowCounts `json:"counts"`
	Velocity1h   float64      `json:"velocity_1h"`
	Velocity6h   float64      `json:"velocity_6h"`
	Acceleration float64      `json:"acceleration"`
	ZScore       *float64     `json:"z_score"`
	Stage        Stage        `json:"trend_stage"`

	IsTrending bool `json:"is_trending"`
	IsBreaking bool `json:"is_breaking"`

	Confidence          float64             `json:"confidence_score"`
	ConfidenceBreakdown ConfidenceBreakdown `json:"confidence_breakdown"`
	Tier1Count          int                 `json:"tier1_count"`
	Tier2Count          int                 `json:"tier2_count"`
	Tier3Count          int                 `json:"tier3_count"`

	RankScore        *float64 `json:"rank_score"`
	LabelQuality     float64  `json:"label_quality"`
	EvergreenPenalty float64  `json:"evergreen_penalty"`
	RecencyDecay     float64  `json:"recency_decay"`

	SpikeDetectedAt *time.Time `json:"spike_detected_at,omitempty"`
	SpikeMagnitude  float64    `json:"spike_magnitude"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Filter defines criteria for the trending feed query.
type Filter struct {
	TrendingOnly  bool
	UpdatedWithin time.Duration
	Limit         int
	Offset        int
}

// PassReport summarizes one scoring pass for the observability
// collaborator.
type PassReport struct {
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	MentionsProcessed int           `json:"mentions_processed"`
	ClustersScored    int           `json:"clusters_scored"`
	ClustersCreated   int           `json:"clusters_created"`
	ClustersMerged    int           `json:"clusters_merged"`
	ClustersSkipped   int           `json:"clusters_skipped"`
	SpikesDetected    int           `json:"spikes_detected"`
	TopicErrors       int           `json:"topic_errors"`
}

// JobFailure is the structured failure record emitted when a pass cannot
// complete, consumed by the external heartbeat/SLA monitor.
type JobFailure struct {
	Job       string    `json:"job"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

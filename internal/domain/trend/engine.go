package trend

import (
	"context"
	"time"
)

// SubmitResult is the outcome of one mention submission.
type SubmitResult string

const (
	SubmitAccepted  SubmitResult = "accepted"
	SubmitDuplicate SubmitResult = "duplicate"
)

// Ingestor accepts normalized mention records from source adapters.
type Ingestor interface {
	// Submit records a mention, rejecting exact repeats of the same
	// (topic, source, dedup key) triple as duplicates.
	Submit(ctx context.Context, m Mention) (SubmitResult, error)
}

// Engine runs scoring passes over buffered mentions and serves the
// trending feed. Passes are triggered by an external scheduler; the
// engine does not self-schedule.
type Engine interface {
	// RunScoringPass scores every active topic once. It is idempotent
	// for overlapping windows and isolates per-topic failures.
	RunScoringPass(ctx context.Context, batchWindow time.Duration) (PassReport, error)

	// Feed returns trend events matching the filter in the feed order:
	// is_breaking desc, rank_score desc (nulls last), confidence desc.
	Feed(ctx context.Context, f Filter) ([]TrendEvent, error)

	// Event returns a single trend event by its stable key.
	Event(ctx context.Context, eventKey string) (*TrendEvent, error)
}

// EventStore is the persistence collaborator's trend event table. Writes
// are applied atomically per cluster.
type EventStore interface {
	UpsertEvent(ctx context.Context, e TrendEvent) error
	GetEvent(ctx context.Context, eventKey string) (*TrendEvent, error)
	FeedPage(ctx context.Context, f Filter) ([]TrendEvent, error)
}

// BaselineStore persists per-topic baseline aggregates so passes are
// replayable across restarts.
type BaselineStore interface {
	UpsertBaseline(ctx context.Context, b Baseline) error
	LoadBaselines(ctx context.Context) ([]Baseline, error)
}

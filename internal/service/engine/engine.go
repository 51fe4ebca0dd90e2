package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"trendpulse/internal/domain/trend"
	"trendpulse/internal/service/baseline"
	"trendpulse/internal/service/cluster"
	"trendpulse/internal/service/ingest"
	"trendpulse/internal/service/scoring"
)

const jobName = "trend_scoring_pass"

// Config contains configuration for the scoring engine.
type Config struct {
	PassTimeout time.Duration
	DecayWindow time.Duration
	EventsTopic string
}

// Publisher is the observability collaborator boundary. Satisfied by
// *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Engine runs scoring passes over the buffered mention stream and
// serves the trending feed. It is invoked on a cadence by an external
// scheduler and never self-schedules; a failed or abandoned pass is
// surfaced as a job failure record and picked up fresh on the next
// invocation.
type Engine struct {
	buffer    *ingest.Buffer
	tracker   *baseline.Tracker
	clusterer *cluster.Clusterer
	detector  *scoring.Detector
	composer  *scoring.Composer
	events    trend.EventStore
	baselines trend.BaselineStore
	bus       Publisher
	logger    *slog.Logger
	config    Config
	clock     func() time.Time

	tier3Ceiling float64

	leaseMu sync.Mutex
	leases  map[string]*sync.Mutex

	statsMu      sync.Mutex
	lastAccepted uint64
}

// New creates a new scoring engine.
func New(
	buffer *ingest.Buffer,
	tracker *baseline.Tracker,
	clusterer *cluster.Clusterer,
	detector *scoring.Detector,
	composer *scoring.Composer,
	events trend.EventStore,
	baselines trend.BaselineStore,
	bus Publisher,
	tier3Ceiling float64,
	config Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		buffer:       buffer,
		tracker:      tracker,
		clusterer:    clusterer,
		detector:     detector,
		composer:     composer,
		events:       events,
		baselines:    baselines,
		bus:          bus,
		tier3Ceiling: tier3Ceiling,
		config:       config,
		logger:       logger,
		clock:        time.Now,
		leases:       make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the engine's clock. Used by tests.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// RestoreBaselines seeds the tracker from persisted baseline aggregates
// so a restarted engine does not treat every topic as sparse.
func (e *Engine) RestoreBaselines(ctx context.Context) error {
	if e.baselines == nil {
		return nil
	}
	stored, err := e.baselines.LoadBaselines(ctx)
	if err != nil {
		return fmt.Errorf("loading baselines: %w", err)
	}
	for _, b := range stored {
		e.tracker.Seed(b)
	}
	e.logger.Info("baselines restored", "count", len(stored))
	return nil
}

// RunScoringPass scores every active cluster once. batchWindow is the
// scheduler's activity horizon: a cluster that has already settled
// stable and saw no mention inside the window is skipped, since
// rescoring it is an identity. Per-cluster failures are isolated: an
// error in one topic's processing never aborts the rest of the batch.
// Cancellation or the pass timeout abandons the pass cleanly; clusters
// already written stay consistent because each write is a single atomic
// upsert.
func (e *Engine) RunScoringPass(ctx context.Context, batchWindow time.Duration) (trend.PassReport, error) {
	now := e.clock()
	report := trend.PassReport{StartedAt: now}

	if e.config.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.PassTimeout)
		defer cancel()
	}

	report.MentionsProcessed = e.takeMentionDelta()

	// Fold newly active topics into clusters before scoring.
	for _, topic := range e.buffer.ActiveTopics(now) {
		if err := ctx.Err(); err != nil {
			return e.failPass(report, now, err)
		}
		counts := e.buffer.Counts(topic, now)
		if counts.Last24h == 0 && !e.clusterer.Known(topic) {
			// Corroborate-only topics never seed new clusters.
			continue
		}
		res := e.clusterer.Assign(topic, "")
		if res.Created {
			report.ClustersCreated++
		}
		if res.Merged {
			report.ClustersMerged++
		}
	}

	for _, info := range e.clusterer.Clusters() {
		if err := ctx.Err(); err != nil {
			return e.failPass(report, now, err)
		}

		lease := e.leaseFor(info.EventKey)
		if !lease.TryLock() {
			// Another pass holds this cluster; overlapping schedules
			// must not interleave stage transitions.
			report.ClustersSkipped++
			continue
		}

		prev, err := e.events.GetEvent(ctx, info.EventKey)
		if errors.Is(err, trend.ErrNotFound) {
			prev, err = nil, nil
		}
		if err != nil {
			lease.Unlock()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return e.failPass(report, now, err)
			}
			report.TopicErrors++
			e.logger.Error("cluster load failed",
				"event_key", info.EventKey, "label", info.CanonicalLabel, "error", err)
			continue
		}

		if e.settled(prev, info, now, batchWindow) {
			lease.Unlock()
			report.ClustersSkipped++
			continue
		}

		spiked, err := e.scoreCluster(ctx, info, prev, now)
		lease.Unlock()

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return e.failPass(report, now, err)
			}
			report.TopicErrors++
			e.logger.Error("cluster scoring failed",
				"event_key", info.EventKey, "label", info.CanonicalLabel, "error", err)
			continue
		}

		report.ClustersScored++
		if spiked {
			report.SpikesDetected++
		}
	}

	e.persistBaselines(ctx, now)

	report.Duration = e.clock().Sub(now)
	e.publishJSON(e.config.EventsTopic+".pass.completed", report)
	e.logger.Info("scoring pass completed",
		"duration", report.Duration,
		"clusters_scored", report.ClustersScored,
		"spikes", report.SpikesDetected,
		"errors", report.TopicErrors)

	return report, nil
}

// Feed returns the trending feed in the deterministic feed order.
func (e *Engine) Feed(ctx context.Context, f trend.Filter) ([]trend.TrendEvent, error) {
	return e.events.FeedPage(ctx, f)
}

// Event returns one trend event by key.
func (e *Engine) Event(ctx context.Context, eventKey string) (*trend.TrendEvent, error) {
	return e.events.GetEvent(ctx, eventKey)
}

// settled reports whether a cluster has nothing left to recompute: it
// already sits in its terminal stable state and no member saw a mention
// inside the batch window.
func (e *Engine) settled(prev *trend.TrendEvent, info cluster.Info, now time.Time, batchWindow time.Duration) bool {
	if batchWindow <= 0 {
		return false
	}
	if prev == nil || prev.Stage != trend.StageStable || prev.IsTrending {
		return false
	}
	cutoff := now.Add(-batchWindow)
	for _, member := range info.Members {
		if e.buffer.LastSeen(member).After(cutoff) {
			return false
		}
	}
	return true
}

// scoreCluster recomputes one cluster's metrics and applies the update
// as a single upsert. Scoring the same windows twice converges on the
// same row, which keeps overlapping scheduler invocations idempotent.
func (e *Engine) scoreCluster(ctx context.Context, info cluster.Info, prev *trend.TrendEvent, now time.Time) (bool, error) {
	var counts trend.WindowCounts
	var tier1, tier2, tier3 int
	lastSeen := time.Time{}
	for _, member := range info.Members {
		mc := e.buffer.Counts(member, now)
		counts.Last15m += mc.Last15m
		counts.Last1h += mc.Last1h
		counts.Last6h += mc.Last6h
		counts.Last24h += mc.Last24h

		t1, t2, t3 := e.buffer.TierCounts(member, now)
		tier1 += t1
		tier2 += t2
		tier3 += t3

		if ls := e.buffer.LastSeen(member); ls.After(lastSeen) {
			lastSeen = ls
		}
	}

	bl := e.mergedBaseline(info, now)

	prevStage := trend.StageStable
	wasTrending := false
	if prev != nil {
		prevStage = prev.Stage
		wasTrending = prev.IsTrending
		if prev.LastSeenAt.After(lastSeen) {
			lastSeen = prev.LastSeenAt
		}
	}
	if lastSeen.IsZero() {
		lastSeen = now
	}

	metrics := e.detector.Measure(counts, bl, prevStage, wasTrending)

	// A cluster with no new mentions inside the decay window settles
	// into its terminal stable state; it is never deleted here.
	if now.Sub(lastSeen) > e.config.DecayWindow {
		metrics.Stage = trend.StageStable
	}

	conf := scoring.ScoreConfidence(tier1, tier2, tier3, e.tier3Ceiling)

	ev := trend.TrendEvent{
		EventKey:            info.EventKey,
		CanonicalLabel:      info.CanonicalLabel,
		AliasVariants:       info.AliasVariants,
		LabelSource:         info.LabelSource,
		FirstSeenAt:         info.FirstSeenAt,
		LastSeenAt:          lastSeen,
		Counts:              counts,
		Velocity1h:          metrics.Velocity1h,
		Velocity6h:          metrics.Velocity6h,
		Acceleration:        metrics.Acceleration,
		ZScore:              metrics.ZScore,
		Stage:               metrics.Stage,
		Confidence:          conf.Score,
		ConfidenceBreakdown: conf.Breakdown,
		Tier1Count:          tier1,
		Tier2Count:          tier2,
		Tier3Count:          tier3,
		UpdatedAt:           now,
	}

	if prev != nil {
		if prev.FirstSeenAt.Before(ev.FirstSeenAt) && !prev.FirstSeenAt.IsZero() {
			ev.FirstSeenAt = prev.FirstSeenAt
		}
		ev.PeakAt = prev.PeakAt
		ev.SpikeDetectedAt = prev.SpikeDetectedAt
		ev.SpikeMagnitude = prev.SpikeMagnitude
		if metrics.Velocity1h > prev.Velocity1h {
			ev.PeakAt = now
		}
	} else {
		ev.PeakAt = now
	}

	spiked := scoring.SpikeFired(prevStage, metrics.Stage)
	if spiked {
		at := now
		ev.SpikeDetectedAt = &at
		ev.SpikeMagnitude = scoring.SpikeMagnitude(metrics.Velocity1h, bl.Avg7d)
	}

	e.composer.Compose(&ev, bl, now)

	if err := e.events.UpsertEvent(ctx, ev); err != nil {
		return false, fmt.Errorf("upserting event: %w", err)
	}

	if spiked {
		e.publishJSON(e.config.EventsTopic+".spike.detected", map[string]interface{}{
			"event_key":       ev.EventKey,
			"canonical_label": ev.CanonicalLabel,
			"z_score":         ev.ZScore,
			"spike_magnitude": ev.SpikeMagnitude,
			"detected_at":     now,
		})
	}

	return spiked, nil
}

// mergedBaseline combines member-topic baselines into a cluster-level
// one: means add, variances add, and the baseline is defined as soon as
// any member has enough history.
func (e *Engine) mergedBaseline(info cluster.Info, now time.Time) trend.Baseline {
	merged := trend.Baseline{TopicKey: info.EventKey, UpdatedAt: now}

	var variance float64
	var relSum float64
	defined := 0
	for _, member := range info.Members {
		b := e.tracker.Get(member, now)
		merged.Observations += b.Observations
		if !b.Defined {
			continue
		}
		defined++
		merged.Avg7d += b.Avg7d
		merged.Avg30d += b.Avg30d
		variance += b.HourlyStdDev * b.HourlyStdDev
		relSum += b.RelStdDev
	}

	if defined > 0 {
		merged.Defined = true
		merged.HourlyStdDev = math.Sqrt(variance)
		merged.RelStdDev = relSum / float64(defined)
	}

	return merged
}

func (e *Engine) persistBaselines(ctx context.Context, now time.Time) {
	if e.baselines == nil {
		return
	}
	for _, topic := range e.tracker.Topics() {
		b := e.tracker.Get(topic, now)
		if b.Observations == 0 {
			continue
		}
		// One topic's persistence failure must not starve the rest.
		if err := e.baselines.UpsertBaseline(ctx, b); err != nil {
			e.logger.Warn("baseline persist failed", "topic", topic, "error", err)
		}
	}
}

// failPass abandons the current pass and emits the structured failure
// record the external SLA monitor alerts on. Nothing is retried
// in-flight; the next scheduled invocation picks the work up fresh.
func (e *Engine) failPass(report trend.PassReport, started time.Time, err error) (trend.PassReport, error) {
	report.Duration = e.clock().Sub(started)

	failure := trend.JobFailure{
		Job:       jobName,
		Error:     err.Error(),
		Timestamp: e.clock(),
	}
	e.publishJSON(e.config.EventsTopic+".job.failed", failure)
	e.logger.Error("scoring pass abandoned", "job", jobName, "error", err)

	return report, fmt.Errorf("scoring pass abandoned: %w", err)
}

func (e *Engine) leaseFor(eventKey string) *sync.Mutex {
	e.leaseMu.Lock()
	defer e.leaseMu.Unlock()

	lease, ok := e.leases[eventKey]
	if !ok {
		lease = &sync.Mutex{}
		e.leases[eventKey] = lease
	}
	return lease
}

func (e *Engine) takeMentionDelta() int {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	stats := e.buffer.Stats()
	delta := stats.Accepted - e.lastAccepted
	e.lastAccepted = stats.Accepted
	return int(delta)
}

func (e *Engine) publishJSON(subject string, payload interface{}) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("event payload marshal failed", "subject", subject, "error", err)
		return
	}
	if err := e.bus.Publish(subject, data); err != nil {
		e.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

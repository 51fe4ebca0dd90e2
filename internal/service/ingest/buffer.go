package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"trendpulse/internal/domain/trend"
)

// BaselineUpdater receives an update for every accepted mention. Calls
// for the same topic are serialized by the buffer's shard lock.
type BaselineUpdater interface {
	Update(topicKey string, observedAt time.Time)
}

// Config contains configuration for the mention ingest buffer.
type Config struct {
	Shards         int
	DedupCacheSize int
	HistoryWindow  time.Duration
}

// Stats are the buffer's observability counters.
type Stats struct {
	Accepted   uint64 `json:"accepted"`
	Duplicates uint64 `json:"duplicates"`
	Rejected   uint64 `json:"rejected"`
}

// entry is one retained observation for a topic.
type entry struct {
	identity        string
	observedAt      time.Time
	tier            trend.SourceTier
	corroborateOnly bool
}

// topicHistory is the retained observation window for one topic. keys
// holds the identity key of every retained entry: uniqueness of the
// (topic, source, dedup key) triple is exact for as long as the original
// observation still counts toward evidence, regardless of cache churn.
type topicHistory struct {
	entries []entry
	keys    map[string]struct{}
}

// shard owns a subset of topic keys. The mutex is the per-topic critical
// section around the dedup check, history append, and baseline update.
type shard struct {
	mu     sync.Mutex
	seen   *lru.Cache[string, struct{}]
	topics map[string]*topicHistory
}

// Buffer accepts normalized mention records from source adapters,
// deduplicates exact repeats, and retains per-topic observation history
// for the scoring windows. Topic keys are sharded so ingest calls for
// different topics run in parallel.
type Buffer struct {
	shards  []*shard
	updater BaselineUpdater
	config  Config
	logger  *slog.Logger

	accepted   atomic.Uint64
	duplicates atomic.Uint64
	rejected   atomic.Uint64
}

// NewBuffer creates a new mention ingest buffer.
func NewBuffer(updater BaselineUpdater, config Config, logger *slog.Logger) (*Buffer, error) {
	if config.Shards <= 0 {
		return nil, fmt.Errorf("shard count must be positive")
	}

	shards := make([]*shard, config.Shards)
	for i := range shards {
		seen, err := lru.New[string, struct{}](config.DedupCacheSize / config.Shards)
		if err != nil {
			return nil, fmt.Errorf("creating dedup cache: %w", err)
		}
		shards[i] = &shard{
			seen:   seen,
			topics: make(map[string]*topicHistory),
		}
	}

	return &Buffer{
		shards:  shards,
		updater: updater,
		config:  config,
		logger:  logger,
	}, nil
}

// Submit records a mention. An identical (topic, source, dedup key)
// triple already recorded is rejected as a duplicate with no side effect
// beyond a counter increment. On accept the mention is appended to the
// topic's history and the baseline update runs under the same lock.
func (b *Buffer) Submit(ctx context.Context, m trend.Mention) (trend.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if m.TopicKey == "" || m.SourceID == "" || !m.SourceTier.Valid() {
		b.rejected.Add(1)
		return "", fmt.Errorf("malformed mention (topic %q, source %q, tier %d)", m.TopicKey, m.SourceID, m.SourceTier)
	}
	if m.ObservedAt.IsZero() {
		m.ObservedAt = time.Now()
	}

	sh := b.shardFor(m.TopicKey)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	hist, ok := sh.topics[m.TopicKey]
	if !ok {
		hist = &topicHistory{keys: make(map[string]struct{})}
		sh.topics[m.TopicKey] = hist
	}

	// The LRU is a fast path only; the retained identity keys make the
	// duplicate check exact while the original observation is still
	// counted.
	key := m.IdentityKey()
	if _, seen := sh.seen.Get(key); seen {
		b.duplicates.Add(1)
		return trend.SubmitDuplicate, nil
	}
	if _, seen := hist.keys[key]; seen {
		b.duplicates.Add(1)
		return trend.SubmitDuplicate, nil
	}
	sh.seen.Add(key, struct{}{})
	hist.keys[key] = struct{}{}

	hist.entries = append(hist.entries, entry{
		identity:   key,
		observedAt: m.ObservedAt,
		tier:       m.SourceTier,
	})

	if b.updater != nil {
		b.updater.Update(m.TopicKey, m.ObservedAt)
	}

	b.accepted.Add(1)
	return trend.SubmitAccepted, nil
}

// MarkCorroborateOnly flags the most recent observation for a topic as
// corroborating evidence that must not count toward window totals. Used
// when the mention's article body was detected as a near-duplicate.
func (b *Buffer) MarkCorroborateOnly(topicKey string) {
	sh := b.shardFor(topicKey)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	hist, ok := sh.topics[topicKey]
	if !ok || len(hist.entries) == 0 {
		return
	}
	hist.entries[len(hist.entries)-1].corroborateOnly = true
}

// Counts returns the topic's mention counts at the scoring windows,
// relative to now. Corroborate-only observations are excluded, as is
// anything beyond the retained history window.
func (b *Buffer) Counts(topicKey string, now time.Time) trend.WindowCounts {
	sh := b.shardFor(topicKey)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	var counts trend.WindowCounts
	hist, ok := sh.topics[topicKey]
	if !ok {
		return counts
	}

	for _, e := range hist.entries {
		if e.corroborateOnly {
			continue
		}
		age := now.Sub(e.observedAt)
		if age < 0 || age > b.config.HistoryWindow {
			continue
		}
		if age <= 24*time.Hour {
			counts.Last24h++
		}
		if age <= 6*time.Hour {
			counts.Last6h++
		}
		if age <= time.Hour {
			counts.Last1h++
		}
		if age <= 15*time.Minute {
			counts.Last15m++
		}
	}

	return counts
}

// TierCounts returns per-tier evidence counts for the topic within the
// retained history window.
func (b *Buffer) TierCounts(topicKey string, now time.Time) (tier1, tier2, tier3 int) {
	sh := b.shardFor(topicKey)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	hist, ok := sh.topics[topicKey]
	if !ok {
		return 0, 0, 0
	}

	for _, e := range hist.entries {
		if e.corroborateOnly {
			continue
		}
		age := now.Sub(e.observedAt)
		if age < 0 || age > b.config.HistoryWindow {
			continue
		}
		switch e.tier {
		case trend.TierPrimary:
			tier1++
		case trend.TierSecondary:
			tier2++
		case trend.TierLowTrust:
			tier3++
		}
	}

	return tier1, tier2, tier3
}

// LastSeen returns the most recent observation time for the topic, or a
// zero time when the topic has no retained history.
func (b *Buffer) LastSeen(topicKey string) time.Time {
	sh := b.shardFor(topicKey)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	hist, ok := sh.topics[topicKey]
	if !ok {
		return time.Time{}
	}

	var last time.Time
	for _, e := range hist.entries {
		if e.observedAt.After(last) {
			last = e.observedAt
		}
	}
	return last
}

// ActiveTopics returns every topic with retained history, sorted for
// deterministic pass ordering. Entries older than the history window are
// pruned as a side effect.
func (b *Buffer) ActiveTopics(now time.Time) []string {
	cutoff := now.Add(-b.config.HistoryWindow)

	var topics []string
	for _, sh := range b.shards {
		sh.mu.Lock()
		for key, hist := range sh.topics {
			kept := hist.entries[:0]
			for _, e := range hist.entries {
				if e.observedAt.After(cutoff) {
					kept = append(kept, e)
					continue
				}
				delete(hist.keys, e.identity)
			}
			hist.entries = kept
			if len(hist.entries) > 0 {
				topics = append(topics, key)
			}
		}
		sh.mu.Unlock()
	}

	sort.Strings(topics)
	return topics
}

// Stats returns a snapshot of the buffer's counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Accepted:   b.accepted.Load(),
		Duplicates: b.duplicates.Load(),
		Rejected:   b.rejected.Load(),
	}
}

func (b *Buffer) shardFor(topicKey string) *shard {
	h := fnv.New32a()
	h.Write([]byte(topicKey))
	return b.shards[h.Sum32()%uint32(len(b.shards))]
}

package baseline

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"trendpulse/internal/domain/trend"
)

const (
	hoursShortWindow = 7 * 24
	hoursLongWindow  = 30 * 24
)

// Config contains configuration for the baseline tracker.
type Config struct {
	Shards          int
	MinObservations int
}

// series is one topic's hourly mention counts, keyed by unix hour.
// Hours older than the long window are folded out; nothing finer than
// hourly resolution is retained.
type series struct {
	buckets   map[int64]int
	firstHour int64
	seeded    *trend.Baseline
}

type shard struct {
	mu     sync.Mutex
	topics map[string]*series
}

// Tracker maintains rolling per-topic volume statistics at 7-day and
// 30-day granularities. Aggregates are recomputed deterministically from
// the hourly buckets, so replaying the same mention timestamps yields
// the same baseline.
type Tracker struct {
	shards []*shard
	config Config
}

// NewTracker creates a new baseline tracker.
func NewTracker(config Config) *Tracker {
	if config.Shards <= 0 {
		config.Shards = 32
	}
	if config.MinObservations <= 0 {
		config.MinObservations = 3
	}

	shards := make([]*shard, config.Shards)
	for i := range shards {
		shards[i] = &shard{topics: make(map[string]*series)}
	}

	return &Tracker{shards: shards, config: config}
}

// Update folds one observation into the topic's hourly buckets.
func (t *Tracker) Update(topicKey string, observedAt time.Time) {
	hour := observedAt.Truncate(time.Hour).Unix()

	sh := t.shardFor(topicKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.topics[topicKey]
	if !ok {
		s = &series{buckets: make(map[int64]int), firstHour: hour}
		sh.topics[topicKey] = s
	}

	s.buckets[hour]++
	if hour < s.firstHour {
		s.firstHour = hour
	}

	// Fold out buckets beyond the 30-day window.
	cutoff := hour - hoursLongWindow*3600
	for h := range s.buckets {
		if h < cutoff {
			delete(s.buckets, h)
		}
	}
	if s.firstHour < cutoff {
		s.firstHour = cutoff
	}
}

// Seed installs a persisted baseline used as the topic's snapshot until
// fresh buckets accumulate after a restart.
func (t *Tracker) Seed(b trend.Baseline) {
	sh := t.shardFor(b.TopicKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.topics[b.TopicKey]
	if !ok {
		s = &series{buckets: make(map[int64]int)}
		sh.topics[b.TopicKey] = s
	}
	seeded := b
	s.seeded = &seeded
}

// Get computes the topic's baseline as of now. The hour containing now
// is excluded so an in-progress spike does not inflate its own baseline.
// A topic with fewer distinct hourly data points than the configured
// minimum has an undefined baseline.
func (t *Tracker) Get(topicKey string, now time.Time) trend.Baseline {
	sh := t.shardFor(topicKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.topics[topicKey]
	if !ok {
		return trend.Baseline{TopicKey: topicKey, UpdatedAt: now}
	}

	if len(s.buckets) == 0 && s.seeded != nil {
		return *s.seeded
	}

	currentHour := now.Truncate(time.Hour).Unix()

	observations := 0
	for h := range s.buckets {
		if h < currentHour {
			observations++
		}
	}

	b := trend.Baseline{
		TopicKey:     topicKey,
		Observations: observations,
		Defined:      observations >= t.config.MinObservations,
		UpdatedAt:    now,
	}

	b.Avg7d, b.HourlyStdDev = windowStats(s, currentHour, hoursShortWindow)
	b.Avg30d, _ = windowStats(s, currentHour, hoursLongWindow)
	if b.Avg7d > 0 {
		b.RelStdDev = b.HourlyStdDev / b.Avg7d
	}

	return b
}

// windowStats returns the mean and standard deviation of the hourly
// counts over the trailing window, zero-filling idle hours between the
// topic's first observation and now.
func windowStats(s *series, currentHour int64, windowHours int64) (mean, stddev float64) {
	start := currentHour - windowHours*3600
	if s.firstHour > start {
		start = s.firstHour
	}

	n := (currentHour - start) / 3600
	if n <= 0 {
		return 0, 0
	}

	var sum float64
	for h := start; h < currentHour; h += 3600 {
		sum += float64(s.buckets[h])
	}
	mean = sum / float64(n)

	var sq float64
	for h := start; h < currentHour; h += 3600 {
		d := float64(s.buckets[h]) - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(n))

	return mean, stddev
}

// Topics returns every topic key with tracked state.
func (t *Tracker) Topics() []string {
	var keys []string
	for _, sh := range t.shards {
		sh.mu.Lock()
		for k := range sh.topics {
			keys = append(keys, k)
		}
		sh.mu.Unlock()
	}
	return keys
}

func (t *Tracker) shardFor(topicKey string) *shard {
	h := fnv.New32a()
	h.Write([]byte(topicKey))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

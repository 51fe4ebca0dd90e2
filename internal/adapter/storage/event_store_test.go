package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendpulse/internal/domain/trend"
)

func newMockEventStore(t *testing.T) (*EventStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)

	return NewEventStore(mockDB), mockDB
}

func sampleEvent() trend.TrendEvent {
	now := time.Date(2025, 1, 20, 12, 55, 0, 0, time.UTC)
	z := 76.0
	rank := 0.81
	spikeAt := now.Add(-10 * time.Minute)

	return trend.TrendEvent{
		EventKey:       "3f2d1c4e-7b9a-4e21-8c35-9d6f0a1b2c3d",
		CanonicalLabel: "grid failure downtown",
		AliasVariants:  []string{"downtown grid failure"},
		LabelSource:    trend.LabelFromPhrase,
		FirstSeenAt:    now.Add(-time.Hour),
		LastSeenAt:     now.Add(-5 * time.Minute),
		PeakAt:         now.Add(-10 * time.Minute),
		Counts:         trend.WindowCounts{Last15m: 12, Last1h: 40, Last6h: 44, Last24h: 58},
		Velocity1h:     40,
		Velocity6h:     7.33,
		Acceleration:   32.67,
		ZScore:         &z,
		Stage:          trend.StageSurging,
		IsTrending:     true,
		IsBreaking:     true,
		Confidence:     0.88,
		ConfidenceBreakdown: trend.ConfidenceBreakdown{
			VolumeFactor:    0.81,
			DiversityFactor: 1,
			Ceiling:         1,
		},
		Tier1Count:       10,
		Tier2Count:       10,
		Tier3Count:       20,
		RankScore:        &rank,
		LabelQuality:     1,
		EvergreenPenalty: 0,
		RecencyDecay:     0.98,
		SpikeDetectedAt:  &spikeAt,
		SpikeMagnitude:   1900,
		UpdatedAt:        now,
	}
}

var eventColumnNames = []string{
	"event_key", "canonical_label", "alias_variants", "label_source",
	"first_seen_at", "last_seen_at", "peak_at",
	"count_15m", "count_1h", "count_6h", "count_24h",
	"velocity_1h", "velocity_6h", "acceleration", "z_score", "trend_stage",
	"is_trending", "is_breaking",
	"confidence_score", "confidence_breakdown",
	"tier1_count", "tier2_count", "tier3_count",
	"rank_score", "label_quality", "evergreen_penalty", "recency_decay",
	"spike_detected_at", "spike_magnitude", "updated_at",
}

func eventRow(e trend.TrendEvent) []interface{} {
	aliasesJSON, _ := json.Marshal(e.AliasVariants)
	breakdownJSON, _ := json.Marshal(e.ConfidenceBreakdown)

	return []interface{}{
		e.EventKey, e.CanonicalLabel, aliasesJSON, string(e.LabelSource),
		e.FirstSeenAt, e.LastSeenAt, e.PeakAt,
		e.Counts.Last15m, e.Counts.Last1h, e.Counts.Last6h, e.Counts.Last24h,
		e.Velocity1h, e.Velocity6h, e.Acceleration, e.ZScore, string(e.Stage),
		e.IsTrending, e.IsBreaking,
		e.Confidence, breakdownJSON,
		e.Tier1Count, e.Tier2Count, e.Tier3Count,
		e.RankScore, e.LabelQuality, e.EvergreenPenalty, e.RecencyDecay,
		e.SpikeDetectedAt, e.SpikeMagnitude, e.UpdatedAt,
	}
}

func TestEventStore_UpsertEvent(t *testing.T) {
	store, mockDB := newMockEventStore(t)
	defer mockDB.Close()

	e := sampleEvent()
	mockDB.ExpectExec("INSERT INTO trend_events").
		WithArgs(eventRow(e)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertEvent(context.Background(), e)
	require.NoError(t, err)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestEventStore_UpsertEvent_DBError(t *testing.T) {
	store, mockDB := newMockEventStore(t)
	defer mockDB.Close()

	mockDB.ExpectExec("INSERT INTO trend_events").
		WithArgs(eventRow(sampleEvent())...).
		WillReturnError(pgx.ErrTxClosed)

	err := store.UpsertEvent(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error executing query")
}

func TestEventStore_GetEvent(t *testing.T) {
	store, mockDB := newMockEventStore(t)
	defer mockDB.Close()

	e := sampleEvent()
	mockDB.ExpectQuery(`(?s)SELECT.+FROM trend_events WHERE event_key`).
		WithArgs(e.EventKey).
		WillReturnRows(pgxmock.NewRows(eventColumnNames).AddRow(eventRow(e)...))

	got, err := store.GetEvent(context.Background(), e.EventKey)
	require.NoError(t, err)
	assert.Equal(t, e, *got)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestEventStore_GetEvent_NotFound(t *testing.T) {
	store, mockDB := newMockEventStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`(?s)SELECT.+FROM trend_events WHERE event_key`).
		WithArgs("missing-key").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.GetEvent(context.Background(), "missing-key")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, trend.ErrNotFound)
}

func TestEventStore_FeedPage(t *testing.T) {
	store, mockDB := newMockEventStore(t)
	defer mockDB.Close()

	first := sampleEvent()
	second := sampleEvent()
	second.EventKey = "8a1b2c3d-4e5f-4a6b-9c8d-7e6f5a4b3c2d"
	second.IsBreaking = false

	// The ordering clause is the feed contract and must appear verbatim.
	mockDB.ExpectQuery(`(?s)SELECT.+FROM trend_events WHERE 1=1 AND is_trending = true` +
		` AND updated_at >= now\(\) - \$1::interval` +
		` ORDER BY is_breaking DESC, rank_score DESC NULLS LAST, confidence_score DESC` +
		` LIMIT \$2 OFFSET \$3`).
		WithArgs("24h0m0s", 10, 5).
		WillReturnRows(pgxmock.NewRows(eventColumnNames).
			AddRow(eventRow(first)...).
			AddRow(eventRow(second)...))

	events, err := store.FeedPage(context.Background(), trend.Filter{
		TrendingOnly:  true,
		UpdatedWithin: 24 * time.Hour,
		Limit:         10,
		Offset:        5,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.EventKey, events[0].EventKey)
	assert.Equal(t, second.EventKey, events[1].EventKey)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestEventStore_FeedPage_DefaultLimit(t *testing.T) {
	store, mockDB := newMockEventStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`(?s)SELECT.+FROM trend_events WHERE 1=1 ORDER BY is_breaking DESC` +
		`, rank_score DESC NULLS LAST, confidence_score DESC LIMIT \$1`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(eventColumnNames))

	events, err := store.FeedPage(context.Background(), trend.Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trendpulse/internal/domain/trend"
)

// EventStore implements trend.EventStore on Postgres. Each upsert is a
// single statement so a cluster update commits all-or-nothing.
type EventStore struct {
	db DB
}

// NewEventStore creates a new trend event store.
func NewEventStore(db DB) *EventStore {
	return &EventStore{db: db}
}

// UpsertEvent saves a trend event, replacing all engine-owned derived
// fields for the cluster.
func (s *EventStore) UpsertEvent(ctx context.Context, e trend.TrendEvent) error {
	query := `
		INSERT INTO trend_events (
			event_key, canonical_label, alias_variants, label_source,
			first_seen_at, last_seen_at, peak_at,
			count_15m, count_1h, count_6h, count_24h,
			velocity_1h, velocity_6h, acceleration, z_score, trend_stage,
			is_trending, is_breaking,
			confidence_score, confidence_breakdown,
			tier1_count, tier2_count, tier3_count,
			rank_score, label_quality, evergreen_penalty, recency_decay,
			spike_detected_at, spike_magnitude, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18,
			$19, $20,
			$21, $22, $23,
			$24, $25, $26, $27,
			$28, $29, $30
		)
		ON CONFLICT (event_key) DO UPDATE
		SET
			canonical_label = $2,
			alias_variants = $3,
			label_source = $4,
			last_seen_at = $6,
			peak_at = $7,
			count_15m = $8,
			count_1h = $9,
			count_6h = $10,
			count_24h = $11,
			velocity_1h = $12,
			velocity_6h = $13,
			acceleration = $14,
			z_score = $15,
			trend_stage = $16,
			is_trending = $17,
			is_breaking = $18,
			confidence_score = $19,
			confidence_breakdown = $20,
			tier1_count = $21,
			tier2_count = $22,
			tier3_count = $23,
			rank_score = $24,
			label_quality = $25,
			evergreen_penalty = $26,
			recency_decay = $27,
			spike_detected_at = $28,
			spike_magnitude = $29,
			updated_at = $30
	`

	breakdownJSON, err := json.Marshal(e.ConfidenceBreakdown)
	if err != nil {
		return fmt.Errorf("error marshaling confidence breakdown: %w", err)
	}

	aliasesJSON, err := json.Marshal(e.AliasVariants)
	if err != nil {
		return fmt.Errorf("error marshaling alias variants: %w", err)
	}

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}

	_, err = s.db.Exec(
		ctx,
		query,
		e.EventKey,
		e.CanonicalLabel,
		aliasesJSON,
		string(e.LabelSource),
		e.FirstSeenAt,
		e.LastSeenAt,
		e.PeakAt,
		e.Counts.Last15m,
		e.Counts.Last1h,
		e.Counts.Last6h,
		e.Counts.Last24h,
		e.Velocity1h,
		e.Velocity6h,
		e.Acceleration,
		e.ZScore,
		string(e.Stage),
		e.IsTrending,
		e.IsBreaking,
		e.Confidence,
		breakdownJSON,
		e.Tier1Count,
		e.Tier2Count,
		e.Tier3Count,
		e.RankScore,
		e.LabelQuality,
		e.EvergreenPenalty,
		e.RecencyDecay,
		e.SpikeDetectedAt,
		e.SpikeMagnitude,
		e.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}

	return nil
}

const eventColumns = `
	event_key, canonical_label, alias_variants, label_source,
	first_seen_at, last_seen_at, peak_at,
	count_15m, count_1h, count_6h, count_24h,
	velocity_1h, velocity_6h, acceleration, z_score, trend_stage,
	is_trending, is_breaking,
	confidence_score, confidence_breakdown,
	tier1_count, tier2_count, tier3_count,
	rank_score, label_quality, evergreen_penalty, recency_decay,
	spike_detected_at, spike_magnitude, updated_at
`

// GetEvent retrieves a trend event by its stable key.
func (s *EventStore) GetEvent(ctx context.Context, eventKey string) (*trend.TrendEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM trend_events WHERE event_key = $1`

	e, err := scanEvent(s.db.QueryRow(ctx, query, eventKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, trend.ErrNotFound
		}
		return nil, fmt.Errorf("error querying event: %w", err)
	}

	return e, nil
}

// FeedPage returns trend events for the trending feed. Ordering is the
// contract: is_breaking descending, then rank_score descending with
// nulls last, then confidence_score descending.
func (s *EventStore) FeedPage(ctx context.Context, f trend.Filter) ([]trend.TrendEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM trend_events WHERE 1=1`

	args := []interface{}{}
	argIndex := 1

	if f.TrendingOnly {
		query += " AND is_trending = true"
	}

	if f.UpdatedWithin > 0 {
		query += fmt.Sprintf(" AND updated_at >= now() - $%d::interval", argIndex)
		args = append(args, f.UpdatedWithin.String())
		argIndex++
	}

	query += " ORDER BY is_breaking DESC, rank_score DESC NULLS LAST, confidence_score DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)
	argIndex++

	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, f.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var events []trend.TrendEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		events = append(events, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// scanEvent reads one trend event row.
func scanEvent(row pgx.Row) (*trend.TrendEvent, error) {
	var e trend.TrendEvent
	var aliasesJSON, breakdownJSON []byte
	var labelSource, stage string

	err := row.Scan(
		&e.EventKey,
		&e.CanonicalLabel,
		&aliasesJSON,
		&labelSource,
		&e.FirstSeenAt,
		&e.LastSeenAt,
		&e.PeakAt,
		&e.Counts.Last15m,
		&e.Counts.Last1h,
		&e.Counts.Last6h,
		&e.Counts.Last24h,
		&e.Velocity1h,
		&e.Velocity6h,
		&e.Acceleration,
		&e.ZScore,
		&stage,
		&e.IsTrending,
		&e.IsBreaking,
		&e.Confidence,
		&breakdownJSON,
		&e.Tier1Count,
		&e.Tier2Count,
		&e.Tier3Count,
		&e.RankScore,
		&e.LabelQuality,
		&e.EvergreenPenalty,
		&e.RecencyDecay,
		&e.SpikeDetectedAt,
		&e.SpikeMagnitude,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.LabelSource = trend.LabelSource(labelSource)
	e.Stage = trend.Stage(stage)

	if len(aliasesJSON) > 0 {
		if err := json.Unmarshal(aliasesJSON, &e.AliasVariants); err != nil {
			return nil, fmt.Errorf("error unmarshaling alias variants: %w", err)
		}
	}
	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &e.ConfidenceBreakdown); err != nil {
			return nil, fmt.Errorf("error unmarshaling confidence breakdown: %w", err)
		}
	}

	return &e, nil
}

package storage

import (
	"context"
	"fmt"

	"trendpulse/internal/domain/trend"
)

// BaselineStore implements trend.BaselineStore on Postgres.
type BaselineStore struct {
	db DB
}

// NewBaselineStore creates a new baseline store.
func NewBaselineStore(db DB) *BaselineStore {
	return &BaselineStore{db: db}
}

// UpsertBaseline saves a topic's rolling aggregates.
func (s *BaselineStore) UpsertBaseline(ctx context.Context, b trend.Baseline) error {
	query := `
		INSERT INTO topic_baselines (
			topic_key, avg_7d, avg_30d, hourly_std_dev, rel_std_dev,
			observations, defined, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (topic_key) DO UPDATE
		SET
			avg_7d = $2,
			avg_30d = $3,
			hourly_std_dev = $4,
			rel_std_dev = $5,
			observations = $6,
			defined = $7,
			updated_at = $8
	`

	_, err := s.db.Exec(
		ctx,
		query,
		b.TopicKey,
		b.Avg7d,
		b.Avg30d,
		b.HourlyStdDev,
		b.RelStdDev,
		b.Observations,
		b.Defined,
		b.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}

	return nil
}

// LoadBaselines returns every persisted topic baseline.
func (s *BaselineStore) LoadBaselines(ctx context.Context) ([]trend.Baseline, error) {
	query := `
		SELECT topic_key, avg_7d, avg_30d, hourly_std_dev, rel_std_dev,
		       observations, defined, updated_at
		FROM topic_baselines
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var baselines []trend.Baseline
	for rows.Next() {
		var b trend.Baseline
		err := rows.Scan(
			&b.TopicKey,
			&b.Avg7d,
			&b.Avg30d,
			&b.HourlyStdDev,
			&b.RelStdDev,
			&b.Observations,
			&b.Defined,
			&b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning baseline: %w", err)
		}
		baselines = append(baselines, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating baselines: %w", err)
	}

	return baselines, nil
}

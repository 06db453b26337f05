package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"readiness/internal/analysis"
	"readiness/internal/day"
	"readiness/internal/wellness"
)

// GetDailyMetrics returns the sample stored for date, or nil when none exists
func (s *Store) GetDailyMetrics(ctx context.Context, date string) (*wellness.DailySample, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM daily_metrics WHERE date = ?
	`, date).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sample wellness.DailySample
	if err := json.Unmarshal([]byte(payload), &sample); err != nil {
		return nil, fmt.Errorf("decoding daily metrics %s: %w", date, err)
	}
	return &sample, nil
}

// ListDailyMetrics returns samples for dates in [from, to], ordered by date
func (s *Store) ListDailyMetrics(ctx context.Context, from, to string) ([]wellness.DailySample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM daily_metrics
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []wellness.DailySample
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var sample wellness.DailySample
		if err := json.Unmarshal([]byte(payload), &sample); err != nil {
			return nil, fmt.Errorf("decoding daily metrics: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// UpsertDailyMetrics stores the sample for its date, replacing any previous one
func (s *Store) UpsertDailyMetrics(ctx context.Context, sample wellness.DailySample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encoding daily metrics %s: %w", sample.Date, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (date, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date) DO UPDATE SET
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`, sample.Date, string(payload))
	return err
}

// SaveFitnessTrend upserts one row per day of the trend
func (s *Store) SaveFitnessTrend(ctx context.Context, states []analysis.LoadState, source string, loc *time.Location) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, st := range states {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fitness_trends (date, ctl, atl, tsb, source, computed_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(date) DO UPDATE SET
				ctl = excluded.ctl,
				atl = excluded.atl,
				tsb = excluded.tsb,
				source = excluded.source,
				computed_at = CURRENT_TIMESTAMP
		`, day.Key(st.Date, loc), st.CTL, st.ATL, st.TSB, source)
		if err != nil {
			return fmt.Errorf("saving trend for %s: %w", day.Key(st.Date, loc), err)
		}
	}

	return tx.Commit()
}

// GetFitnessTrend returns stored trend rows for dates in [from, to]
func (s *Store) GetFitnessTrend(ctx context.Context, from, to string) ([]FitnessTrend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, ctl, atl, tsb, source
		FROM fitness_trends
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trends []FitnessTrend
	for rows.Next() {
		var t FitnessTrend
		if err := rows.Scan(&t.Date, &t.CTL, &t.ATL, &t.TSB, &t.Source); err != nil {
			return nil, err
		}
		trends = append(trends, t)
	}
	return trends, rows.Err()
}

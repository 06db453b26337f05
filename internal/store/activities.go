package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"readiness/internal/activity"
)

// ReplaceActivities swaps every stored activity starting at or after since for
// acts in one transaction. Unification may merge differently between syncs, so
// the window is rewritten rather than upserted row by row.
func (s *Store) ReplaceActivities(ctx context.Context, since time.Time, acts []activity.Unified) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE start_time >= ?`, formatTime(since)); err != nil {
		return fmt.Errorf("clearing activities: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activities (
			ref, source, source_id, start_time, duration_seconds, type, name,
			average_heartrate, average_power, provider_tss, rpe,
			tss, provenance, links, merged_from, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(ref) DO UPDATE SET
			start_time = excluded.start_time,
			duration_seconds = excluded.duration_seconds,
			type = excluded.type,
			name = excluded.name,
			average_heartrate = excluded.average_heartrate,
			average_power = excluded.average_power,
			provider_tss = excluded.provider_tss,
			rpe = excluded.rpe,
			tss = excluded.tss,
			provenance = excluded.provenance,
			links = excluded.links,
			merged_from = excluded.merged_from,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range acts {
		links, err := json.Marshal(a.Links)
		if err != nil {
			return fmt.Errorf("encoding links of %s: %w", refKey(a.Ref()), err)
		}
		merged, err := json.Marshal(a.MergedFrom)
		if err != nil {
			return fmt.Errorf("encoding merged refs of %s: %w", refKey(a.Ref()), err)
		}
		_, err = stmt.ExecContext(ctx,
			refKey(a.Ref()), a.Source, a.ID, formatTime(a.StartTime), int64(a.Duration/time.Second),
			a.Type, a.Name, a.AvgHR, a.AvgPower, a.ProviderTSS, a.RPE,
			a.TSS, string(a.Provenance), string(links), string(merged),
		)
		if err != nil {
			return fmt.Errorf("inserting activity %s: %w", refKey(a.Ref()), err)
		}
	}

	return tx.Commit()
}

// ListActivities returns activities starting in [from, to), oldest first
func (s *Store) ListActivities(ctx context.Context, from, to time.Time) ([]activity.Unified, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, source_id, start_time, duration_seconds, type, name,
			average_heartrate, average_power, provider_tss, rpe,
			tss, provenance, links, merged_from
		FROM activities
		WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time ASC
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acts []activity.Unified
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		acts = append(acts, *a)
	}
	return acts, rows.Err()
}

// CountActivities returns the number of stored activities
func (s *Store) CountActivities(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities").Scan(&count)
	return count, err
}

func scanActivity(rows *sql.Rows) (*activity.Unified, error) {
	var (
		a                activity.Unified
		startTime        string
		durationSeconds  int64
		name             sql.NullString
		avgHR, avgPower  sql.NullFloat64
		providerTSS, rpe sql.NullFloat64
		provenance       string
		links, merged    sql.NullString
	)
	err := rows.Scan(
		&a.Source, &a.ID, &startTime, &durationSeconds, &a.Type, &name,
		&avgHR, &avgPower, &providerTSS, &rpe,
		&a.TSS, &provenance, &links, &merged,
	)
	if err != nil {
		return nil, err
	}

	a.StartTime, err = parseTime(startTime)
	if err != nil {
		return nil, fmt.Errorf("parsing start time of %s:%s: %w", a.Source, a.ID, err)
	}
	a.Duration = time.Duration(durationSeconds) * time.Second
	a.Name = name.String
	a.AvgHR = nullFloat(avgHR)
	a.AvgPower = nullFloat(avgPower)
	a.ProviderTSS = nullFloat(providerTSS)
	a.RPE = nullFloat(rpe)
	a.Provenance = activity.Provenance(provenance)

	if links.Valid && links.String != "" {
		if err := json.Unmarshal([]byte(links.String), &a.Links); err != nil {
			return nil, fmt.Errorf("decoding links: %w", err)
		}
	}
	if merged.Valid && merged.String != "" {
		if err := json.Unmarshal([]byte(merged.String), &a.MergedFrom); err != nil {
			return nil, fmt.Errorf("decoding merged refs: %w", err)
		}
	}
	return &a, nil
}

func refKey(r activity.Ref) string {
	return r.Source + ":" + r.ID
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// formatTime stores instants as UTC RFC3339 so lexical order is time order
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string in RFC3339 format
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

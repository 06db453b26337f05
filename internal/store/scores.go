package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"readiness/internal/score"
)

// GetScore returns the stored result for (type, day, version), or nil
func (s *Store) GetScore(ctx context.Context, t score.Type, day string, version int) (*score.Result, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM score_records
		WHERE type = ? AND day = ? AND version = ?
	`, string(t), day, version).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeScore(payload)
}

// PutScore stores r, replacing any result for the same key
func (s *Store) PutScore(ctx context.Context, r score.Result) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding %s score for %s: %w", r.Type, r.Day, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO score_records (type, day, version, placeholder, payload, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, day, version) DO UPDATE SET
			placeholder = excluded.placeholder,
			payload = excluded.payload,
			computed_at = excluded.computed_at
	`, string(r.Type), r.Day, r.AlgorithmVersion, boolToInt(r.Placeholder), string(payload), r.ComputedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// LatestScore returns the newest trustworthy result of type t on or before
// day for the version, or nil. Placeholders are filtered in SQL; degenerate
// rows are skipped while scanning back.
func (s *Store) LatestScore(ctx context.Context, t score.Type, day string, version int) (*score.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM score_records
		WHERE type = ? AND version = ? AND day <= ? AND placeholder = 0
		ORDER BY day DESC
	`, string(t), version, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		r, err := decodeScore(payload)
		if err != nil {
			return nil, err
		}
		if r.Trustworthy() {
			return r, nil
		}
	}
	return nil, rows.Err()
}

// DeleteScores removes every stored result of type t, across versions
func (s *Store) DeleteScores(ctx context.Context, t score.Type) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM score_records WHERE type = ?`, string(t))
	return err
}

func decodeScore(payload string) (*score.Result, error) {
	var r score.Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decoding score: %w", err)
	}
	return &r, nil
}

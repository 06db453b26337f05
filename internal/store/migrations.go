package store

import (
	"context"
	"database/sql"
)

// migrate runs all database migrations
func migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// Authentication (singleton row)
		`CREATE TABLE IF NOT EXISTS auth (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			athlete_id INTEGER NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Unified activities (after cross-source dedup)
		`CREATE TABLE IF NOT EXISTS activities (
			ref TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_id TEXT NOT NULL,
			start_time TEXT NOT NULL,
			duration_seconds INTEGER NOT NULL,
			type TEXT NOT NULL,
			name TEXT,
			average_heartrate REAL,
			average_power REAL,
			provider_tss REAL,
			rpe REAL,
			tss REAL NOT NULL,
			provenance TEXT NOT NULL,
			links TEXT,
			merged_from TEXT,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_start_time ON activities(start_time)`,

		// Daily wellness samples pushed by the wearable adapter
		`CREATE TABLE IF NOT EXISTS daily_metrics (
			date TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Daily training-load trend
		`CREATE TABLE IF NOT EXISTS fitness_trends (
			date TEXT PRIMARY KEY,
			ctl REAL NOT NULL,
			atl REAL NOT NULL,
			tsb REAL NOT NULL,
			source TEXT NOT NULL,
			computed_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Score results (cache Tier 2)
		`CREATE TABLE IF NOT EXISTS score_records (
			type TEXT NOT NULL,
			day TEXT NOT NULL,
			version INTEGER NOT NULL,
			placeholder INTEGER NOT NULL,
			payload TEXT NOT NULL,
			computed_at TEXT NOT NULL,
			PRIMARY KEY (type, day, version)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_score_records_lookup ON score_records(type, version, day)`,

		// Sync State (key-value store for sync tracking and computation records)
		`CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

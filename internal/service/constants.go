package service

import "time"

const (
	// sync_state keys
	LastSyncKey    = "last_activity_sync"
	FingerprintKey = "activity_fingerprint"

	// Default sync window when none is configured
	DefaultSyncDaysBack = 90

	// Fallback history is fetched a little wider than the trend window so
	// activities near midnight in other timezones are not lost
	HistoryPaddingDays = 1

	// Upper bound of one shared training-load computation
	DefaultLoadTimeout = 10 * time.Second
)

package store

import (
	"context"
	"testing"
)

// NewTestStore opens a migrated in-memory Store closed at test cleanup.
// This is only intended for use in tests.
func NewTestStore(tb testing.TB) *Store {
	tb.Helper()

	s, err := OpenMemory(context.Background())
	if err != nil {
		tb.Fatalf("Failed to open test store: %v", err)
	}
	tb.Cleanup(func() {
		s.Close()
	})
	return s
}

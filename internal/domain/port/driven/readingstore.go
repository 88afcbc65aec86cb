package driven

import (
	"context"
	"time"

	"github.com/kmathis/glucopanel/internal/domain/model"
)

// ReadingStore defines the driven port for reading persistence. The live
// window is in memory; the store retains readings across restarts and seeds
// the window when a session resumes.
type ReadingStore interface {
	// ReplaceHistory atomically replaces all stored readings with the
	// given ordered sequence. Used after a fresh history fetch.
	ReplaceHistory(ctx context.Context, readings []model.Reading) error

	// Append inserts one reading. Duplicate timestamps are overwritten.
	Append(ctx context.Context, r model.Reading) error

	// ListSince returns stored readings at or after the given instant,
	// ordered ascending by timestamp.
	ListSince(ctx context.Context, since time.Time) ([]model.Reading, error)

	// Prune removes readings older than the given instant.
	Prune(ctx context.Context, before time.Time) error
}

// Package store holds published message records behind a small put/get
// contract.
package store

import (
	"context"

	"github.com/thrillee/smppsim/internal/message"
)

// Store is the cache contract the core writes through. Implementations are
// safe for concurrent callers.
type Store interface {
	// PutOrUpdate writes rec under id and reports whether the write succeeded.
	PutOrUpdate(ctx context.Context, id string, rec message.Record) bool
	// GetByID returns the record stored under id.
	GetByID(ctx context.Context, id string) (message.Record, bool)
}

// Lister is implemented by stores that can enumerate records.
type Lister interface {
	List(ctx context.Context, f message.Filter) ([]message.Record, error)
}

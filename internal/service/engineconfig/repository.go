package engineconfig

import (
	"context"
	"time"
)

// Record is a stored config document as the repository sees it.
type Record struct {
	ClientID  string
	Version   int
	Document  []byte
	UpdatedAt time.Time
}

// Repository defines the data access contract for engine configs.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns the stored document. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, clientID string) (*Record, error)

	// CreateIfAbsent inserts doc as version 1 unless a row already exists.
	CreateIfAbsent(ctx context.Context, clientID string, doc []byte) error

	// Save upserts doc and returns the new version.
	Save(ctx context.Context, clientID string, doc []byte) (int, error)

	// ListClients returns every client with a stored config, ordered by ID.
	ListClients(ctx context.Context) ([]string, error)
}

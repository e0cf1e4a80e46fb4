// Package session persists the mapping from a logical tool-backend
// connection key to the backend session id negotiated for it. The
// mapping outlives the process and is shared by every proxy instance,
// so a caller resuming on another instance reuses its session instead
// of opening a new one. Records are upserted last-write-wins and
// reclaimed by a periodic sweep once they go stale.
package session

import (
	"context"
	"time"
)

const (
	// DefaultRetention is how long a session record survives without an
	// update before the sweep reclaims it.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultSweepInterval is how often the sweeper runs.
	DefaultSweepInterval = time.Hour
)

// Record is one durable session mapping.
type Record struct {
	ConnectionKey string    `json:"connection_key"`
	SessionID     string    `json:"session_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store is the durable session table. Implementations must make Upsert
// idempotent and last-write-wins so concurrent proxy instances can race
// on the same key safely.
type Store interface {
	// Upsert creates or replaces the record for a connection key and
	// refreshes its timestamp.
	Upsert(ctx context.Context, connectionKey, sessionID string) error

	// Find returns the session id for a connection key. The boolean
	// reports whether a record exists; a miss is not an error.
	Find(ctx context.Context, connectionKey string) (string, bool, error)

	// Delete removes the record for a connection key. Deleting a
	// missing key is not an error.
	Delete(ctx context.Context, connectionKey string) error

	// DeleteExpired removes every record whose last update is older
	// than the retention window and reports how many went.
	DeleteExpired(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases the underlying handle.
	Close() error
}

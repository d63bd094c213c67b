// Package credential manages the pool of speech-recognition API keys shared
// by meeting workers. Each key supports a bounded number of concurrent
// meetings; the pool allocates the least-loaded key, tracks which meeting
// holds which key, and reclaims leases whose meetings never released them.
package credential

import (
	"context"
	"time"
)

// DefaultMaxPerKey is the concurrent-meeting cap per key when the
// configuration does not set one.
const DefaultMaxPerKey = 2

// DefaultLeaseTTL bounds how long an allocation may be held before the
// sweeper reclaims it. Meetings longer than this must re-allocate.
const DefaultLeaseTTL = 4 * time.Hour

// Lease is one allocated credential.
type Lease struct {
	// Key is the secret handed to the worker.
	Key string

	// MeetingID identifies the holder.
	MeetingID string

	// ExpiresAt is when the sweeper may reclaim the lease.
	ExpiresAt time.Time
}

// CredentialStatus is one key's load, reported by [Pool.Status]. The key
// itself is never exposed; callers see its configuration index.
type CredentialStatus struct {
	Index     int      `json:"index"`
	Meetings  []string `json:"meetings"`
	Available int      `json:"available"`
}

// Pool allocates and releases pooled credentials.
//
// Allocate is idempotent per meeting: a second call for a meeting that
// already holds a lease returns the existing lease without consuming
// another slot. When every key is at capacity, Allocate returns an error
// wrapping [github.com/moyeo-ai/moyeo/pkg/meet.ErrQuotaExhausted].
type Pool interface {
	Allocate(ctx context.Context, meetingID string) (*Lease, error)

	// Release frees the lease held by meetingID. Releasing a meeting that
	// holds no lease is a no-op.
	Release(ctx context.Context, meetingID string) error

	// InUse reports the number of currently allocated slots.
	InUse(ctx context.Context) (int, error)

	// Status reports per-key load in configuration order, with expired
	// leases already swept out.
	Status(ctx context.Context) ([]CredentialStatus, error)
}

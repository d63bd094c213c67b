package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// DefaultCheckpointTTL bounds how long an interrupted run waits for human
// input before its checkpoint expires.
const DefaultCheckpointTTL = 30 * time.Minute

// Checkpointer persists run state across interrupts. Save overwrites any
// prior checkpoint for the same run ID; Load of an unknown or expired run
// returns an error wrapping [meet.ErrNotFound].
type Checkpointer interface {
	Save(ctx context.Context, st *State) error
	Load(ctx context.Context, runID string) (*State, error)
	Delete(ctx context.Context, runID string) error
}

// MemoryCheckpointer keeps checkpoints in process memory. Suitable for a
// single-instance orchestration service and for tests.
type MemoryCheckpointer struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryOption configures a MemoryCheckpointer.
type MemoryOption func(*MemoryCheckpointer)

// WithMemoryTTL overrides the checkpoint lifetime.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(c *MemoryCheckpointer) { c.ttl = ttl }
}

// WithMemoryClock injects a clock, for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCheckpointer) { c.now = now }
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer(opts ...MemoryOption) *MemoryCheckpointer {
	c := &MemoryCheckpointer{
		ttl:     DefaultCheckpointTTL,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ Checkpointer = (*MemoryCheckpointer)(nil)

// Save implements Checkpointer.
func (c *MemoryCheckpointer) Save(_ context.Context, st *State) error {
	if st.RunID == "" {
		return fmt.Errorf("graph: %w: checkpoint without run ID", meet.ErrInternal)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[st.RunID] = memoryEntry{state: *st, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Load implements Checkpointer.
func (c *MemoryCheckpointer) Load(_ context.Context, runID string) (*State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[runID]
	if !ok || c.now().After(e.expiresAt) {
		delete(c.entries, runID)
		return nil, fmt.Errorf("graph: %w: run %q", meet.ErrNotFound, runID)
	}
	st := e.state
	return &st, nil
}

// Delete implements Checkpointer.
func (c *MemoryCheckpointer) Delete(_ context.Context, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, runID)
	return nil
}

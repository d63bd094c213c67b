package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// RedisCheckpointer persists run state in Redis so an interrupted run can
// be resumed by any orchestration replica. Checkpoints are JSON values
// under moyeo:agent:run:<runID> with a TTL bounding how long a pending
// confirmation may wait.
type RedisCheckpointer struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Checkpointer = (*RedisCheckpointer)(nil)

// RedisCheckpointOption configures a RedisCheckpointer.
type RedisCheckpointOption func(*RedisCheckpointer)

// WithRedisCheckpointTTL overrides the checkpoint lifetime.
func WithRedisCheckpointTTL(ttl time.Duration) RedisCheckpointOption {
	return func(c *RedisCheckpointer) { c.ttl = ttl }
}

// NewRedisCheckpointer creates a checkpointer over rdb.
func NewRedisCheckpointer(rdb *redis.Client, opts ...RedisCheckpointOption) (*RedisCheckpointer, error) {
	if rdb == nil {
		return nil, fmt.Errorf("graph: redis client must not be nil")
	}
	c := &RedisCheckpointer{rdb: rdb, ttl: DefaultCheckpointTTL}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func checkpointKey(runID string) string { return "moyeo:agent:run:" + runID }

// Save implements Checkpointer.
func (c *RedisCheckpointer) Save(ctx context.Context, st *State) error {
	if st.RunID == "" {
		return fmt.Errorf("graph: %w: checkpoint without run ID", meet.ErrInternal)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("graph: marshal checkpoint: %w", err)
	}
	if err := c.rdb.Set(ctx, checkpointKey(st.RunID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("graph: %w: redis save checkpoint: %v", meet.ErrExternal, err)
	}
	return nil
}

// Load implements Checkpointer.
func (c *RedisCheckpointer) Load(ctx context.Context, runID string) (*State, error) {
	data, err := c.rdb.Get(ctx, checkpointKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("graph: %w: run %q", meet.ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("graph: %w: redis load checkpoint: %v", meet.ErrExternal, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("graph: unmarshal checkpoint: %w", err)
	}
	return &st, nil
}

// Delete implements Checkpointer.
func (c *RedisCheckpointer) Delete(ctx context.Context, runID string) error {
	if err := c.rdb.Del(ctx, checkpointKey(runID)).Err(); err != nil {
		return fmt.Errorf("graph: %w: redis delete checkpoint: %v", meet.ErrExternal, err)
	}
	return nil
}

package credential

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// RedisPool is a Pool shared across controller replicas. Allocation runs as
// a single Lua script so two replicas cannot oversubscribe a key, and
// leases carry a Redis TTL so crashed workers free their slot: load is
// derived from a per-key member set that every script sweeps against the
// live lease keys, so an expired lease stops counting the moment Redis
// drops it.
//
// Layout:
//
//	moyeo:cred:lease:<meeting>  the key held by a meeting, with TTL
//	moyeo:cred:members:<key>    set of meeting IDs leased from the key
type RedisPool struct {
	rdb       *redis.Client
	keys      []string
	maxPerKey int
	leaseTTL  time.Duration
}

var _ Pool = (*RedisPool)(nil)

// sweepMembers drops member-set entries whose lease key no longer exists.
// Inlined into every script that reads a member set; a membership without
// a live lease is a crashed worker whose slot must come back.
const sweepMembers = `
local function sweep(members)
  for _, m in ipairs(redis.call("SMEMBERS", members)) do
    if redis.call("EXISTS", "moyeo:cred:lease:" .. m) == 0 then
      redis.call("SREM", members, m)
    end
  end
end
`

// allocateScript picks the least-loaded key under capacity and records the
// lease atomically. KEYS is unused; ARGV is:
//
//	[1] meetingID
//	[2] maxPerKey
//	[3] leaseTTL seconds
//	[4..] candidate keys
//
// Returns the allocated key, or "" when every key is at capacity.
var allocateScript = redis.NewScript(sweepMembers + `
local meeting = ARGV[1]
local maxPerKey = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local leaseKey = "moyeo:cred:lease:" .. meeting
local existing = redis.call("GET", leaseKey)
if existing then
  redis.call("EXPIRE", leaseKey, ttl)
  return existing
end

local best = ""
local bestLoad = -1
for i = 4, #ARGV do
  local members = "moyeo:cred:members:" .. ARGV[i]
  sweep(members)
  local load = redis.call("SCARD", members)
  if load < maxPerKey and (bestLoad == -1 or load < bestLoad) then
    best = ARGV[i]
    bestLoad = load
  end
end
if best == "" then
  return ""
end

redis.call("SADD", "moyeo:cred:members:" .. best, meeting)
redis.call("SET", leaseKey, best, "EX", ttl)
return best
`)

// releaseScript frees a meeting's lease and its membership. When the lease
// already expired the meeting is still scrubbed from every member set, so
// a late release cannot resurrect a slot. ARGV: meetingID, then all keys.
var releaseScript = redis.NewScript(`
local meeting = ARGV[1]
local leaseKey = "moyeo:cred:lease:" .. meeting
local key = redis.call("GET", leaseKey)
if key then
  redis.call("DEL", leaseKey)
  redis.call("SREM", "moyeo:cred:members:" .. key, meeting)
  return 1
end
for i = 2, #ARGV do
  redis.call("SREM", "moyeo:cred:members:" .. ARGV[i], meeting)
end
return 0
`)

// membersScript sweeps one key's member set and returns the live meetings.
// ARGV: the pool key.
var membersScript = redis.NewScript(sweepMembers + `
local members = "moyeo:cred:members:" .. ARGV[1]
sweep(members)
return redis.call("SMEMBERS", members)
`)

// RedisOption configures a RedisPool.
type RedisOption func(*RedisPool)

// WithRedisMaxPerKey sets the concurrent-meeting cap per key.
func WithRedisMaxPerKey(n int) RedisOption {
	return func(p *RedisPool) { p.maxPerKey = n }
}

// WithRedisLeaseTTL sets the lease TTL.
func WithRedisLeaseTTL(d time.Duration) RedisOption {
	return func(p *RedisPool) { p.leaseTTL = d }
}

// NewRedisPool creates a shared pool over the given keys.
func NewRedisPool(rdb *redis.Client, keys []string, opts ...RedisOption) (*RedisPool, error) {
	if rdb == nil {
		return nil, fmt.Errorf("credential: redis client must not be nil")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("credential: at least one key is required")
	}
	p := &RedisPool{
		rdb:       rdb,
		keys:      append([]string(nil), keys...),
		maxPerKey: DefaultMaxPerKey,
		leaseTTL:  DefaultLeaseTTL,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Allocate implements Pool.
func (p *RedisPool) Allocate(ctx context.Context, meetingID string) (*Lease, error) {
	if meetingID == "" {
		return nil, fmt.Errorf("credential: %w: meetingID must not be empty", meet.ErrInvalidInput)
	}

	argv := make([]any, 0, 3+len(p.keys))
	argv = append(argv, meetingID, p.maxPerKey, int(p.leaseTTL.Seconds()))
	for _, k := range p.keys {
		argv = append(argv, k)
	}

	res, err := allocateScript.Run(ctx, p.rdb, nil, argv...).Text()
	if err != nil {
		return nil, fmt.Errorf("credential: %w: redis allocate: %v", meet.ErrExternal, err)
	}
	if res == "" {
		return nil, fmt.Errorf("credential: %w: all %d keys at capacity %d", meet.ErrQuotaExhausted, len(p.keys), p.maxPerKey)
	}
	return &Lease{
		Key:       res,
		MeetingID: meetingID,
		ExpiresAt: time.Now().Add(p.leaseTTL),
	}, nil
}

// Release implements Pool.
func (p *RedisPool) Release(ctx context.Context, meetingID string) error {
	argv := make([]any, 0, 1+len(p.keys))
	argv = append(argv, meetingID)
	for _, k := range p.keys {
		argv = append(argv, k)
	}
	if err := releaseScript.Run(ctx, p.rdb, nil, argv...).Err(); err != nil {
		return fmt.Errorf("credential: %w: redis release: %v", meet.ErrExternal, err)
	}
	return nil
}

// InUse implements Pool by counting live memberships across all keys.
func (p *RedisPool) InUse(ctx context.Context) (int, error) {
	total := 0
	for _, k := range p.keys {
		meetings, err := p.liveMeetings(ctx, k)
		if err != nil {
			return 0, err
		}
		total += len(meetings)
	}
	return total, nil
}

// Status implements Pool.
func (p *RedisPool) Status(ctx context.Context) ([]CredentialStatus, error) {
	out := make([]CredentialStatus, len(p.keys))
	for i, k := range p.keys {
		meetings, err := p.liveMeetings(ctx, k)
		if err != nil {
			return nil, err
		}
		sort.Strings(meetings)
		out[i] = CredentialStatus{
			Index:     i,
			Meetings:  meetings,
			Available: p.maxPerKey - len(meetings),
		}
	}
	return out, nil
}

func (p *RedisPool) liveMeetings(ctx context.Context, key string) ([]string, error) {
	meetings, err := membersScript.Run(ctx, p.rdb, nil, key).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("credential: %w: redis members: %v", meet.ErrExternal, err)
	}
	return meetings, nil
}

package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// MemoryPool is an in-process Pool for single-controller deployments.
// Safe for concurrent use.
type MemoryPool struct {
	mu        sync.Mutex
	keys      []string
	maxPerKey int
	leaseTTL  time.Duration
	now       func() time.Time

	// loads maps key -> number of active leases.
	loads map[string]int

	// leases maps meetingID -> its lease.
	leases map[string]*Lease

	sweepCancel context.CancelFunc
}

var _ Pool = (*MemoryPool)(nil)

// MemoryOption configures a MemoryPool.
type MemoryOption func(*MemoryPool)

// WithMaxPerKey sets the concurrent-meeting cap per key.
func WithMaxPerKey(n int) MemoryOption {
	return func(p *MemoryPool) { p.maxPerKey = n }
}

// WithLeaseTTL sets how long a lease may be held before it is reclaimable.
func WithLeaseTTL(d time.Duration) MemoryOption {
	return func(p *MemoryPool) { p.leaseTTL = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(p *MemoryPool) { p.now = now }
}

// NewMemoryPool creates a pool over the given keys.
func NewMemoryPool(keys []string, opts ...MemoryOption) (*MemoryPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("credential: at least one key is required")
	}
	p := &MemoryPool{
		keys:      append([]string(nil), keys...),
		maxPerKey: DefaultMaxPerKey,
		leaseTTL:  DefaultLeaseTTL,
		now:       time.Now,
		loads:     make(map[string]int, len(keys)),
		leases:    make(map[string]*Lease),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Allocate implements Pool. The least-loaded key wins; ties go to the
// earliest key in configuration order so allocation stays deterministic.
func (p *MemoryPool) Allocate(_ context.Context, meetingID string) (*Lease, error) {
	if meetingID == "" {
		return nil, fmt.Errorf("credential: %w: meetingID must not be empty", meet.ErrInvalidInput)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.reclaimExpiredLocked()

	if existing, ok := p.leases[meetingID]; ok {
		return &Lease{Key: existing.Key, MeetingID: existing.MeetingID, ExpiresAt: existing.ExpiresAt}, nil
	}

	best := ""
	bestLoad := -1
	for _, key := range p.keys {
		load := p.loads[key]
		if load >= p.maxPerKey {
			continue
		}
		if bestLoad == -1 || load < bestLoad {
			best = key
			bestLoad = load
		}
	}
	if best == "" {
		return nil, fmt.Errorf("credential: %w: all %d keys at capacity %d", meet.ErrQuotaExhausted, len(p.keys), p.maxPerKey)
	}

	lease := &Lease{
		Key:       best,
		MeetingID: meetingID,
		ExpiresAt: p.now().Add(p.leaseTTL),
	}
	p.loads[best]++
	p.leases[meetingID] = lease
	return &Lease{Key: lease.Key, MeetingID: lease.MeetingID, ExpiresAt: lease.ExpiresAt}, nil
}

// Release implements Pool.
func (p *MemoryPool) Release(_ context.Context, meetingID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	lease, ok := p.leases[meetingID]
	if !ok {
		return nil
	}
	delete(p.leases, meetingID)
	if p.loads[lease.Key] > 0 {
		p.loads[lease.Key]--
	}
	return nil
}

// InUse implements Pool.
func (p *MemoryPool) InUse(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reclaimExpiredLocked()
	return len(p.leases), nil
}

// Status implements Pool.
func (p *MemoryPool) Status(_ context.Context) ([]CredentialStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reclaimExpiredLocked()

	byKey := make(map[string][]string, len(p.keys))
	for meetingID, lease := range p.leases {
		byKey[lease.Key] = append(byKey[lease.Key], meetingID)
	}

	out := make([]CredentialStatus, len(p.keys))
	for i, key := range p.keys {
		meetings := byKey[key]
		sort.Strings(meetings)
		out[i] = CredentialStatus{
			Index:     i,
			Meetings:  meetings,
			Available: p.maxPerKey - len(meetings),
		}
	}
	return out, nil
}

// StartSweeper reclaims expired leases every interval until ctx is done.
func (p *MemoryPool) StartSweeper(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.sweepCancel = cancel
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.mu.Lock()
				n := p.reclaimExpiredLocked()
				p.mu.Unlock()
				if n > 0 {
					slog.Warn("reclaimed expired credential leases", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the sweeper if running.
func (p *MemoryPool) Close() {
	p.mu.Lock()
	cancel := p.sweepCancel
	p.sweepCancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// reclaimExpiredLocked drops leases past their TTL. Caller holds p.mu.
func (p *MemoryPool) reclaimExpiredLocked() int {
	now := p.now()
	n := 0
	for meetingID, lease := range p.leases {
		if now.After(lease.ExpiresAt) {
			delete(p.leases, meetingID)
			if p.loads[lease.Key] > 0 {
				p.loads[lease.Key]--
			}
			n++
		}
	}
	return n
}

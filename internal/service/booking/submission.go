package booking

import (
	"context"
	"sync"
	"time"
)

// SubmissionGuard deduplicates POST /book requests carrying an Idempotency-Key.
type SubmissionGuard interface {
	AcquireSubmission(ctx context.Context, key string, ttl time.Duration) (pnr string, acquired bool, err error)
	CompleteSubmission(ctx context.Context, key, pnr string, ttl time.Duration) error
	ReleaseSubmission(ctx context.Context, key string) error
}

type submission struct {
	pnr       string
	expiresAt time.Time
}

type memoryGuard struct {
	mu     sync.Mutex
	keys   map[string]submission
	now    func() time.Time
	pruned time.Time
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: make(map[string]submission), now: time.Now}
}

func (g *memoryGuard) AcquireSubmission(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if s, ok := g.keys[key]; ok && now.Before(s.expiresAt) {
		return s.pnr, false, nil
	}
	g.prune(now)
	g.keys[key] = submission{expiresAt: now.Add(ttl)}
	return "", true, nil
}

func (g *memoryGuard) prune(now time.Time) {
	if now.Sub(g.pruned) < pruneInterval {
		return
	}
	g.pruned = now
	for key, s := range g.keys {
		if !now.Before(s.expiresAt) {
			delete(g.keys, key)
		}
	}
}

func (g *memoryGuard) CompleteSubmission(_ context.Context, key, pnr string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = submission{pnr: pnr, expiresAt: g.now().Add(ttl)}
	return nil
}

func (g *memoryGuard) ReleaseSubmission(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

// Package inventory is the authoritative seat inventory. Each seat pool is guarded
// by its own lock; operations on different pools never wait on each other.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"golang.org/x/sync/semaphore"
)

const DefaultLockTimeout = 2 * time.Second

// Catalog sizes pools and names berths. reference.Data implements it.
type Catalog interface {
	PoolCapacity(key domain.PoolKey) (domain.PoolCapacity, error)
	Layout
}

type Layout interface {
	Berth(coachCode string, seat int) domain.BerthType
	RACBerth(coachCode string) domain.BerthType
}

type SeatInventory interface {
	Reserve(ctx context.Context, key domain.PoolKey, passengers int) ([]domain.SeatAssignment, error)
	Release(ctx context.Context, key domain.PoolKey, allocationIDs []string) (ReleaseResult, error)
	Promote(ctx context.Context, key domain.PoolKey) ([]domain.SeatAssignment, error)
	Assignments(ctx context.Context, key domain.PoolKey, allocationIDs []string) (map[string]domain.SeatAssignment, error)
	Snapshot(ctx context.Context, key domain.PoolKey) (domain.PoolSnapshot, error)
}

// ReleaseResult lists the assignments as they were before release and the
// assignments other passengers moved into as a consequence.
type ReleaseResult struct {
	Released   []domain.SeatAssignment
	Promotions []domain.SeatAssignment
}

type entry struct {
	lock *semaphore.Weighted
	pool *pool
}

type Store struct {
	catalog     Catalog
	lockTimeout time.Duration

	// mu guards the pools map only; it is never held while a pool is being mutated.
	mu    sync.Mutex
	pools map[domain.PoolKey]*entry
}

type Option func(*Store)

func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func NewStore(catalog Catalog, opts ...Option) *Store {
	s := &Store{
		catalog:     catalog,
		lockTimeout: DefaultLockTimeout,
		pools:       make(map[domain.PoolKey]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// entry returns the pool for key, creating it on first use.
func (s *Store) entry(key domain.PoolKey) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.pools[key]; ok {
		return e, nil
	}
	capacity, err := s.catalog.PoolCapacity(key)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", key, err)
	}
	e := &entry{
		lock: semaphore.NewWeighted(1),
		pool: newPool(key, capacity, s.catalog),
	}
	s.pools[key] = e
	return e, nil
}

// lock acquires the pool lock, waiting at most lockTimeout.
func (s *Store) lock(ctx context.Context, key domain.PoolKey) (*pool, func(), error) {
	e, err := s.entry(key)
	if err != nil {
		return nil, nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	if err := e.lock.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("lock %s after %s: %w", key, s.lockTimeout, domain.ErrConcurrencyTimeout)
	}
	return e.pool, func() { e.lock.Release(1) }, nil
}

// Reserve allocates seats for every passenger of one booking, filling confirmed
// seats first, then RAC, then the waitlist. Either all passengers get an
// assignment or the pool is left untouched and ErrPoolExhausted is returned.
func (s *Store) Reserve(ctx context.Context, key domain.PoolKey, passengers int) ([]domain.SeatAssignment, error) {
	if passengers <= 0 {
		return nil, domain.Invalid("passengers", domain.ErrEmptyPassengerList, "cannot reserve %d seats", passengers)
	}
	p, unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	allocs, err := p.reserve(passengers)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SeatAssignment, len(allocs))
	for i, a := range allocs {
		out[i] = p.assignment(a)
	}
	return out, nil
}

// Release frees the given allocations and promotes waiting passengers in FIFO
// order. Releasing an allocation twice is a no-op.
func (s *Store) Release(ctx context.Context, key domain.PoolKey, allocationIDs []string) (ReleaseResult, error) {
	p, unlock, err := s.lock(ctx, key)
	if err != nil {
		return ReleaseResult{}, err
	}
	defer unlock()

	released, promoted, err := p.release(allocationIDs)
	if err != nil {
		return ReleaseResult{}, err
	}
	res := ReleaseResult{Released: released}
	for _, a := range promoted {
		res.Promotions = append(res.Promotions, p.assignment(a))
	}
	return res, nil
}

// Promote runs the promotion cascade on its own. Release already does this, so it
// only moves passengers when the pool was left with free capacity, e.g. after Restore.
func (s *Store) Promote(ctx context.Context, key domain.PoolKey) ([]domain.SeatAssignment, error) {
	p, unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if p.archived {
		return nil, fmt.Errorf("promote in %s: %w", key, domain.ErrPoolArchived)
	}
	var out []domain.SeatAssignment
	for _, a := range p.promote() {
		out = append(out, p.assignment(a))
	}
	return out, nil
}

// Assignments returns the current assignment of each known allocation id.
func (s *Store) Assignments(ctx context.Context, key domain.PoolKey, allocationIDs []string) (map[string]domain.SeatAssignment, error) {
	p, unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make(map[string]domain.SeatAssignment, len(allocationIDs))
	for _, id := range allocationIDs {
		if a, ok := p.byID[id]; ok {
			out[id] = p.assignment(a)
		}
	}
	return out, nil
}

func (s *Store) Snapshot(ctx context.Context, key domain.PoolKey) (domain.PoolSnapshot, error) {
	p, unlock, err := s.lock(ctx, key)
	if err != nil {
		return domain.PoolSnapshot{}, err
	}
	defer unlock()
	return p.snapshot(), nil
}

// Restore rebuilds a pool from persisted assignments and settles it. Assignments
// whose status changed while settling are returned so callers can persist them.
func (s *Store) Restore(ctx context.Context, key domain.PoolKey, assignments []domain.SeatAssignment) ([]domain.SeatAssignment, error) {
	p, unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var errs []error
	for _, a := range assignments {
		if err := p.restore(a); err != nil {
			errs = append(errs, err)
		}
	}
	p.sortQueues()

	var out []domain.SeatAssignment
	if !p.archived {
		for _, a := range p.promote() {
			out = append(out, p.assignment(a))
		}
	}
	return out, errors.Join(errs...)
}

// Archive closes every pool whose journey date is before the given date
// (YYYY-MM-DD). Archived pools stay readable but reject mutations.
func (s *Store) Archive(ctx context.Context, before string) ([]domain.PoolKey, error) {
	s.mu.Lock()
	var keys []domain.PoolKey
	for k := range s.pools {
		if k.DOJ < before {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()

	var archived []domain.PoolKey
	for _, k := range keys {
		p, unlock, err := s.lock(ctx, k)
		if err != nil {
			return archived, err
		}
		// archived is only read and written under the pool lock.
		if !p.archived {
			p.archived = true
			archived = append(archived, k)
		}
		unlock()
	}
	return archived, nil
}

var _ SeatInventory = (*Store)(nil)

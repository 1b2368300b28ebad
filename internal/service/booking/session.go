package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
)

// SessionStore persists booking sessions between requests. cache.RedisCache
// implements it; MemorySessionStore is used when Redis is not configured.
type SessionStore interface {
	SaveSession(ctx context.Context, session *domain.BookingSession, ttl time.Duration) error
	LoadSession(ctx context.Context, id string) (*domain.BookingSession, error)
	AcquireSessionLock(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ReleaseSessionLock(ctx context.Context, id string) error
}

func invalidTransition(s *domain.BookingSession, action string) error {
	return fmt.Errorf("%s session %s in state %s: %w", action, s.ID, s.State, domain.ErrInvalidTransition)
}

// canCalculateFare reports whether a (re)calculation is allowed. It is
// repeatable from every non-terminal state.
func canCalculateFare(s *domain.BookingSession) error {
	if s.State.Terminal() {
		return invalidTransition(s, "calculate fare for")
	}
	return nil
}

func canAwaitVerification(s *domain.BookingSession) error {
	if s.State != domain.SessionFareCalculated {
		return invalidTransition(s, "await verification for")
	}
	return nil
}

func canConfirm(s *domain.BookingSession) error {
	switch s.State {
	case domain.SessionFareCalculated, domain.SessionAwaitingVerification:
		if s.Fare == nil {
			return invalidTransition(s, "confirm")
		}
		return nil
	default:
		return invalidTransition(s, "confirm")
	}
}

func setState(s *domain.BookingSession, state domain.SessionState, now time.Time) {
	s.State = state
	s.UpdatedAt = now
}

func fail(s *domain.BookingSession, reason string, now time.Time) {
	s.FailureReason = reason
	setState(s, domain.SessionFailed, now)
}

type storedSession struct {
	data      domain.BookingSession
	expiresAt time.Time
}

// pruneInterval bounds how often the in-memory stores sweep expired entries.
const pruneInterval = time.Minute

// MemorySessionStore keeps sessions in process memory. Expired sessions and
// locks are swept on write.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]storedSession
	locks    map[string]time.Time
	now      func() time.Time
	pruned   time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]storedSession),
		locks:    make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) SaveSession(_ context.Context, session *domain.BookingSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := *session
	if session.Fare != nil {
		fare := *session.Fare
		data.Fare = &fare
	}
	data.Request.Passengers = append([]domain.PassengerDetails(nil), session.Request.Passengers...)
	now := m.now()
	m.prune(now)
	m.sessions[session.ID] = storedSession{data: data, expiresAt: now.Add(ttl)}
	return nil
}

// prune must be called with mu held.
func (m *MemorySessionStore) prune(now time.Time) {
	if now.Sub(m.pruned) < pruneInterval {
		return
	}
	m.pruned = now
	for id, stored := range m.sessions {
		if now.After(stored.expiresAt) {
			delete(m.sessions, id)
		}
	}
	for id, until := range m.locks {
		if !now.Before(until) {
			delete(m.locks, id)
		}
	}
}

func (m *MemorySessionStore) LoadSession(_ context.Context, id string) (*domain.BookingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[id]
	if !ok || m.now().After(stored.expiresAt) {
		delete(m.sessions, id)
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	s := stored.data
	s.Request.Passengers = append([]domain.PassengerDetails(nil), stored.data.Request.Passengers...)
	return &s, nil
}

func (m *MemorySessionStore) AcquireSessionLock(_ context.Context, id string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if until, ok := m.locks[id]; ok && now.Before(until) {
		return false, nil
	}
	m.prune(now)
	m.locks[id] = now.Add(ttl)
	return true, nil
}

func (m *MemorySessionStore) ReleaseSessionLock(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)

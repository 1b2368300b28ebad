package inventory

import (
	"fmt"
	"sort"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/google/uuid"
)

type allocation struct {
	id       string
	status   domain.SeatStatus
	seat     int
	racNo    int
	waitNo   int
	promoted bool
}

// pool is the mutable state of one (train, date, coach, quota) seat pool. It is
// never touched without holding the pool's lock in Store.
type pool struct {
	key      domain.PoolKey
	capacity domain.PoolCapacity
	layout   Layout

	seats     []string // seat number - 1 -> allocation id, "" when free
	confirmed int
	rac       []*allocation // ordered by racNo
	waitlist  []*allocation // ordered by waitNo
	byID      map[string]*allocation

	nextRAC      int
	nextWaitlist int
	archived     bool
}

func newPool(key domain.PoolKey, capacity domain.PoolCapacity, layout Layout) *pool {
	return &pool{
		key:          key,
		capacity:     capacity,
		layout:       layout,
		seats:        make([]string, capacity.TotalSeats),
		byID:         make(map[string]*allocation),
		nextRAC:      1,
		nextWaitlist: 1,
	}
}

func (p *pool) headroom() int {
	return (p.capacity.TotalSeats - p.confirmed) +
		(p.capacity.RACCap - len(p.rac)) +
		(p.capacity.WaitlistCap - len(p.waitlist))
}

func (p *pool) lowestFreeSeat() int {
	for i, id := range p.seats {
		if id == "" {
			return i + 1
		}
	}
	return 0
}

func (p *pool) confirm(a *allocation) {
	seat := p.lowestFreeSeat()
	p.seats[seat-1] = a.id
	p.confirmed++
	a.status = domain.SeatStatusConfirmed
	a.seat = seat
	a.racNo = 0
	a.waitNo = 0
}

func (p *pool) toRAC(a *allocation) {
	a.status = domain.SeatStatusRAC
	a.racNo = p.nextRAC
	a.waitNo = 0
	p.nextRAC++
	p.rac = append(p.rac, a)
}

func (p *pool) toWaitlist(a *allocation) {
	a.status = domain.SeatStatusWaitlisted
	a.waitNo = p.nextWaitlist
	p.nextWaitlist++
	p.waitlist = append(p.waitlist, a)
}

// reserve allocates n passengers or nothing at all.
func (p *pool) reserve(n int) ([]*allocation, error) {
	if p.archived {
		return nil, fmt.Errorf("reserve %s: %w", p.key, domain.ErrPoolArchived)
	}
	p.promote()
	if free := p.headroom(); n > free {
		return nil, fmt.Errorf("reserve %d passengers in %s (%d places left): %w", n, p.key, free, domain.ErrPoolExhausted)
	}

	out := make([]*allocation, 0, n)
	for i := 0; i < n; i++ {
		a := &allocation{id: uuid.NewString()}
		switch {
		case p.confirmed < p.capacity.TotalSeats:
			p.confirm(a)
		case len(p.rac) < p.capacity.RACCap:
			p.toRAC(a)
		default:
			p.toWaitlist(a)
		}
		p.byID[a.id] = a
		out = append(out, a)
	}
	return out, nil
}

// release frees the given allocations and runs the promotion cascade. Ids that are
// unknown or already released are ignored.
func (p *pool) release(ids []string) (released []domain.SeatAssignment, promoted []*allocation, err error) {
	if p.archived {
		return nil, nil, fmt.Errorf("release in %s: %w", p.key, domain.ErrPoolArchived)
	}

	for _, id := range ids {
		a, ok := p.byID[id]
		if !ok || a.status == domain.SeatStatusCancelled {
			continue
		}
		released = append(released, p.assignment(a))
		switch a.status {
		case domain.SeatStatusConfirmed:
			p.seats[a.seat-1] = ""
			p.confirmed--
		case domain.SeatStatusRAC:
			p.rac = removeAllocation(p.rac, a)
		case domain.SeatStatusWaitlisted:
			p.waitlist = removeAllocation(p.waitlist, a)
		}
		a.status = domain.SeatStatusCancelled
	}
	if len(released) == 0 {
		return nil, nil, nil
	}
	return released, p.promote(), nil
}

// promote moves RAC passengers onto free seats and waitlisted passengers into RAC,
// strictly in order of their numbers, until nothing more can move. Passengers that
// moved are returned once each, in the order they first moved.
func (p *pool) promote() []*allocation {
	var moved []*allocation
	mark := func(a *allocation) {
		if !a.promoted {
			a.promoted = true
			moved = append(moved, a)
		}
	}

	for {
		switch {
		case p.confirmed < p.capacity.TotalSeats && len(p.rac) > 0:
			a := p.rac[0]
			p.rac = p.rac[1:]
			p.confirm(a)
			mark(a)
		case p.confirmed < p.capacity.TotalSeats && len(p.waitlist) > 0:
			a := p.waitlist[0]
			p.waitlist = p.waitlist[1:]
			p.confirm(a)
			mark(a)
		case len(p.rac) < p.capacity.RACCap && len(p.waitlist) > 0:
			a := p.waitlist[0]
			p.waitlist = p.waitlist[1:]
			p.toRAC(a)
			mark(a)
		default:
			for _, a := range moved {
				a.promoted = false
			}
			return moved
		}
	}
}

// restore re-inserts a persisted allocation. Confirmed seats must be free.
func (p *pool) restore(s domain.SeatAssignment) error {
	if s.AllocationID == "" {
		return fmt.Errorf("restore in %s: empty allocation id", p.key)
	}
	if _, ok := p.byID[s.AllocationID]; ok {
		return nil
	}

	a := &allocation{id: s.AllocationID, status: s.Status}
	switch s.Status {
	case domain.SeatStatusConfirmed:
		if s.SeatNumber < 1 || s.SeatNumber > len(p.seats) || p.seats[s.SeatNumber-1] != "" {
			return fmt.Errorf("restore %s: seat %d unavailable in %s", s.AllocationID, s.SeatNumber, p.key)
		}
		a.seat = s.SeatNumber
		p.seats[s.SeatNumber-1] = a.id
		p.confirmed++
	case domain.SeatStatusRAC:
		a.racNo = s.RACNumber
		p.rac = append(p.rac, a)
		if s.RACNumber >= p.nextRAC {
			p.nextRAC = s.RACNumber + 1
		}
	case domain.SeatStatusWaitlisted:
		a.waitNo = s.WaitlistNumber
		p.waitlist = append(p.waitlist, a)
		if s.WaitlistNumber >= p.nextWaitlist {
			p.nextWaitlist = s.WaitlistNumber + 1
		}
	case domain.SeatStatusCancelled:
	default:
		return fmt.Errorf("restore %s: unknown status %q", s.AllocationID, s.Status)
	}
	p.byID[a.id] = a
	return nil
}

func (p *pool) sortQueues() {
	sort.SliceStable(p.rac, func(i, j int) bool { return p.rac[i].racNo < p.rac[j].racNo })
	sort.SliceStable(p.waitlist, func(i, j int) bool { return p.waitlist[i].waitNo < p.waitlist[j].waitNo })
}

func (p *pool) assignment(a *allocation) domain.SeatAssignment {
	out := domain.SeatAssignment{
		AllocationID: a.id,
		Status:       a.status,
		CoachCode:    p.key.CoachCode,
	}
	switch a.status {
	case domain.SeatStatusConfirmed:
		out.SeatNumber = a.seat
		out.BerthType = p.layout.Berth(p.key.CoachCode, a.seat)
	case domain.SeatStatusRAC:
		out.RACNumber = a.racNo
		out.BerthType = p.layout.RACBerth(p.key.CoachCode)
	case domain.SeatStatusWaitlisted:
		out.WaitlistNumber = a.waitNo
	}
	return out
}

func (p *pool) snapshot() domain.PoolSnapshot {
	return domain.PoolSnapshot{
		Key:                p.key,
		TotalSeats:         p.capacity.TotalSeats,
		RACCap:             p.capacity.RACCap,
		WaitlistCap:        p.capacity.WaitlistCap,
		ConfirmedCount:     p.confirmed,
		RACCount:           len(p.rac),
		WaitlistCount:      len(p.waitlist),
		NextRACNumber:      p.nextRAC,
		NextWaitlistNumber: p.nextWaitlist,
		Archived:           p.archived,
	}
}

func removeAllocation(queue []*allocation, a *allocation) []*allocation {
	for i, q := range queue {
		if q == a {
			return append(queue[:i:i], queue[i+1:]...)
		}
	}
	return queue
}

package domain

import "fmt"

type SeatStatus string

const (
	SeatStatusConfirmed  SeatStatus = "CONFIRMED"
	SeatStatusRAC        SeatStatus = "RAC"
	SeatStatusWaitlisted SeatStatus = "WAITLISTED"
	SeatStatusCancelled  SeatStatus = "CANCELLED"
)

type BerthType string

const (
	BerthLower       BerthType = "LB"
	BerthMiddle      BerthType = "MB"
	BerthUpper       BerthType = "UB"
	BerthSideLower   BerthType = "SL"
	BerthSideUpper   BerthType = "SU"
	BerthWindowSeat  BerthType = "WS"
	BerthMiddleSeat  BerthType = "MS"
	BerthAisleSeat   BerthType = "AS"
	BerthUnspecified BerthType = ""
)

// PoolKey identifies one seat pool.
type PoolKey struct {
	TrainNumber string `json:"train_number"`
	DOJ         string `json:"doj"`
	CoachCode   string `json:"coach_code"`
	QuotaCode   string `json:"quota_code"`
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.TrainNumber, k.DOJ, k.CoachCode, k.QuotaCode)
}

// SeatAssignment is the structured allocation of one passenger within a pool.
type SeatAssignment struct {
	AllocationID   string     `json:"allocation_id"`
	Status         SeatStatus `json:"status"`
	CoachCode      string     `json:"coach_code"`
	SeatNumber     int        `json:"seat_number,omitempty"`
	BerthType      BerthType  `json:"berth_type,omitempty"`
	RACNumber      int        `json:"rac_number,omitempty"`
	WaitlistNumber int        `json:"waitlist_number,omitempty"`
}

// String renders the assignment the way tickets print it, e.g. "S1/23/LB", "RAC 4", "WL 12".
func (a SeatAssignment) String() string {
	switch a.Status {
	case SeatStatusConfirmed:
		if a.BerthType == BerthUnspecified {
			return fmt.Sprintf("%s/%d", a.CoachCode, a.SeatNumber)
		}
		return fmt.Sprintf("%s/%d/%s", a.CoachCode, a.SeatNumber, a.BerthType)
	case SeatStatusRAC:
		return fmt.Sprintf("RAC %d", a.RACNumber)
	case SeatStatusWaitlisted:
		return fmt.Sprintf("WL %d", a.WaitlistNumber)
	default:
		return string(a.Status)
	}
}

// PoolSnapshot is a read-only view of a seat pool's counters.
type PoolSnapshot struct {
	Key                PoolKey `json:"key"`
	TotalSeats         int     `json:"total_seats"`
	RACCap             int     `json:"rac_cap"`
	WaitlistCap        int     `json:"waitlist_cap"`
	ConfirmedCount     int     `json:"confirmed_count"`
	RACCount           int     `json:"rac_count"`
	WaitlistCount      int     `json:"waitlist_count"`
	NextRACNumber      int     `json:"next_rac_number"`
	NextWaitlistNumber int     `json:"next_waitlist_number"`
	Archived           bool    `json:"archived"`
}

func (s PoolSnapshot) AvailableSeats() int {
	return s.TotalSeats - s.ConfirmedCount
}

// Availability renders the status a new single-passenger booking would get.
func (s PoolSnapshot) Availability() string {
	switch {
	case s.Archived:
		return "CLOSED"
	case s.ConfirmedCount < s.TotalSeats:
		return fmt.Sprintf("AVAILABLE-%d", s.TotalSeats-s.ConfirmedCount)
	case s.RACCount < s.RACCap:
		return fmt.Sprintf("RAC%d", s.NextRACNumber)
	case s.WaitlistCount < s.WaitlistCap:
		return fmt.Sprintf("WL%d", s.NextWaitlistNumber)
	default:
		return "REGRET"
	}
}

// PoolCapacity is the fixed sizing of a seat pool, taken from reference data.
type PoolCapacity struct {
	TotalSeats  int `json:"total_seats"`
	RACCap      int `json:"rac_cap"`
	WaitlistCap int `json:"waitlist_cap"`
}

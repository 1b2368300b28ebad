package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PNRStatus string

const (
	PNRStatusConfirmed          PNRStatus = "CONFIRMED"
	PNRStatusPartiallyConfirmed PNRStatus = "PARTIALLY_CONFIRMED"
	PNRStatusRAC                PNRStatus = "RAC"
	PNRStatusWaitlisted         PNRStatus = "WAITLISTED"
	PNRStatusCancelled          PNRStatus = "CANCELLED"
)

type Gender string

const (
	GenderMale        Gender = "M"
	GenderFemale      Gender = "F"
	GenderTransgender Gender = "T"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderTransgender:
		return true
	}
	return false
}

const (
	MinAge               = 0
	MaxAge               = 120
	MaxPassengers        = 6
	ChildAgeBelow        = 6
	SeniorAgeAboveMale   = 60
	SeniorAgeAboveFemale = 50
)

// PassengerDetails is the passenger data collected before a booking exists.
type PassengerDetails struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender Gender `json:"gender"`
	IsPWD  bool   `json:"is_pwd"`
}

func (p PassengerDetails) IsChild() bool {
	return p.Age < ChildAgeBelow
}

func (p PassengerDetails) IsSenior() bool {
	if p.Gender == GenderFemale {
		return p.Age > SeniorAgeAboveFemale
	}
	return p.Age > SeniorAgeAboveMale
}

type Passenger struct {
	ID int `json:"id"`
	PassengerDetails
	BookingStatus SeatStatus      `json:"booking_status"`
	Status        SeatStatus      `json:"status"`
	Seat          SeatAssignment  `json:"seat"`
	Fare          decimal.Decimal `json:"fare"`
	Refund        decimal.Decimal `json:"refund"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
}

func (p Passenger) Cancelled() bool {
	return p.Status == SeatStatusCancelled
}

type Contact struct {
	Mobile string `json:"mobile"`
	Email  string `json:"email,omitempty"`
}

type Booking struct {
	PNR         string        `json:"pnr"`
	TrainNumber string        `json:"train_number"`
	DOJ         string        `json:"doj"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	CoachCode   string        `json:"coach_code"`
	QuotaCode   string        `json:"quota_code"`
	Passengers  []Passenger   `json:"passengers"`
	Fare        FareBreakdown `json:"fare"`
	Contact     Contact       `json:"contact"`
	Status      PNRStatus     `json:"pnr_status"`
	DepartureAt time.Time     `json:"departure_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (b *Booking) PoolKey() PoolKey {
	return PoolKey{TrainNumber: b.TrainNumber, DOJ: b.DOJ, CoachCode: b.CoachCode, QuotaCode: b.QuotaCode}
}

// Passenger returns a pointer into b.Passengers, or nil.
func (b *Booking) Passenger(id int) *Passenger {
	for i := range b.Passengers {
		if b.Passengers[i].ID == id {
			return &b.Passengers[i]
		}
	}
	return nil
}

// RefreshStatus recomputes the aggregate PNR status from the passengers.
func (b *Booking) RefreshStatus() {
	b.Status = DerivePNRStatus(b.Passengers)
}

func DerivePNRStatus(passengers []Passenger) PNRStatus {
	var confirmed, rac, waitlisted, active int
	for _, p := range passengers {
		switch p.Status {
		case SeatStatusConfirmed:
			confirmed++
		case SeatStatusRAC:
			rac++
		case SeatStatusWaitlisted:
			waitlisted++
		default:
			continue
		}
		active++
	}

	switch {
	case active == 0:
		return PNRStatusCancelled
	case confirmed == active:
		return PNRStatusConfirmed
	case rac == active:
		return PNRStatusRAC
	case waitlisted == active:
		return PNRStatusWaitlisted
	default:
		return PNRStatusPartiallyConfirmed
	}
}

// CancellationResult describes the outcome for one passenger of a cancellation request.
type CancellationResult struct {
	PassengerID    int             `json:"passenger_id"`
	PreviousStatus SeatStatus      `json:"previous_status"`
	FareShare      decimal.Decimal `json:"fare_share"`
	RefundPercent  int             `json:"refund_percent"`
	Refund         decimal.Decimal `json:"refund"`
}

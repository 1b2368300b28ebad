package domain

import "time"

type SessionState string

const (
	SessionCollectingPassengers SessionState = "COLLECTING_PASSENGERS"
	SessionFareCalculated       SessionState = "FARE_CALCULATED"
	SessionAwaitingVerification SessionState = "AWAITING_VERIFICATION"
	SessionConfirmed            SessionState = "CONFIRMED"
	SessionFailed               SessionState = "FAILED"
)

func (s SessionState) Terminal() bool {
	return s == SessionConfirmed || s == SessionFailed
}

// BookingRequest is everything a caller submits to price or book a journey.
type BookingRequest struct {
	TrainNumber string             `json:"train_number"`
	Source      string             `json:"source"`
	Destination string             `json:"destination"`
	DOJ         string             `json:"doj"`
	CoachCode   string             `json:"coach_code"`
	QuotaCode   string             `json:"quota_code"`
	Passengers  []PassengerDetails `json:"passengers"`
	Contact     Contact            `json:"contact"`
}

func (r BookingRequest) PoolKey() PoolKey {
	return PoolKey{TrainNumber: r.TrainNumber, DOJ: r.DOJ, CoachCode: r.CoachCode, QuotaCode: r.QuotaCode}
}

// BookingSession is the state of one booking attempt as it moves through the
// booking state machine.
type BookingSession struct {
	ID            string         `json:"id"`
	State         SessionState   `json:"state"`
	Request       BookingRequest `json:"request"`
	Fare          *FareBreakdown `json:"fare,omitempty"`
	DistanceKM    int            `json:"distance_km,omitempty"`
	DepartureAt   time.Time      `json:"departure_at"`
	PNR           string         `json:"pnr,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

package api

import (
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/shopspring/decimal"
)

type PassengerRequest struct {
	Name   string `json:"name" binding:"required,max=64"`
	Age    int    `json:"age" binding:"min=0,max=120"`
	Gender string `json:"gender" binding:"required,oneof=M F T"`
	IsPWD  bool   `json:"is_pwd"`
}

type ContactRequest struct {
	Mobile string `json:"mobile" binding:"omitempty,number,len=10"`
	Email  string `json:"email" binding:"omitempty,email"`
}

type FareRequest struct {
	TrainNumber string             `json:"train_number"`
	Source      string             `json:"source"`
	Destination string             `json:"destination"`
	DOJ         string             `json:"doj" binding:"omitempty,doj"`
	CoachCode   string             `json:"coach_code" binding:"required"`
	QuotaCode   string             `json:"quota_code" binding:"required"`
	DistanceKM  int                `json:"distance_km" binding:"min=0"`
	Passengers  []PassengerRequest `json:"passengers" binding:"dive"`
}

func (r FareRequest) Query() booking.FareQuery {
	return booking.FareQuery{
		TrainNumber: r.TrainNumber,
		Source:      r.Source,
		Destination: r.Destination,
		DOJ:         r.DOJ,
		CoachCode:   r.CoachCode,
		QuotaCode:   r.QuotaCode,
		DistanceKM:  r.DistanceKM,
		Passengers:  passengerDetails(r.Passengers),
	}
}

type BookingRequest struct {
	TrainNumber string             `json:"train_number" binding:"required"`
	Source      string             `json:"source" binding:"required"`
	Destination string             `json:"destination" binding:"required"`
	DOJ         string             `json:"doj" binding:"required,doj"`
	CoachCode   string             `json:"coach_code" binding:"required"`
	QuotaCode   string             `json:"quota_code" binding:"required"`
	Passengers  []PassengerRequest `json:"passengers" binding:"dive"`
	Contact     ContactRequest     `json:"contact"`
}

func (r BookingRequest) Domain() domain.BookingRequest {
	return domain.BookingRequest{
		TrainNumber: r.TrainNumber,
		Source:      r.Source,
		Destination: r.Destination,
		DOJ:         r.DOJ,
		CoachCode:   r.CoachCode,
		QuotaCode:   r.QuotaCode,
		Passengers:  passengerDetails(r.Passengers),
		Contact:     domain.Contact{Mobile: r.Contact.Mobile, Email: r.Contact.Email},
	}
}

type BookRequest struct {
	BookingRequest
	Verified bool `json:"verified"`
}

type CancelRequest struct {
	PassengerIDs []int `json:"passenger_ids" binding:"dive,min=1"`
}

type ConfirmRequest struct {
	Verified bool `json:"verified"`
}

func passengerDetails(in []PassengerRequest) []domain.PassengerDetails {
	out := make([]domain.PassengerDetails, len(in))
	for i, p := range in {
		out[i] = domain.PassengerDetails{Name: p.Name, Age: p.Age, Gender: domain.Gender(p.Gender), IsPWD: p.IsPWD}
	}
	return out
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type PassengerFareResponse struct {
	Index    int    `json:"index"`
	Category string `json:"category"`
	IsPWD    bool   `json:"is_pwd"`
	BaseFare string `json:"base_fare"`
	Discount string `json:"discount"`
	Fare     string `json:"fare"`
}

type FareResponse struct {
	CoachCode         string                  `json:"coach_code"`
	QuotaCode         string                  `json:"quota_code"`
	DistanceKM        int                     `json:"distance_km"`
	RatePerKM         string                  `json:"rate_per_km"`
	Passengers        []PassengerFareResponse `json:"passengers"`
	BaseTotal         string                  `json:"base_total"`
	DiscountTotal     string                  `json:"discount_total"`
	Subtotal          string                  `json:"subtotal"`
	ReservationCharge string                  `json:"reservation_charge"`
	Taxable           string                  `json:"taxable"`
	TaxRate           string                  `json:"tax_rate"`
	GST               string                  `json:"gst"`
	CGST              string                  `json:"cgst"`
	SGST              string                  `json:"sgst"`
	TotalFare         string                  `json:"total_fare"`
}

func NewFareResponse(f domain.FareBreakdown) FareResponse {
	out := FareResponse{
		CoachCode:         f.CoachCode,
		QuotaCode:         f.QuotaCode,
		DistanceKM:        f.DistanceKM,
		RatePerKM:         money(f.RatePerKM),
		Passengers:        make([]PassengerFareResponse, len(f.Passengers)),
		BaseTotal:         money(f.BaseTotal),
		DiscountTotal:     money(f.DiscountTotal),
		Subtotal:          money(f.Subtotal),
		ReservationCharge: money(f.ReservationCharge),
		Taxable:           money(f.Taxable),
		TaxRate:           f.TaxRate.String(),
		GST:               money(f.GST),
		CGST:              money(f.CGST),
		SGST:              money(f.SGST),
		TotalFare:         money(f.TotalFare),
	}
	for i, p := range f.Passengers {
		out.Passengers[i] = PassengerFareResponse{
			Index:    p.Index,
			Category: string(p.Category),
			IsPWD:    p.IsPWD,
			BaseFare: money(p.BaseFare),
			Discount: money(p.Discount),
			Fare:     money(p.Fare),
		}
	}
	return out
}

type PassengerResponse struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Age           int    `json:"age"`
	Gender        string `json:"gender"`
	IsPWD         bool   `json:"is_pwd"`
	BookingStatus string `json:"booking_status"`
	CurrentStatus string `json:"current_status"`
	Seat          string `json:"seat"`
	Fare          string `json:"fare"`
	Refund        string `json:"refund,omitempty"`
}

type BookingResponse struct {
	PNR         string              `json:"pnr"`
	Status      string              `json:"pnr_status"`
	TrainNumber string              `json:"train_number"`
	DOJ         string              `json:"doj"`
	Source      string              `json:"source"`
	Destination string              `json:"destination"`
	CoachCode   string              `json:"coach_code"`
	QuotaCode   string              `json:"quota_code"`
	DepartureAt string              `json:"departure_at"`
	Passengers  []PassengerResponse `json:"passengers"`
	Fare        FareResponse        `json:"fare"`
	Mobile      string              `json:"mobile"`
	Email       string              `json:"email,omitempty"`
	CreatedAt   string              `json:"created_at"`
}

func NewBookingResponse(b *domain.Booking) BookingResponse {
	out := BookingResponse{
		PNR:         b.PNR,
		Status:      string(b.Status),
		TrainNumber: b.TrainNumber,
		DOJ:         b.DOJ,
		Source:      b.Source,
		Destination: b.Destination,
		CoachCode:   b.CoachCode,
		QuotaCode:   b.QuotaCode,
		DepartureAt: b.DepartureAt.Format(time.RFC3339),
		Passengers:  make([]PassengerResponse, len(b.Passengers)),
		Fare:        NewFareResponse(b.Fare),
		Mobile:      b.Contact.Mobile,
		Email:       b.Contact.Email,
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
	}
	for i, p := range b.Passengers {
		pr := PassengerResponse{
			ID:            p.ID,
			Name:          p.Name,
			Age:           p.Age,
			Gender:        string(p.Gender),
			IsPWD:         p.IsPWD,
			BookingStatus: string(p.BookingStatus),
			CurrentStatus: string(p.Status),
			Seat:          p.Seat.String(),
			Fare:          money(p.Fare),
		}
		if p.Cancelled() {
			pr.Refund = money(p.Refund)
		}
		out.Passengers[i] = pr
	}
	return out
}

type CancellationResponse struct {
	PassengerID    int    `json:"passenger_id"`
	PreviousStatus string `json:"previous_status"`
	FareShare      string `json:"fare_share"`
	RefundPercent  int    `json:"refund_percent"`
	Refund         string `json:"refund"`
}

func NewCancellationResponses(results []domain.CancellationResult) []CancellationResponse {
	out := make([]CancellationResponse, len(results))
	for i, r := range results {
		out[i] = CancellationResponse{
			PassengerID:    r.PassengerID,
			PreviousStatus: string(r.PreviousStatus),
			FareShare:      money(r.FareShare),
			RefundPercent:  r.RefundPercent,
			Refund:         money(r.Refund),
		}
	}
	return out
}

type AvailabilityResponse struct {
	domain.PoolSnapshot
	AvailableSeats int    `json:"available_seats"`
	Availability   string `json:"availability"`
}

type SessionResponse struct {
	ID            string        `json:"id"`
	State         string        `json:"state"`
	Fare          *FareResponse `json:"fare,omitempty"`
	PNR           string        `json:"pnr,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	ExpiresAt     string        `json:"expires_at"`
}

func NewSessionResponse(s *domain.BookingSession) SessionResponse {
	out := SessionResponse{
		ID:            s.ID,
		State:         string(s.State),
		PNR:           s.PNR,
		FailureReason: s.FailureReason,
		ExpiresAt:     s.ExpiresAt.Format(time.RFC3339),
	}
	if s.Fare != nil {
		fare := NewFareResponse(*s.Fare)
		out.Fare = &fare
	}
	return out
}

type ConfirmResponse struct {
	Session SessionResponse  `json:"session"`
	Booking *BookingResponse `json:"booking,omitempty"`
}

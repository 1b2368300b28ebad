// Package fare computes itemized fares. It is the only place fare and concession
// rules live; every preview and booking goes through ComputeFare.
package fare

import (
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/reference"
	"github.com/shopspring/decimal"
)

var (
	childFactor  = decimal.RequireFromString("0.50")
	seniorFactor = decimal.RequireFromString("0.60")
	pwdFactor    = decimal.RequireFromString("0.75")
	two          = decimal.NewFromInt(2)

	DefaultTaxRate     = decimal.RequireFromString("0.18")
	DefaultMinimumFare = decimal.NewFromInt(1)
)

// Tables is the slice of reference data the calculator reads.
type Tables interface {
	Coach(code string) (reference.Coach, bool)
	Quota(code string) (reference.Quota, bool)
}

type Calculator struct {
	tables      Tables
	taxRate     decimal.Decimal
	minimumFare decimal.Decimal
}

type Option func(*Calculator)

func WithTaxRate(rate decimal.Decimal) Option {
	return func(c *Calculator) {
		c.taxRate = rate
	}
}

func WithMinimumFare(min decimal.Decimal) Option {
	return func(c *Calculator) {
		c.minimumFare = min
	}
}

func NewCalculator(tables Tables, opts ...Option) *Calculator {
	c := &Calculator{
		tables:      tables,
		taxRate:     DefaultTaxRate,
		minimumFare: DefaultMinimumFare,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ComputeFare prices one booking. It has no side effects: the same arguments always
// produce the same breakdown.
func (c *Calculator) ComputeFare(coachCode, quotaCode string, passengers []domain.PassengerDetails, distanceKM int) (domain.FareBreakdown, error) {
	if len(passengers) == 0 {
		return domain.FareBreakdown{}, domain.Invalid("passengers", domain.ErrEmptyPassengerList, "at least one passenger is required")
	}
	if len(passengers) > domain.MaxPassengers {
		return domain.FareBreakdown{}, domain.Invalid("passengers", domain.ErrTooManyPassengers, "at most %d passengers per booking, got %d", domain.MaxPassengers, len(passengers))
	}
	for i, p := range passengers {
		if p.Age < domain.MinAge || p.Age > domain.MaxAge {
			return domain.FareBreakdown{}, domain.Invalid("passengers", domain.ErrInvalidAge, "passenger %d: age %d outside %d-%d", i+1, p.Age, domain.MinAge, domain.MaxAge)
		}
	}
	if distanceKM <= 0 {
		return domain.FareBreakdown{}, domain.Invalid("distance_km", domain.ErrInvalidDistance, "distance must be positive, got %d", distanceKM)
	}
	coach, ok := c.tables.Coach(coachCode)
	if !ok {
		return domain.FareBreakdown{}, domain.Invalid("coach_code", domain.ErrInvalidCoach, "unknown coach %q", coachCode)
	}
	quota, ok := c.tables.Quota(quotaCode)
	if !ok {
		return domain.FareBreakdown{}, domain.Invalid("quota_code", domain.ErrInvalidQuota, "unknown quota %q", quotaCode)
	}

	base := coach.RatePerKM.Mul(decimal.NewFromInt(int64(distanceKM))).Round(2)

	out := domain.FareBreakdown{
		CoachCode:         coach.Code,
		QuotaCode:         quota.Code,
		DistanceKM:        distanceKM,
		RatePerKM:         coach.RatePerKM,
		Passengers:        make([]domain.PassengerFare, 0, len(passengers)),
		BaseTotal:         decimal.Zero,
		DiscountTotal:     decimal.Zero,
		Subtotal:          decimal.Zero,
		ReservationCharge: quota.ReservationCharge,
		TaxRate:           c.taxRate,
	}
	for i, p := range passengers {
		pf := c.passengerFare(base, p)
		pf.Index = i + 1
		out.Passengers = append(out.Passengers, pf)
		out.BaseTotal = out.BaseTotal.Add(pf.BaseFare)
		out.DiscountTotal = out.DiscountTotal.Add(pf.Discount)
		out.Subtotal = out.Subtotal.Add(pf.Fare)
	}

	out.Taxable = out.Subtotal.Add(out.ReservationCharge)
	out.GST = out.Taxable.Mul(c.taxRate).RoundBank(2)
	out.CGST = out.GST.Div(two).RoundBank(2)
	out.SGST = out.GST.Sub(out.CGST)
	out.TotalFare = out.Taxable.Add(out.GST).RoundBank(2)
	return out, nil
}

func (c *Calculator) passengerFare(base decimal.Decimal, p domain.PassengerDetails) domain.PassengerFare {
	pf := domain.PassengerFare{
		Category: domain.FareCategoryAdult,
		IsPWD:    p.IsPWD,
		BaseFare: base,
	}

	fare := base
	switch {
	case p.IsChild():
		pf.Category = domain.FareCategoryChild
		fare = base.Mul(childFactor).Round(2)
	case p.IsSenior():
		pf.Category = domain.FareCategorySenior
		fare = base.Mul(seniorFactor).Round(2)
	}
	if p.IsPWD {
		fare = fare.Mul(pwdFactor).Round(2)
	}
	if fare.LessThan(c.minimumFare) {
		fare = c.minimumFare
	}

	pf.Fare = fare
	pf.Discount = base.Sub(fare)
	if pf.Discount.IsNegative() {
		pf.Discount = decimal.Zero
	}
	return pf
}

package domain

import "github.com/shopspring/decimal"

type FareCategory string

const (
	FareCategoryAdult  FareCategory = "ADULT"
	FareCategoryChild  FareCategory = "CHILD"
	FareCategorySenior FareCategory = "SENIOR"
)

type PassengerFare struct {
	Index    int             `json:"index"`
	Category FareCategory    `json:"category"`
	IsPWD    bool            `json:"is_pwd"`
	BaseFare decimal.Decimal `json:"base_fare"`
	Discount decimal.Decimal `json:"discount"`
	Fare     decimal.Decimal `json:"fare"`
}

// FareBreakdown is the immutable fare snapshot attached to a booking.
type FareBreakdown struct {
	CoachCode         string          `json:"coach_code"`
	QuotaCode         string          `json:"quota_code"`
	DistanceKM        int             `json:"distance_km"`
	RatePerKM         decimal.Decimal `json:"rate_per_km"`
	Passengers        []PassengerFare `json:"passengers"`
	BaseTotal         decimal.Decimal `json:"base_total"`
	DiscountTotal     decimal.Decimal `json:"discount_total"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	ReservationCharge decimal.Decimal `json:"reservation_charge"`
	Taxable           decimal.Decimal `json:"taxable"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	GST               decimal.Decimal `json:"gst"`
	CGST              decimal.Decimal `json:"cgst"`
	SGST              decimal.Decimal `json:"sgst"`
	TotalFare         decimal.Decimal `json:"total_fare"`
}

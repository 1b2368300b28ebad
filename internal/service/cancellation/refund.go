package cancellation

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundPercent returns the refundable share of the fare for a cancellation made
// untilDeparture before the scheduled departure.
func RefundPercent(untilDeparture time.Duration) int {
	switch {
	case untilDeparture >= 48*time.Hour:
		return 75
	case untilDeparture >= 24*time.Hour:
		return 50
	default:
		return 0
	}
}

// allocate splits total across weights proportionally, rounded to paise, with the
// rounding residue on the last element so the parts always sum to total. Zero
// weights everywhere split evenly.
func allocate(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return out
	}

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}

	assigned := decimal.Zero
	last := len(weights) - 1
	for i, w := range weights[:last] {
		var part decimal.Decimal
		if sum.IsZero() {
			part = total.Div(decimal.NewFromInt(int64(len(weights)))).Round(2)
		} else {
			part = total.Mul(w).Div(sum).Round(2)
		}
		out[i] = part
		assigned = assigned.Add(part)
	}
	out[last] = total.Sub(assigned)
	return out
}

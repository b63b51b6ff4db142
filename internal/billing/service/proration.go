package service

import (
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
)

// computeProration splits the current billing period at "now" and prices
// both halves in integer cents. Rounding is half away from zero on each
// amount independently, which keeps every figure within one cent of exact.
func computeProration(periodStart, periodEnd, now time.Time, currentFeeCents, newPriceCents int64) billingdomain.ProrationResult {
	ratio := remainingRatio(periodStart, periodEnd, now)

	unused := roundCents(decimal.NewFromInt(currentFeeCents).Mul(ratio))
	charge := roundCents(decimal.NewFromInt(newPriceCents).Mul(ratio))

	return billingdomain.ProrationResult{
		RemainingRatio:    ratio,
		UnusedCreditCents: unused,
		NewChargeCents:    charge,
		NetCents:          charge - unused,
	}
}

// remainingRatio is the unused fraction of the period, in [0, 1]. A
// degenerate period (end not after start) yields zero rather than a division
// error; "now" outside the period is clamped to its bounds.
func remainingRatio(start, end, now time.Time) decimal.Decimal {
	if !end.After(start) {
		return decimal.Zero
	}
	if now.Before(start) {
		now = start
	}
	if now.After(end) {
		now = end
	}

	remaining := decimal.NewFromInt(end.Unix() - now.Unix())
	total := decimal.NewFromInt(end.Unix() - start.Unix())
	return remaining.Div(total)
}

func roundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Package finance holds the cooperative's money rules. All amounts are whole
// rupiah; fractional results are floored.
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	memberShare  = decimal.NewFromInt(60)
	reserveShare = decimal.NewFromInt(30)
	hundred      = decimal.NewFromInt(100)

	limitMultiplier = decimal.RequireFromString("1.5")
	limitMonths     = decimal.NewFromInt(6)
)

// LookbackMonths is the spending window the credit limit is computed over.
const LookbackMonths = 6

type SHUSplit struct {
	Profit  int64
	Member  int64
	Reserve int64
	Other   int64
}

// SplitSHU divides a transaction profit 60/30/10. The member and reserve parts
// are floored and the remainder goes to the last part, so the three always add
// up to profit. A non-positive profit distributes nothing.
func SplitSHU(profit int64) SHUSplit {
	if profit <= 0 {
		return SHUSplit{}
	}

	p := decimal.NewFromInt(profit)
	member := p.Mul(memberShare).Div(hundred).Floor().IntPart()
	reserve := p.Mul(reserveShare).Div(hundred).Floor().IntPart()

	return SHUSplit{
		Profit:  profit,
		Member:  member,
		Reserve: reserve,
		Other:   profit - member - reserve,
	}
}

// CreditLimit is 1.5 times the average monthly spend over the lookback window.
func CreditLimit(spendInWindow int64) int64 {
	if spendInWindow <= 0 {
		return 0
	}
	return MonthlyAverage(spendInWindow).Mul(limitMultiplier).Floor().IntPart()
}

func MonthlyAverage(spendInWindow int64) decimal.Decimal {
	if spendInWindow <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(spendInWindow).Div(limitMonths)
}

// Available is the headroom left under the limit, never negative.
func Available(limit int64, hutang int64) int64 {
	if hutang >= limit {
		return 0
	}
	return limit - hutang
}

// ExceedsLimit reports whether taking on amount more debt breaks the limit.
func ExceedsLimit(limit int64, hutang int64, amount int64) bool {
	return hutang+amount > limit
}

// WindowStart returns the inclusive start of the spending window ending at now.
func WindowStart(now time.Time) time.Time {
	return now.AddDate(0, -LookbackMonths, 0)
}

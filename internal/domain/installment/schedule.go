package installment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ScheduledPeriod is one entry of a repayment schedule. Amounts are in cents.
type ScheduledPeriod struct {
	Sequence int
	Base     int64
	Fee      int64
}

// Total returns the amount due for the period.
func (p ScheduledPeriod) Total() int64 {
	return p.Base + p.Fee
}

// Schedule is an ordered repayment schedule.
type Schedule []ScheduledPeriod

// Principal returns the sum of all base amounts.
func (s Schedule) Principal() int64 {
	var sum int64
	for _, p := range s {
		sum += p.Base
	}
	return sum
}

// Fees returns the sum of all fees.
func (s Schedule) Fees() int64 {
	var sum int64
	for _, p := range s {
		sum += p.Fee
	}
	return sum
}

// Total returns the sum of all period amounts.
func (s Schedule) Total() int64 {
	return s.Principal() + s.Fees()
}

// BuildSchedule splits totalAmount (cents) into periodCount periods.
//
// feeRate is a percentage charged on the principal: the total fee is
// totalAmount*feeRate/100 rounded half-up to the cent. Principal and fee are
// each divided evenly with truncation and the final period absorbs the
// remainder, so the schedule sums exactly to principal plus fees.
func BuildSchedule(totalAmount int64, periodCount int, feeRate decimal.Decimal) (Schedule, error) {
	if periodCount <= 0 {
		return nil, fmt.Errorf("%w: period count %d", ErrInvalidSchedule, periodCount)
	}
	if totalAmount <= 0 {
		return nil, fmt.Errorf("%w: total amount %d", ErrInvalidSchedule, totalAmount)
	}
	if feeRate.IsNegative() {
		return nil, fmt.Errorf("%w: fee rate %s", ErrInvalidSchedule, feeRate)
	}

	totalFee := decimal.NewFromInt(totalAmount).Mul(feeRate).Div(hundred).Round(0).IntPart()

	bases := split(totalAmount, periodCount)
	fees := split(totalFee, periodCount)

	schedule := make(Schedule, periodCount)
	for i := range schedule {
		schedule[i] = ScheduledPeriod{
			Sequence: i,
			Base:     bases[i],
			Fee:      fees[i],
		}
	}
	return schedule, nil
}

// split divides amount into n parts of amount/n, the last part taking the remainder.
func split(amount int64, n int) []int64 {
	parts := make([]int64, n)
	each := amount / int64(n)
	for i := range parts {
		parts[i] = each
	}
	parts[n-1] = amount - each*int64(n-1)
	return parts
}

// DueDate returns the due date of the period at sequence for a plan created
// at start: the first period is due the next day, each later one a month after.
func DueDate(start time.Time, sequence int) time.Time {
	y, m, d := start.Date()
	first := time.Date(y, m, d+1, 0, 0, 0, 0, start.Location())
	return first.AddDate(0, sequence, 0)
}

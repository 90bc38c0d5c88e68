package ar

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceivableStatus enumerates receivable lifecycle values.
type ReceivableStatus string

const (
	StatusOutstanding   ReceivableStatus = "OUTSTANDING"
	StatusPartiallyPaid ReceivableStatus = "PARTIALLY_PAID"
	StatusFullyPaid     ReceivableStatus = "FULLY_PAID"
	StatusWrittenOff    ReceivableStatus = "WRITTEN_OFF"
)

// open reports whether the receivable still accrues overdue days.
func (s ReceivableStatus) open() bool {
	return s == StatusOutstanding || s == StatusPartiallyPaid
}

// Receivable tracks an unpaid income record. Original amount never
// changes; outstanding decreases monotonically with payments, and the
// accumulated late fee is refreshed from the effective policy.
type Receivable struct {
	ID              uuid.UUID
	CompanyID       uuid.UUID
	SourceRecordID  uuid.UUID
	OriginalAmount  decimal.Decimal
	Outstanding     decimal.Decimal
	LateFee         decimal.Decimal
	DueDate         time.Time
	LastPaymentDate *time.Time
	Status          ReceivableStatus
	Description     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TotalOutstanding is principal plus accrued late fee.
func (r Receivable) TotalOutstanding() decimal.Decimal {
	return r.Outstanding.Add(r.LateFee)
}

// IsOverdue reports whether the receivable is past due and still open.
func (r Receivable) IsOverdue(asOf time.Time) bool {
	return asOf.After(r.DueDate) && r.Status.open()
}

// OverdueDays is days past due while the receivable is open, else 0.
func (r Receivable) OverdueDays(asOf time.Time) int {
	if !r.IsOverdue(asOf) {
		return 0
	}
	return int(asOf.Sub(r.DueDate).Hours() / 24)
}

// LateFeeType enumerates late fee calculation modes.
type LateFeeType string

const (
	LateFeePercentage LateFeeType = "PERCENTAGE"
	LateFeeFixed      LateFeeType = "FIXED"
	LateFeeDailyRate  LateFeeType = "DAILY_RATE"
)

func (t LateFeeType) Valid() bool {
	switch t {
	case LateFeePercentage, LateFeeFixed, LateFeeDailyRate:
		return true
	}
	return false
}

// LateFeePolicy describes how late fees accrue for a company's
// receivables within an effective date window.
type LateFeePolicy struct {
	ID              uuid.UUID
	CompanyID       uuid.UUID
	Name            string
	GracePeriodDays int
	Type            LateFeeType
	Rate            decimal.Decimal
	FixedFee        decimal.Decimal
	MaxLateFee      *decimal.Decimal
	IsActive        bool
	EffectiveFrom   time.Time
	EffectiveTo     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EffectiveOn reports whether the policy applies on the given date.
func (p LateFeePolicy) EffectiveOn(date time.Time) bool {
	if !p.IsActive || date.Before(p.EffectiveFrom) {
		return false
	}
	return p.EffectiveTo == nil || !date.After(*p.EffectiveTo)
}

var hundred = decimal.NewFromInt(100)

// Calculate computes the late fee for the outstanding amount after the
// given overdue days. Days inside the grace period accrue nothing; the
// result is clamped to [0, MaxLateFee] when a cap is set.
func (p LateFeePolicy) Calculate(outstanding decimal.Decimal, overdueDays int) decimal.Decimal {
	if overdueDays <= p.GracePeriodDays {
		return decimal.Zero
	}
	actualOverdueDays := overdueDays - p.GracePeriodDays

	var fee decimal.Decimal
	switch p.Type {
	case LateFeePercentage:
		fee = outstanding.Mul(p.Rate).Div(hundred)
	case LateFeeFixed:
		fee = p.FixedFee
	case LateFeeDailyRate:
		fee = outstanding.Mul(p.Rate).Div(hundred).Mul(decimal.NewFromInt(int64(actualOverdueDays)))
	default:
		return decimal.Zero
	}

	if p.MaxLateFee != nil && fee.GreaterThan(*p.MaxLateFee) {
		fee = *p.MaxLateFee
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}

// AgingBucket summarises open receivable totals by overdue age.
type AgingBucket struct {
	Current   decimal.Decimal
	Bucket30  decimal.Decimal
	Bucket60  decimal.Decimal
	Bucket90  decimal.Decimal
	Bucket120 decimal.Decimal
}

// Total sums all buckets.
func (b AgingBucket) Total() decimal.Decimal {
	return b.Current.Add(b.Bucket30).Add(b.Bucket60).Add(b.Bucket90).Add(b.Bucket120)
}

// add assigns the amount to the bucket for the overdue age.
func (b *AgingBucket) add(overdueDays int, amount decimal.Decimal) {
	switch {
	case overdueDays <= 0:
		b.Current = b.Current.Add(amount)
	case overdueDays <= 30:
		b.Bucket30 = b.Bucket30.Add(amount)
	case overdueDays <= 60:
		b.Bucket60 = b.Bucket60.Add(amount)
	case overdueDays <= 90:
		b.Bucket90 = b.Bucket90.Add(amount)
	default:
		b.Bucket120 = b.Bucket120.Add(amount)
	}
}

// newAgingBucket returns a bucket with zeroed decimal fields.
func newAgingBucket() AgingBucket {
	return AgingBucket{
		Current:   decimal.Zero,
		Bucket30:  decimal.Zero,
		Bucket60:  decimal.Zero,
		Bucket90:  decimal.Zero,
		Bucket120: decimal.Zero,
	}
}

// ReceivableSnapshot is the point-in-time view of one open receivable
// inside an aging report. OverdueDays and Total are computed at the
// report's asOf date, not at read time.
type ReceivableSnapshot struct {
	ReceivableID uuid.UUID
	DueDate      time.Time
	Outstanding  decimal.Decimal
	LateFee      decimal.Decimal
	Total        decimal.Decimal
	OverdueDays  int
	Status       ReceivableStatus
}

// AgingReport pairs per-receivable snapshots with the bucketed totals,
// both computed at the same asOf date.
type AgingReport struct {
	AsOf      time.Time
	Snapshots []ReceivableSnapshot
	Buckets   AgingBucket
}

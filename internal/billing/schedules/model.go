package schedules

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequency enumerates generation cadences.
type Frequency string

const (
	FrequencyMonthly      Frequency = "MONTHLY"
	FrequencyQuarterly    Frequency = "QUARTERLY"
	FrequencySemiAnnually Frequency = "SEMI_ANNUALLY"
	FrequencyAnnually     Frequency = "ANNUALLY"
)

// frequencyMonths maps each cadence to its base month step. The step is
// multiplied by the schedule's interval value.
var frequencyMonths = map[Frequency]int{
	FrequencyMonthly:      1,
	FrequencyQuarterly:    3,
	FrequencySemiAnnually: 6,
	FrequencyAnnually:     12,
}

// dueDateOffsets is days of grace between generation and payment due.
var dueDateOffsets = map[Frequency]int{
	FrequencyMonthly:      30,
	FrequencyQuarterly:    45,
	FrequencySemiAnnually: 60,
	FrequencyAnnually:     90,
}

// Valid reports whether the frequency is known.
func (f Frequency) Valid() bool {
	_, ok := frequencyMonths[f]
	return ok
}

// Kind separates income schedules from expense schedules.
type Kind string

const (
	KindIncome  Kind = "INCOME"
	KindExpense Kind = "EXPENSE"
)

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Schedule drives recurring generation of draft income or expense
// records, such as monthly maintenance fees or rent.
type Schedule struct {
	ID                 uuid.UUID
	CompanyID          uuid.UUID
	Kind               Kind
	Name               string
	Frequency          Frequency
	IntervalValue      int
	Amount             decimal.Decimal
	StartDate          time.Time
	EndDate            *time.Time
	NextGenerationDate time.Time
	LastGeneratedDate  *time.Time
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ActiveOn reports whether the schedule is live on the given date.
func (s Schedule) ActiveOn(date time.Time) bool {
	if !s.IsActive || date.Before(s.StartDate) {
		return false
	}
	return s.EndDate == nil || !date.After(*s.EndDate)
}

// ShouldGenerate reports whether a record is due for the given date.
func (s Schedule) ShouldGenerate(date time.Time) bool {
	return s.ActiveOn(date) && !date.Before(s.NextGenerationDate)
}

// NextGenerationAfter computes the generation date that follows the
// current one: frequency months times the interval multiplier.
func (s Schedule) NextGenerationAfter() time.Time {
	months := frequencyMonths[s.Frequency] * s.interval()
	return s.NextGenerationDate.AddDate(0, months, 0)
}

// DueDateFor computes the payment due date for a record generated on
// the given date.
func (s Schedule) DueDateFor(generationDate time.Time) time.Time {
	return generationDate.AddDate(0, 0, dueDateOffsets[s.Frequency])
}

func (s Schedule) interval() int {
	if s.IntervalValue < 1 {
		return 1
	}
	return s.IntervalValue
}

// RecordStatus is the lifecycle of a generated record. Records start as
// drafts; collaborators confirm them into ledger postings.
type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "PENDING"
	RecordStatusConfirmed RecordStatus = "CONFIRMED"
	RecordStatusCancelled RecordStatus = "CANCELLED"
)

// GeneratedRecord is one materialized income or expense draft. The
// (ScheduleID, GenerationDate) pair is unique, which backs idempotent
// re-runs.
type GeneratedRecord struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	ScheduleID     uuid.UUID
	Kind           Kind
	GenerationDate time.Time
	DueDate        time.Time
	Amount         decimal.Decimal
	Description    string
	Status         RecordStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

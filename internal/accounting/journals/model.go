package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType enumerates journal entry origins.
type EntryType string

const (
	EntryTypeManual     EntryType = "MANUAL"
	EntryTypeAuto       EntryType = "AUTO"
	EntryTypeAdjustment EntryType = "ADJUSTMENT"
	EntryTypeClosing    EntryType = "CLOSING"
)

// Valid reports whether the type is known.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeManual, EntryTypeAuto, EntryTypeAdjustment, EntryTypeClosing:
		return true
	}
	return false
}

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "DRAFT"
	StatusPending  EntryStatus = "PENDING"
	StatusApproved EntryStatus = "APPROVED"
	StatusPosted   EntryStatus = "POSTED"
	StatusReversed EntryStatus = "REVERSED"
)

// transitions is the single source of truth for the entry lifecycle.
// No transition skips states, and the only exit from POSTED is the
// reversal, which creates a new entry rather than mutating this one.
var transitions = map[EntryStatus]map[EntryStatus]bool{
	StatusDraft:    {StatusPending: true},
	StatusPending:  {StatusApproved: true},
	StatusApproved: {StatusPosted: true},
	StatusPosted:   {StatusReversed: true},
	StatusReversed: {},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to EntryStatus) bool {
	return transitions[from][to]
}

// JournalEntry captures entry metadata. Lines live in their own table
// and reference the entry by ID; once POSTED the entry is immutable.
type JournalEntry struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	Number         string
	Date           time.Time
	Type           EntryType
	Status         EntryStatus
	Description    string
	TotalAmount    decimal.Decimal
	ApprovedBy     *uuid.UUID
	ApprovedAt     *time.Time
	PostedAt       *time.Time
	ReversedAt     *time.Time
	ReversalReason string
	// ReversalOfID links a reversing entry back to the POSTED entry it
	// negates.
	ReversalOfID *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account. Exactly
// one of Debit/Credit is strictly positive; the other is zero.
type JournalLine struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	AccountID   uuid.UUID
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	LineOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Totals returns debit and credit sums over the lines.
func Totals(lines []JournalLine) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Balanced reports exact decimal equality of debit and credit totals.
func Balanced(lines []JournalLine) bool {
	debit, credit := Totals(lines)
	return debit.Equal(credit)
}

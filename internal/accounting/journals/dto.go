package journals

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atrium-bms/atrium/internal/accounting/shared"
)

// CreateEntryInput groups fields required to open a draft entry.
type CreateEntryInput struct {
	CompanyID   uuid.UUID
	Date        time.Time
	Type        EntryType
	Description string
	ActorID     uuid.UUID
}

// Validate ensures draft creation input meets minimum criteria.
func (in CreateEntryInput) Validate() error {
	if in.CompanyID == uuid.Nil {
		return errors.New("journals: company required")
	}
	if in.Date.IsZero() {
		return errors.New("journals: entry date required")
	}
	if in.Type == "" {
		return errors.New("journals: entry type required")
	}
	if !in.Type.Valid() {
		return errors.New("journals: unknown entry type")
	}
	if strings.TrimSpace(in.Description) == "" {
		return errors.New("journals: description required")
	}
	return nil
}

// LineInput describes a journal line to be added to a draft.
type LineInput struct {
	AccountID   uuid.UUID
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Validate enforces the one-sided line rule: exactly one of
// debit/credit strictly positive, the other exactly zero.
func (in LineInput) Validate() error {
	if in.AccountID == uuid.Nil {
		return shared.ErrUnknownAccount
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return shared.ErrMalformedLine
	}
	debitSet := in.Debit.IsPositive()
	creditSet := in.Credit.IsPositive()
	if debitSet == creditSet {
		return shared.ErrMalformedLine
	}
	return nil
}

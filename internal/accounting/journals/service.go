package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atrium-bms/atrium/internal/accounting/periods"
	"github.com/atrium-bms/atrium/internal/accounting/shared"
	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

// AuditPort records journal lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// AccountGuard checks that an account accepts journal lines.
type AccountGuard interface {
	IsPostable(ctx context.Context, companyID, accountID uuid.UUID) error
}

// NumberGenerator issues unique journal numbers per company.
type NumberGenerator interface {
	Next(ctx context.Context, companyID uuid.UUID, date time.Time) (string, error)
}

// MetricsPort counts lifecycle transitions.
type MetricsPort interface {
	JournalTransition(status string)
}

type Service struct {
	repo     Repository
	audit    AuditPort
	accounts AccountGuard
	numbers  NumberGenerator
	metrics  MetricsPort
	now      func() time.Time
}

func NewService(repo Repository, audit AuditPort, accounts AccountGuard, numbers NumberGenerator) *Service {
	return &Service{repo: repo, audit: audit, accounts: accounts, numbers: numbers, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

func (s *Service) Get(ctx context.Context, entryID uuid.UUID) (JournalEntry, error) {
	return s.repo.GetWithLines(ctx, entryID)
}

func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]JournalEntry, error) {
	return s.repo.List(ctx, companyID)
}

// CreateDraft opens a new DRAFT entry with no lines. The journal number
// is assigned at creation so drafts are traceable before they post.
func (s *Service) CreateDraft(ctx context.Context, in CreateEntryInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// The sequence upsert commits on its own statement, so a draft
		// that fails to insert leaves a gap in the numbering. Gaps are
		// tolerated; collisions are not.
		number, err := s.numbers.Next(ctx, in.CompanyID, in.Date)
		if err != nil {
			return err
		}
		entry, err = tx.InsertEntry(ctx, JournalEntry{
			ID:          uuid.New(),
			CompanyID:   in.CompanyID,
			Number:      number,
			Date:        in.Date,
			Type:        in.Type,
			Status:      StatusDraft,
			Description: strings.TrimSpace(in.Description),
			TotalAmount: decimal.Zero,
		})
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.create", entry.ID, map[string]any{"number": entry.Number, "type": string(entry.Type)})
	return entry, nil
}

// AddLine appends a line to a DRAFT entry and refreshes the stored
// total. Any other status rejects the mutation.
func (s *Service) AddLine(ctx context.Context, entryID uuid.UUID, actorID uuid.UUID, in LineInput) (JournalLine, error) {
	if err := in.Validate(); err != nil {
		return JournalLine{}, err
	}
	var line JournalLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return shared.ErrInvalidTransition
		}
		if err := s.accounts.IsPostable(ctx, entry.CompanyID, in.AccountID); err != nil {
			return err
		}
		order, err := tx.NextLineOrder(ctx, entryID)
		if err != nil {
			return err
		}
		line, err = tx.InsertLine(ctx, JournalLine{
			ID:          uuid.New(),
			EntryID:     entryID,
			AccountID:   in.AccountID,
			Description: in.Description,
			Debit:       in.Debit,
			Credit:      in.Credit,
			LineOrder:   order,
		})
		if err != nil {
			return err
		}
		return s.refreshTotal(ctx, tx, entryID)
	})
	if err != nil {
		return JournalLine{}, err
	}
	s.record(ctx, actorID, "journal.line.add", entryID, map[string]any{"line_id": line.ID.String()})
	return line, nil
}

// RemoveLine deletes a line from a DRAFT entry.
func (s *Service) RemoveLine(ctx context.Context, entryID, lineID, actorID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return shared.ErrInvalidTransition
		}
		if err := tx.DeleteLine(ctx, entryID, lineID); err != nil {
			return err
		}
		return s.refreshTotal(ctx, tx, entryID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "journal.line.remove", entryID, map[string]any{"line_id": lineID.String()})
	return nil
}

// Submit moves DRAFT to PENDING after the full balance check. The
// covering period must exist and be OPEN; the period row stays locked
// until commit so a concurrent close cannot slip in between.
func (s *Service) Submit(ctx context.Context, entryID, actorID uuid.UUID) (JournalEntry, error) {
	return s.transition(ctx, entryID, actorID, StatusPending, "journal.submit", func(ctx context.Context, tx TxRepository, entry *JournalEntry, lines []JournalLine) error {
		if err := validateLines(lines); err != nil {
			return err
		}
		return s.ensureDateOpen(ctx, tx, entry.CompanyID, entry.Date)
	})
}

// Approve moves PENDING to APPROVED and records the approver.
func (s *Service) Approve(ctx context.Context, entryID, approverID uuid.UUID) (JournalEntry, error) {
	return s.transition(ctx, entryID, approverID, StatusApproved, "journal.approve", func(ctx context.Context, tx TxRepository, entry *JournalEntry, lines []JournalLine) error {
		if err := validateLines(lines); err != nil {
			return err
		}
		now := s.now()
		entry.ApprovedBy = &approverID
		entry.ApprovedAt = &now
		return nil
	})
}

// Post moves APPROVED to POSTED. The balance and the period gate are
// re-checked at posting time; after commit the entry and its lines are
// immutable.
func (s *Service) Post(ctx context.Context, entryID, actorID uuid.UUID) (JournalEntry, error) {
	return s.transition(ctx, entryID, actorID, StatusPosted, "journal.post", func(ctx context.Context, tx TxRepository, entry *JournalEntry, lines []JournalLine) error {
		if err := validateLines(lines); err != nil {
			return err
		}
		if err := s.ensureDateOpen(ctx, tx, entry.CompanyID, entry.Date); err != nil {
			return err
		}
		now := s.now()
		entry.PostedAt = &now
		return nil
	})
}

// Reverse marks a POSTED entry REVERSED and creates a new DRAFT entry
// whose lines mirror the original with debit and credit swapped. The
// original is never mutated beyond its status stamp.
func (s *Service) Reverse(ctx context.Context, entryID, actorID uuid.UUID, reason string) (JournalEntry, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return JournalEntry{}, errors.New("journals: reversal reason required")
	}
	var original JournalEntry
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !CanTransition(entry.Status, StatusReversed) {
			return shared.ErrInvalidTransition
		}
		lines, err := tx.GetLines(ctx, entryID)
		if err != nil {
			return err
		}
		now := s.now()
		entry.Status = StatusReversed
		entry.ReversedAt = &now
		entry.ReversalReason = reason
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		number, err := s.numbers.Next(ctx, entry.CompanyID, now)
		if err != nil {
			return err
		}
		reversal, err = tx.InsertEntry(ctx, JournalEntry{
			ID:           uuid.New(),
			CompanyID:    entry.CompanyID,
			Number:       number,
			Date:         now,
			Type:         EntryTypeAdjustment,
			Status:       StatusDraft,
			Description:  fmt.Sprintf("Reversal of %s: %s", entry.Number, reason),
			TotalAmount:  entry.TotalAmount,
			ReversalOfID: &entry.ID,
		})
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := tx.InsertLine(ctx, JournalLine{
				ID:          uuid.New(),
				EntryID:     reversal.ID,
				AccountID:   line.AccountID,
				Description: line.Description,
				Debit:       line.Credit,
				Credit:      line.Debit,
				LineOrder:   line.LineOrder,
			}); err != nil {
				return err
			}
		}
		if err := tx.SetTotalAmount(ctx, reversal.ID, entry.TotalAmount); err != nil {
			return err
		}
		reversal.TotalAmount = entry.TotalAmount
		original = entry
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.JournalTransition(string(StatusReversed))
	}
	s.record(ctx, actorID, "journal.reverse", original.ID, map[string]any{
		"number":          original.Number,
		"reversal_id":     reversal.ID.String(),
		"reversal_number": reversal.Number,
		"reason":          reason,
	})
	return reversal, nil
}

// transition runs a guarded status change under the entry row lock.
func (s *Service) transition(ctx context.Context, entryID, actorID uuid.UUID, to EntryStatus, action string, guard func(context.Context, TxRepository, *JournalEntry, []JournalLine) error) (JournalEntry, error) {
	var updated JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !CanTransition(entry.Status, to) {
			return shared.ErrInvalidTransition
		}
		lines, err := tx.GetLines(ctx, entryID)
		if err != nil {
			return err
		}
		if err := guard(ctx, tx, &entry, lines); err != nil {
			return err
		}
		entry.Status = to
		debit, _ := Totals(lines)
		entry.TotalAmount = debit
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		entry.Lines = lines
		updated = entry
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.JournalTransition(string(to))
	}
	s.record(ctx, actorID, action, updated.ID, map[string]any{"number": updated.Number, "status": string(updated.Status)})
	return updated, nil
}

// ensureDateOpen resolves and locks the period covering date and
// requires it to be OPEN.
func (s *Service) ensureDateOpen(ctx context.Context, tx TxRepository, companyID uuid.UUID, date time.Time) error {
	period, err := tx.GetPeriodForDate(ctx, companyID, date)
	if err != nil {
		return err
	}
	switch period.Status {
	case periods.PeriodStatusOpen:
		return nil
	case periods.PeriodStatusLocked:
		return shared.ErrPeriodLocked
	default:
		return shared.ErrPeriodClosed
	}
}

// validateLines enforces the structural rules checked at Submit, Approve
// and Post: at least two lines, each exactly one-sided, totals equal.
func validateLines(lines []JournalLine) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	for _, line := range lines {
		if err := (LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit}).Validate(); err != nil {
			return err
		}
	}
	if !Balanced(lines) {
		return shared.ErrUnbalanced
	}
	return nil
}

func (s *Service) refreshTotal(ctx context.Context, tx TxRepository, entryID uuid.UUID) error {
	lines, err := tx.GetLines(ctx, entryID)
	if err != nil {
		return err
	}
	debit, _ := Totals(lines)
	return tx.SetTotalAmount(ctx, entryID, debit)
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atrium-bms/atrium/internal/accounting/shared"
	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Locker provides the close barrier. Acquire fails fast when another
// close or lock on the same period is in flight.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Service owns financial-period state and date-to-period gating.
type Service struct {
	repo   Repository
	audit  AuditPort
	locker Locker
	now    func() time.Time
}

func NewService(repo Repository, audit AuditPort, locker Locker) *Service {
	return &Service{repo: repo, audit: audit, locker: locker, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PeriodForDate returns the period containing the date.
func (s *Service) PeriodForDate(ctx context.Context, companyID uuid.UUID, date time.Time) (Period, error) {
	return s.repo.FindByDate(ctx, companyID, date)
}

// IsDateOpen reports whether the period containing the date is OPEN.
// The ledger engine consults this before PENDING and POSTED transitions.
func (s *Service) IsDateOpen(ctx context.Context, companyID uuid.UUID, date time.Time) (bool, error) {
	period, err := s.repo.FindByDate(ctx, companyID, date)
	if err != nil {
		return false, err
	}
	return period.Status == PeriodStatusOpen, nil
}

// Get returns one period by identifier.
func (s *Service) Get(ctx context.Context, periodID uuid.UUID) (Period, error) {
	return s.repo.GetByID(ctx, periodID)
}

// ListYear returns the company's periods for one fiscal year.
func (s *Service) ListYear(ctx context.Context, companyID uuid.UUID, fiscalYear int) ([]Period, error) {
	return s.repo.ListByYear(ctx, companyID, fiscalYear)
}

// Close moves an OPEN period to CLOSED. Closing does not require zero
// unposted entries dated inside the window; the count left behind is
// written to the audit trail so operators can see the exposure.
func (s *Service) Close(ctx context.Context, periodID, closedBy uuid.UUID) error {
	return s.transition(ctx, periodID, PeriodStatusClosed, closedBy, "period.close")
}

// Lock moves a CLOSED period to LOCKED. LOCKED is terminal.
func (s *Service) Lock(ctx context.Context, periodID, actorID uuid.UUID) error {
	return s.transition(ctx, periodID, PeriodStatusLocked, actorID, "period.lock")
}

// Reopen moves a CLOSED period back to OPEN. A LOCKED period never
// reopens.
func (s *Service) Reopen(ctx context.Context, periodID, actorID uuid.UUID) error {
	return s.transition(ctx, periodID, PeriodStatusOpen, actorID, "period.reopen")
}

func (s *Service) transition(ctx context.Context, periodID uuid.UUID, target PeriodStatus, actorID uuid.UUID, action string) error {
	release, err := s.acquireBarrier(ctx, periodID)
	if err != nil {
		return err
	}
	defer release()

	var unposted int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if !CanTransition(period.Status, target) {
			if period.Status == PeriodStatusLocked {
				return shared.ErrPeriodLocked
			}
			return shared.ErrInvalidTransition
		}
		var closedAt *time.Time
		var closedBy *uuid.UUID
		switch target {
		case PeriodStatusClosed:
			n, err := tx.CountUnpostedInRange(ctx, period.CompanyID, period.StartDate, period.EndDate)
			if err != nil {
				return err
			}
			unposted = n
			now := s.now()
			closedAt = &now
			closedBy = &actorID
		case PeriodStatusLocked:
			closedAt = period.ClosedAt
			closedBy = period.ClosedBy
		}
		return tx.UpdateStatus(ctx, periodID, target, closedAt, closedBy)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		meta := map[string]any{"status": string(target)}
		if target == PeriodStatusClosed {
			meta["unposted_entries"] = unposted
		}
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "financial_period",
			EntityID: periodID.String(),
			Meta:     meta,
			At:       s.now(),
		})
	}
	return nil
}

func (s *Service) acquireBarrier(ctx context.Context, periodID uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, internalShared.PeriodLockKey(periodID))
}

// EnsureYear creates the 12 contiguous monthly periods of a fiscal
// year. Existing periods for the year are returned untouched; a partial
// year is treated as misconfiguration.
func (s *Service) EnsureYear(ctx context.Context, companyID uuid.UUID, fiscalYear int) ([]Period, error) {
	existing, err := s.repo.ListByYear(ctx, companyID, fiscalYear)
	if err != nil {
		return nil, err
	}
	if len(existing) == 12 {
		return existing, nil
	}
	if len(existing) != 0 {
		return nil, fmt.Errorf("periods: fiscal year %d has %d periods, want 0 or 12", fiscalYear, len(existing))
	}
	var out []Period
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		conflict, err := tx.RangeConflict(ctx, companyID,
			time.Date(fiscalYear, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(fiscalYear, 12, 31, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return err
		}
		if conflict {
			return shared.ErrPeriodOverlap
		}
		for month := 1; month <= 12; month++ {
			start := time.Date(fiscalYear, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, -1)
			period, err := tx.Insert(ctx, Period{
				ID:         uuid.New(),
				CompanyID:  companyID,
				FiscalYear: fiscalYear,
				PeriodNo:   month,
				StartDate:  start,
				EndDate:    end,
				Status:     PeriodStatusOpen,
			})
			if err != nil {
				return err
			}
			out = append(out, period)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

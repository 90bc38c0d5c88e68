package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atrium-bms/atrium/internal/shared"
)

// AuditPort records receivable lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (Receivable, error) {
	return s.repo.GetByID(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, companyID uuid.UUID, status *ReceivableStatus) ([]Receivable, error) {
	return s.repo.List(ctx, companyID, status)
}

// OpenInput describes a new receivable opened from a confirmed income
// record.
type OpenInput struct {
	CompanyID      uuid.UUID
	SourceRecordID uuid.UUID
	Amount         decimal.Decimal
	DueDate        time.Time
	Description    string
}

// Open creates an OUTSTANDING receivable for the income record. A
// second open for the same record returns ErrDuplicateSource.
func (s *Service) Open(ctx context.Context, in OpenInput) (Receivable, error) {
	if !in.Amount.IsPositive() {
		return Receivable{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	now := s.now().UTC()
	rec := Receivable{
		ID:             uuid.New(),
		CompanyID:      in.CompanyID,
		SourceRecordID: in.SourceRecordID,
		OriginalAmount: in.Amount,
		Outstanding:    in.Amount,
		LateFee:        decimal.Zero,
		DueDate:        in.DueDate,
		Status:         StatusOutstanding,
		Description:    in.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, rec)
	})
	if err != nil {
		return Receivable{}, err
	}
	s.record(ctx, uuid.Nil, "receivable.open", rec.ID, map[string]any{
		"amount":   rec.OriginalAmount.StringFixed(2),
		"due_date": rec.DueDate.Format("2006-01-02"),
	})
	return rec, nil
}

// PaymentInput is one payment against a receivable. LateFeePaid is the
// portion applied to the accrued late fee rather than principal.
type PaymentInput struct {
	Amount      decimal.Decimal
	LateFeePaid decimal.Decimal
	PaidAt      time.Time
	Note        string
}

// ApplyPayment reduces the outstanding balance and recomputes status.
// Outstanding never increases and status never moves backward: the new
// outstanding is max(0, outstanding - amount), the new late fee is
// max(0, lateFee - lateFeePaid), and the receivable becomes FULLY_PAID
// once both reach zero.
func (s *Service) ApplyPayment(ctx context.Context, companyID, receivableID, actorID uuid.UUID, in PaymentInput) (Receivable, error) {
	if !in.Amount.IsPositive() && !in.LateFeePaid.IsPositive() {
		return Receivable{}, fmt.Errorf("%w: payment must be positive", ErrInvalidPayment)
	}
	if in.Amount.IsNegative() || in.LateFeePaid.IsNegative() {
		return Receivable{}, fmt.Errorf("%w: payment must not be negative", ErrInvalidPayment)
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now().UTC()
	}

	var rec Receivable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = tx.GetForUpdate(ctx, companyID, receivableID)
		if err != nil {
			return err
		}
		if !rec.Status.open() {
			return fmt.Errorf("%w: status %s", ErrAlreadySettled, rec.Status)
		}

		rec.Outstanding = clampZero(rec.Outstanding.Sub(in.Amount))
		rec.LateFee = clampZero(rec.LateFee.Sub(in.LateFeePaid))
		rec.LastPaymentDate = &paidAt
		rec.Status = paymentStatus(rec)
		rec.UpdatedAt = s.now().UTC()

		if err := tx.Update(ctx, rec); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, Payment{
			ID:            uuid.New(),
			ReceivableID:  rec.ID,
			Amount:        in.Amount,
			LateFeeAmount: in.LateFeePaid,
			PaidAt:        paidAt,
			Note:          in.Note,
			CreatedAt:     s.now().UTC(),
		})
	})
	if err != nil {
		return Receivable{}, err
	}
	s.record(ctx, actorID, "receivable.payment", rec.ID, map[string]any{
		"paid":        in.Amount.StringFixed(2),
		"outstanding": rec.Outstanding.StringFixed(2),
		"status":      string(rec.Status),
	})
	return rec, nil
}

// paymentStatus recomputes status after a payment. FULLY_PAID when
// nothing remains, PARTIALLY_PAID once principal has been reduced,
// OUTSTANDING otherwise.
func paymentStatus(rec Receivable) ReceivableStatus {
	switch {
	case !rec.TotalOutstanding().IsPositive():
		return StatusFullyPaid
	case rec.Outstanding.LessThan(rec.OriginalAmount):
		return StatusPartiallyPaid
	default:
		return StatusOutstanding
	}
}

// RefreshLateFees recomputes accrued late fees for every open
// receivable from the policy effective as of the given date. It
// returns how many receivables changed. Without an effective policy
// this is a no-op.
func (s *Service) RefreshLateFees(ctx context.Context, companyID uuid.UUID, asOf time.Time) (int, error) {
	policy, err := s.repo.EffectivePolicy(ctx, companyID, asOf)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	ids, err := s.repo.OpenIDs(ctx, companyID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		changed, err := s.refreshOne(ctx, companyID, id, policy, asOf)
		if err != nil {
			s.logger.Error("late fee refresh failed",
				slog.String("receivable_id", id.String()), slog.Any("error", err))
			continue
		}
		if changed {
			updated++
		}
	}
	s.record(ctx, uuid.Nil, "receivable.refresh_late_fees", companyID, map[string]any{
		"as_of":   asOf.Format("2006-01-02"),
		"updated": updated,
	})
	return updated, nil
}

// refreshOne updates one receivable's late fee under a row lock. Fees
// only ratchet upward here; reductions happen through payments.
func (s *Service) refreshOne(ctx context.Context, companyID, id uuid.UUID, policy LateFeePolicy, asOf time.Time) (bool, error) {
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if !rec.Status.open() {
			return nil
		}
		fee := policy.Calculate(rec.Outstanding, rec.OverdueDays(asOf))
		if !fee.GreaterThan(rec.LateFee) {
			return nil
		}
		rec.LateFee = fee
		rec.UpdatedAt = s.now().UTC()
		changed = true
		return tx.Update(ctx, rec)
	})
	return changed, err
}

// Aging snapshots every open receivable as of a date and buckets the
// balances by overdue age. Snapshots come back ordered by due date.
func (s *Service) Aging(ctx context.Context, companyID uuid.UUID, asOf time.Time) (AgingReport, error) {
	open, err := s.repo.ListOpen(ctx, companyID)
	if err != nil {
		return AgingReport{}, err
	}
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	report := AgingReport{AsOf: asOf, Buckets: newAgingBucket()}
	for _, rec := range open {
		days := rec.OverdueDays(asOf)
		total := rec.TotalOutstanding()
		report.Snapshots = append(report.Snapshots, ReceivableSnapshot{
			ReceivableID: rec.ID,
			DueDate:      rec.DueDate,
			Outstanding:  rec.Outstanding,
			LateFee:      rec.LateFee,
			Total:        total,
			OverdueDays:  days,
			Status:       rec.Status,
		})
		report.Buckets.add(days, total)
	}
	sort.Slice(report.Snapshots, func(i, j int) bool {
		a, b := report.Snapshots[i], report.Snapshots[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.ReceivableID.String() < b.ReceivableID.String()
	})
	return report, nil
}

// WriteOff terminates an open receivable without payment.
func (s *Service) WriteOff(ctx context.Context, companyID, receivableID, actorID uuid.UUID, reason string) (Receivable, error) {
	if reason == "" {
		return Receivable{}, fmt.Errorf("%w: reason required", ErrInvalidPayment)
	}
	var rec Receivable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = tx.GetForUpdate(ctx, companyID, receivableID)
		if err != nil {
			return err
		}
		if !rec.Status.open() {
			return fmt.Errorf("%w: status %s", ErrAlreadySettled, rec.Status)
		}
		rec.Status = StatusWrittenOff
		rec.UpdatedAt = s.now().UTC()
		return tx.Update(ctx, rec)
	})
	if err != nil {
		return Receivable{}, err
	}
	s.record(ctx, actorID, "receivable.write_off", rec.ID, map[string]any{
		"reason":      reason,
		"outstanding": rec.Outstanding.StringFixed(2),
	})
	return rec, nil
}

// PolicyInput describes a new late fee policy.
type PolicyInput struct {
	CompanyID       uuid.UUID
	Name            string
	GracePeriodDays int
	Type            LateFeeType
	Rate            decimal.Decimal
	FixedFee        decimal.Decimal
	MaxLateFee      *decimal.Decimal
	EffectiveFrom   time.Time
	EffectiveTo     *time.Time
}

// CreatePolicy stores a new active late fee policy.
func (s *Service) CreatePolicy(ctx context.Context, in PolicyInput) (LateFeePolicy, error) {
	if !in.Type.Valid() {
		return LateFeePolicy{}, fmt.Errorf("%w: unknown fee type %q", ErrInvalidPolicy, in.Type)
	}
	if in.GracePeriodDays < 0 {
		return LateFeePolicy{}, fmt.Errorf("%w: grace period must not be negative", ErrInvalidPolicy)
	}
	if in.Rate.IsNegative() || in.FixedFee.IsNegative() {
		return LateFeePolicy{}, fmt.Errorf("%w: rate and fixed fee must not be negative", ErrInvalidPolicy)
	}
	if in.EffectiveTo != nil && in.EffectiveTo.Before(in.EffectiveFrom) {
		return LateFeePolicy{}, fmt.Errorf("%w: effective window ends before it starts", ErrInvalidPolicy)
	}
	now := s.now().UTC()
	policy := LateFeePolicy{
		ID:              uuid.New(),
		CompanyID:       in.CompanyID,
		Name:            in.Name,
		GracePeriodDays: in.GracePeriodDays,
		Type:            in.Type,
		Rate:            in.Rate,
		FixedFee:        in.FixedFee,
		MaxLateFee:      in.MaxLateFee,
		IsActive:        true,
		EffectiveFrom:   in.EffectiveFrom,
		EffectiveTo:     in.EffectiveTo,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.InsertPolicy(ctx, policy); err != nil {
		return LateFeePolicy{}, err
	}
	s.record(ctx, uuid.Nil, "late_fee_policy.create", policy.ID, map[string]any{
		"type": string(policy.Type),
	})
	return policy, nil
}

func (s *Service) ListPolicies(ctx context.Context, companyID uuid.UUID) ([]LateFeePolicy, error) {
	return s.repo.ListPolicies(ctx, companyID)
}

func (s *Service) DeactivatePolicy(ctx context.Context, companyID, policyID uuid.UUID) error {
	if err := s.repo.DeactivatePolicy(ctx, companyID, policyID); err != nil {
		return err
	}
	s.record(ctx, uuid.Nil, "late_fee_policy.deactivate", policyID, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actorID == uuid.Nil {
		actorID = shared.ActorFromContext(ctx)
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "receivable",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

package schedules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

// AuditPort records schedule lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Locker guards a schedule against concurrent materialization runs.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// ReceivableOpener opens a receivable for a generated income record.
// Expense records never produce receivables.
type ReceivableOpener interface {
	OpenForRecord(ctx context.Context, record GeneratedRecord) error
}

// MetricsPort counts materialization outcomes.
type MetricsPort interface {
	ScheduleMaterialization(outcome string)
}

// CreateScheduleInput groups fields for a new recurring schedule.
type CreateScheduleInput struct {
	CompanyID     uuid.UUID
	Kind          Kind
	Name          string
	Frequency     Frequency
	IntervalValue int
	Amount        string
	StartDate     time.Time
	EndDate       *time.Time
	ActorID       uuid.UUID
}

type Service struct {
	repo        Repository
	audit       AuditPort
	locker      Locker
	receivables ReceivableOpener
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo Repository, audit AuditPort, locker Locker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, locker: locker, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) WithReceivables(r ReceivableOpener) {
	s.receivables = r
}

func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

func (s *Service) Get(ctx context.Context, scheduleID uuid.UUID) (Schedule, error) {
	return s.repo.GetByID(ctx, scheduleID)
}

func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]Schedule, error) {
	return s.repo.List(ctx, companyID)
}

func (s *Service) ListRecords(ctx context.Context, companyID, scheduleID uuid.UUID) ([]GeneratedRecord, error) {
	return s.repo.ListRecords(ctx, companyID, scheduleID)
}

// Create registers a schedule. The first generation date is the start
// date; generation begins on the first materialization run at or after
// it.
func (s *Service) Create(ctx context.Context, in CreateScheduleInput) (Schedule, error) {
	amount, err := parsePositiveAmount(in.Amount)
	if err != nil {
		return Schedule{}, err
	}
	if in.CompanyID == uuid.Nil || strings.TrimSpace(in.Name) == "" || in.StartDate.IsZero() {
		return Schedule{}, ErrInvalidSchedule
	}
	if !in.Kind.Valid() || !in.Frequency.Valid() {
		return Schedule{}, ErrInvalidSchedule
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return Schedule{}, ErrInvalidSchedule
	}
	interval := in.IntervalValue
	if interval < 1 {
		interval = 1
	}
	schedule, err := s.repo.Insert(ctx, Schedule{
		ID:                 uuid.New(),
		CompanyID:          in.CompanyID,
		Kind:               in.Kind,
		Name:               strings.TrimSpace(in.Name),
		Frequency:          in.Frequency,
		IntervalValue:      interval,
		Amount:             amount,
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		NextGenerationDate: in.StartDate,
		IsActive:           true,
	})
	if err != nil {
		return Schedule{}, err
	}
	s.record(ctx, in.ActorID, "schedule.create", schedule.ID, map[string]any{"name": schedule.Name, "kind": string(schedule.Kind)})
	return schedule, nil
}

// Deactivate stops future generation. Already generated records are
// untouched.
func (s *Service) Deactivate(ctx context.Context, scheduleID, actorID uuid.UUID) error {
	if err := s.repo.SetActive(ctx, scheduleID, false); err != nil {
		return err
	}
	s.record(ctx, actorID, "schedule.deactivate", scheduleID, nil)
	return nil
}

// Preview reports what a generation run would produce without writing.
type Preview struct {
	ScheduleID         uuid.UUID
	CanGenerate        bool
	GenerationDate     time.Time
	DueDate            *time.Time
	NextGenerationDate *time.Time
}

func (s *Service) PreviewGeneration(ctx context.Context, scheduleID uuid.UUID, asOf time.Time) (Preview, error) {
	schedule, err := s.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return Preview{}, err
	}
	preview := Preview{ScheduleID: scheduleID, GenerationDate: asOf, CanGenerate: schedule.ShouldGenerate(asOf)}
	if preview.CanGenerate {
		due := schedule.DueDateFor(asOf)
		next := schedule.NextGenerationAfter()
		preview.DueDate = &due
		preview.NextGenerationDate = &next
	}
	return preview, nil
}

// Generate materializes one record for the schedule dated asOf. The
// schedule row lock plus the unique (schedule, generation date)
// constraint make re-invocation after success a no-op failure with
// ErrAlreadyGenerated rather than a duplicate.
func (s *Service) Generate(ctx context.Context, scheduleID uuid.UUID, asOf time.Time) (GeneratedRecord, error) {
	var generated GeneratedRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.GetForUpdate(ctx, scheduleID)
		if err != nil {
			return err
		}
		if schedule.LastGeneratedDate != nil && sameDay(*schedule.LastGeneratedDate, asOf) {
			return ErrAlreadyGenerated
		}
		if !schedule.ShouldGenerate(asOf) {
			return ErrNotDue
		}
		generated, err = tx.InsertRecord(ctx, GeneratedRecord{
			ID:             uuid.New(),
			CompanyID:      schedule.CompanyID,
			ScheduleID:     schedule.ID,
			Kind:           schedule.Kind,
			GenerationDate: asOf,
			DueDate:        schedule.DueDateFor(asOf),
			Amount:         schedule.Amount,
			Description:    fmt.Sprintf("%s - %d-%02d", schedule.Name, asOf.Year(), asOf.Month()),
			Status:         RecordStatusPending,
		})
		if err != nil {
			return err
		}
		return tx.UpdateAfterGeneration(ctx, schedule.ID, schedule.NextGenerationAfter(), asOf)
	})
	if err != nil {
		s.countOutcome(err)
		return GeneratedRecord{}, err
	}
	if s.receivables != nil && generated.Kind == KindIncome {
		if err := s.receivables.OpenForRecord(ctx, generated); err != nil {
			// Record stays; the receivable backfill is retried by the
			// next aging run.
			s.logger.Error("open receivable for generated record",
				slog.String("record_id", generated.ID.String()), slog.Any("error", err))
		}
	}
	s.countOutcome(nil)
	return generated, nil
}

// MaterializeDue generates records for every due schedule of a company.
// Each schedule is processed independently so one failure does not
// abort the batch. Returns the records generated.
func (s *Service) MaterializeDue(ctx context.Context, companyID uuid.UUID, asOf time.Time) ([]GeneratedRecord, error) {
	ids, err := s.repo.DueScheduleIDs(ctx, companyID, asOf)
	if err != nil {
		return nil, err
	}
	var out []GeneratedRecord
	for _, id := range ids {
		record, err := s.generateLocked(ctx, id, asOf)
		if err != nil {
			if errors.Is(err, ErrAlreadyGenerated) || errors.Is(err, ErrNotDue) {
				continue
			}
			s.logger.Error("materialize schedule",
				slog.String("schedule_id", id.String()), slog.Any("error", err))
			continue
		}
		out = append(out, record)
	}
	s.record(ctx, uuid.Nil, "schedule.materialize_due", companyID, map[string]any{
		"as_of":     asOf.Format("2006-01-02"),
		"due":       len(ids),
		"generated": len(out),
	})
	return out, nil
}

func (s *Service) generateLocked(ctx context.Context, scheduleID uuid.UUID, asOf time.Time) (GeneratedRecord, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, internalShared.ScheduleLockKey(scheduleID))
		if err != nil {
			return GeneratedRecord{}, err
		}
		defer release()
	}
	return s.Generate(ctx, scheduleID, asOf)
}

func (s *Service) countOutcome(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.ScheduleMaterialization("generated")
	case errors.Is(err, ErrAlreadyGenerated):
		s.metrics.ScheduleMaterialization("duplicate")
	case errors.Is(err, ErrNotDue):
		s.metrics.ScheduleMaterialization("not_due")
	default:
		s.metrics.ScheduleMaterialization("error")
	}
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "recurring_schedule",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func parsePositiveAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, ErrInvalidSchedule
	}
	return amount, nil
}

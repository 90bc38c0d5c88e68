package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atrium-bms/atrium/internal/accounting/reports"
	"github.com/atrium-bms/atrium/internal/accounting/shared"
	"github.com/atrium-bms/atrium/internal/ar"
	"github.com/atrium-bms/atrium/internal/billing/schedules"
)

// CompanyLister enumerates companies for sweep tasks.
type CompanyLister interface {
	CompanyIDs(ctx context.Context) ([]uuid.UUID, error)
}

// PgCompanyLister lists active companies from the companies table.
type PgCompanyLister struct {
	pool *pgxpool.Pool
}

func NewPgCompanyLister(pool *pgxpool.Pool) *PgCompanyLister {
	return &PgCompanyLister{pool: pool}
}

func (l *PgCompanyLister) CompanyIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := l.pool.Query(ctx, `SELECT id FROM companies WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Sweeps bundles the per-company background maintenance handlers.
type Sweeps struct {
	companies   CompanyLister
	schedules   *schedules.Service
	receivables *ar.Service
	reports     *reports.Service
	logger      *slog.Logger
}

func NewSweeps(companies CompanyLister, sched *schedules.Service, recv *ar.Service, rep *reports.Service, logger *slog.Logger) *Sweeps {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeps{companies: companies, schedules: sched, receivables: recv, reports: rep, logger: logger}
}

// HandleMaterialize generates due billing records for every company.
// Per-company failures are logged and do not abort the sweep; the next
// scheduled run picks up whatever was missed.
func (s *Sweeps) HandleMaterialize(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf, err := payload.Date()
	if err != nil {
		return asynq.SkipRetry
	}

	ids, err := s.companies.CompanyIDs(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, companyID := range ids {
		generated, err := s.schedules.MaterializeDue(ctx, companyID, asOf)
		if err != nil {
			s.logger.Error("materialize sweep failed",
				slog.String("company_id", companyID.String()), slog.Any("error", err))
			continue
		}
		total += len(generated)
	}
	s.logger.Info("materialize sweep done",
		slog.Int("companies", len(ids)), slog.Int("generated", total))
	return nil
}

// HandleRefreshLateFees recomputes late fees for every company.
func (s *Sweeps) HandleRefreshLateFees(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf, err := payload.Date()
	if err != nil {
		return asynq.SkipRetry
	}

	ids, err := s.companies.CompanyIDs(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, companyID := range ids {
		updated, err := s.receivables.RefreshLateFees(ctx, companyID, asOf)
		if err != nil {
			s.logger.Error("late fee sweep failed",
				slog.String("company_id", companyID.String()), slog.Any("error", err))
			continue
		}
		total += updated
	}
	s.logger.Info("late fee sweep done",
		slog.Int("companies", len(ids)), slog.Int("updated", total))
	return nil
}

// HandleLedgerIntegrity scans every company's posted entries for
// debit/credit drift. A violation is logged and surfaced as a task
// error so it shows up in the queue's failed set.
func (s *Sweeps) HandleLedgerIntegrity(ctx context.Context, t *asynq.Task) error {
	ids, err := s.companies.CompanyIDs(ctx)
	if err != nil {
		return err
	}
	var failed error
	for _, companyID := range ids {
		if err := s.reports.CheckIntegrity(ctx, companyID); err != nil {
			if errors.Is(err, shared.ErrIntegrity) {
				s.logger.Error("ledger integrity violation",
					slog.String("company_id", companyID.String()), slog.Any("error", err))
			} else {
				s.logger.Error("ledger integrity scan failed",
					slog.String("company_id", companyID.String()), slog.Any("error", err))
			}
			failed = err
		}
	}
	return failed
}

package periods

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atrium-bms/atrium/internal/accounting/shared"
	"github.com/atrium-bms/atrium/internal/platform/db"
)

// Repository encapsulates DB operations for fiscal periods.
type Repository interface {
	FindByDate(ctx context.Context, companyID uuid.UUID, date time.Time) (Period, error)
	GetByID(ctx context.Context, periodID uuid.UUID) (Period, error)
	ListByYear(ctx context.Context, companyID uuid.UUID, fiscalYear int) ([]Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, periodID uuid.UUID) (Period, error)
	// RangeConflict reports whether any period overlaps [start, end].
	// Run inside the insert transaction so the check and the inserts
	// see the same snapshot.
	RangeConflict(ctx context.Context, companyID uuid.UUID, start, end time.Time) (bool, error)
	UpdateStatus(ctx context.Context, periodID uuid.UUID, status PeriodStatus, closedAt *time.Time, closedBy *uuid.UUID) error
	Insert(ctx context.Context, period Period) (Period, error)
	// CountUnpostedInRange reports journal entries that are dated inside
	// the window but have not reached POSTED.
	CountUnpostedInRange(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const periodColumns = `id, company_id, fiscal_year, period_no, start_date, end_date, status, closed_at, closed_by, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.FiscalYear, &p.PeriodNo, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) FindByDate(ctx context.Context, companyID uuid.UUID, date time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+`
FROM financial_periods WHERE company_id=$1 AND $2 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, companyID, date)
	period, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrInvalidPeriod
		}
		return Period{}, err
	}
	return period, nil
}

func (r *repository) GetByID(ctx context.Context, periodID uuid.UUID) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM financial_periods WHERE id=$1`, periodID)
	period, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return period, nil
}

func (r *repository) ListByYear(ctx context.Context, companyID uuid.UUID, fiscalYear int) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+`
FROM financial_periods WHERE company_id=$1 AND fiscal_year=$2 ORDER BY period_no ASC`, companyID, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, period)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, periodID uuid.UUID) (Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM financial_periods WHERE id=$1 FOR UPDATE`, periodID)
	period, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return period, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, periodID uuid.UUID, status PeriodStatus, closedAt *time.Time, closedBy *uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE financial_periods SET status=$2, closed_at=$3, closed_by=$4, updated_at=NOW() WHERE id=$1`,
		periodID, status, closedAt, closedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) RangeConflict(ctx context.Context, companyID uuid.UUID, start, end time.Time) (bool, error) {
	var conflict bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM financial_periods WHERE company_id=$1 AND start_date <= $3 AND end_date >= $2)`, companyID, start, end).Scan(&conflict)
	return conflict, err
}

// Insert maps the (company_id, fiscal_year, period_no) unique
// constraint to ErrPeriodOverlap, the backstop for two ensure-year
// calls racing past the snapshot check.
func (r *txRepository) Insert(ctx context.Context, period Period) (Period, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO financial_periods (id, company_id, fiscal_year, period_no, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+periodColumns,
		period.ID, period.CompanyID, period.FiscalYear, period.PeriodNo, period.StartDate, period.EndDate, period.Status)
	inserted, err := scanPeriod(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_financial_periods_company_year_no" {
			return Period{}, shared.ErrPeriodOverlap
		}
		return Period{}, err
	}
	return inserted, nil
}

func (r *txRepository) CountUnpostedInRange(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries
WHERE company_id=$1 AND entry_date BETWEEN $2 AND $3 AND status NOT IN ('POSTED','REVERSED')`, companyID, start, end).Scan(&count)
	return count, err
}

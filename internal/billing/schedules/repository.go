package schedules

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atrium-bms/atrium/internal/platform/db"
)

// Repository encapsulates DB operations for schedules and their
// generated records.
type Repository interface {
	GetByID(ctx context.Context, scheduleID uuid.UUID) (Schedule, error)
	List(ctx context.Context, companyID uuid.UUID) ([]Schedule, error)
	// DueScheduleIDs lists schedules whose next generation date is on or
	// before asOf. Each is then generated under its own row lock.
	DueScheduleIDs(ctx context.Context, companyID uuid.UUID, asOf time.Time) ([]uuid.UUID, error)
	Insert(ctx context.Context, schedule Schedule) (Schedule, error)
	SetActive(ctx context.Context, scheduleID uuid.UUID, active bool) error
	ListRecords(ctx context.Context, companyID uuid.UUID, scheduleID uuid.UUID) ([]GeneratedRecord, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, scheduleID uuid.UUID) (Schedule, error)
	// InsertRecord relies on the (schedule_id, generation_date) unique
	// constraint as the idempotence backstop.
	InsertRecord(ctx context.Context, record GeneratedRecord) (GeneratedRecord, error)
	UpdateAfterGeneration(ctx context.Context, scheduleID uuid.UUID, next time.Time, generated time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const scheduleColumns = `id, company_id, kind, name, frequency, interval_value, amount,
start_date, end_date, next_generation_date, last_generated_date, is_active, created_at, updated_at`

func scanSchedule(row pgx.Row) (Schedule, error) {
	var s Schedule
	err := row.Scan(&s.ID, &s.CompanyID, &s.Kind, &s.Name, &s.Frequency, &s.IntervalValue, &s.Amount,
		&s.StartDate, &s.EndDate, &s.NextGenerationDate, &s.LastGeneratedDate, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *repository) GetByID(ctx context.Context, scheduleID uuid.UUID) (Schedule, error) {
	row := r.db.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM recurring_schedules WHERE id=$1`, scheduleID)
	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Schedule{}, ErrScheduleNotFound
		}
		return Schedule{}, err
	}
	return schedule, nil
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID) ([]Schedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM recurring_schedules WHERE company_id=$1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, schedule)
	}
	return out, rows.Err()
}

func (r *repository) DueScheduleIDs(ctx context.Context, companyID uuid.UUID, asOf time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM recurring_schedules
WHERE company_id=$1 AND is_active AND next_generation_date <= $2 AND start_date <= $2
  AND (end_date IS NULL OR end_date >= $2)
ORDER BY next_generation_date`, companyID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *repository) Insert(ctx context.Context, schedule Schedule) (Schedule, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO recurring_schedules
(id, company_id, kind, name, frequency, interval_value, amount, start_date, end_date, next_generation_date, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+scheduleColumns,
		schedule.ID, schedule.CompanyID, schedule.Kind, schedule.Name, schedule.Frequency, schedule.IntervalValue,
		schedule.Amount, schedule.StartDate, schedule.EndDate, schedule.NextGenerationDate, schedule.IsActive)
	return scanSchedule(row)
}

func (r *repository) SetActive(ctx context.Context, scheduleID uuid.UUID, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE recurring_schedules SET is_active=$2, updated_at=NOW() WHERE id=$1`, scheduleID, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

const recordColumns = `id, company_id, schedule_id, kind, generation_date, due_date, amount, description, status, created_at, updated_at`

func (r *repository) ListRecords(ctx context.Context, companyID uuid.UUID, scheduleID uuid.UUID) ([]GeneratedRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+` FROM generated_records
WHERE company_id=$1 AND ($2::uuid IS NULL OR schedule_id=$2) ORDER BY generation_date DESC`, companyID, nullableUUID(scheduleID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GeneratedRecord
	for rows.Next() {
		var rec GeneratedRecord
		if err := rows.Scan(&rec.ID, &rec.CompanyID, &rec.ScheduleID, &rec.Kind, &rec.GenerationDate, &rec.DueDate,
			&rec.Amount, &rec.Description, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, scheduleID uuid.UUID) (Schedule, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM recurring_schedules WHERE id=$1 FOR UPDATE`, scheduleID)
	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Schedule{}, ErrScheduleNotFound
		}
		return Schedule{}, err
	}
	return schedule, nil
}

func (r *txRepository) InsertRecord(ctx context.Context, record GeneratedRecord) (GeneratedRecord, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO generated_records
(id, company_id, schedule_id, kind, generation_date, due_date, amount, description, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+recordColumns,
		record.ID, record.CompanyID, record.ScheduleID, record.Kind, record.GenerationDate, record.DueDate,
		record.Amount, record.Description, record.Status)
	var inserted GeneratedRecord
	err := row.Scan(&inserted.ID, &inserted.CompanyID, &inserted.ScheduleID, &inserted.Kind, &inserted.GenerationDate,
		&inserted.DueDate, &inserted.Amount, &inserted.Description, &inserted.Status, &inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_generated_records_schedule_date" {
			return GeneratedRecord{}, ErrAlreadyGenerated
		}
		return GeneratedRecord{}, err
	}
	return inserted, nil
}

func (r *txRepository) UpdateAfterGeneration(ctx context.Context, scheduleID uuid.UUID, next time.Time, generated time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE recurring_schedules
SET next_generation_date=$2, last_generated_date=$3, updated_at=NOW() WHERE id=$1`, scheduleID, next, generated)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

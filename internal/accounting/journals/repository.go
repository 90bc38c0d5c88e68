package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atrium-bms/atrium/internal/accounting/periods"
	"github.com/atrium-bms/atrium/internal/accounting/shared"
	"github.com/atrium-bms/atrium/internal/platform/db"
)

// Repository encapsulates DB operations for journal entries. State
// transitions run inside WithTx so a failed transition leaves nothing
// behind.
type Repository interface {
	GetWithLines(ctx context.Context, entryID uuid.UUID) (JournalEntry, error)
	List(ctx context.Context, companyID uuid.UUID) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	// GetEntryForUpdate serializes concurrent transitions on one entry.
	GetEntryForUpdate(ctx context.Context, entryID uuid.UUID) (JournalEntry, error)
	GetLines(ctx context.Context, entryID uuid.UUID) ([]JournalLine, error)
	InsertLine(ctx context.Context, line JournalLine) (JournalLine, error)
	DeleteLine(ctx context.Context, entryID, lineID uuid.UUID) error
	NextLineOrder(ctx context.Context, entryID uuid.UUID) (int, error)
	UpdateEntry(ctx context.Context, entry JournalEntry) error
	SetTotalAmount(ctx context.Context, entryID uuid.UUID, total decimal.Decimal) error

	// GetPeriodForDate locks the covering period row so a concurrent
	// close cannot slip between the gate check and the commit.
	GetPeriodForDate(ctx context.Context, companyID uuid.UUID, date time.Time) (periods.Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const entryColumns = `id, company_id, number, entry_date, type, status, description, total_amount,
approved_by, approved_at, posted_at, reversed_at, reversal_reason, reversal_of_id, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.CompanyID, &e.Number, &e.Date, &e.Type, &e.Status, &e.Description, &e.TotalAmount,
		&e.ApprovedBy, &e.ApprovedAt, &e.PostedAt, &e.ReversedAt, &e.ReversalReason, &e.ReversalOfID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *repository) GetWithLines(ctx context.Context, entryID uuid.UUID) (JournalEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.db, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 ORDER BY number DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, entryID uuid.UUID) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, description, debit, credit, line_order, created_at, updated_at
FROM journal_lines WHERE entry_id=$1 ORDER BY line_order ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Description, &line.Debit, &line.Credit, &line.LineOrder, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(id, company_id, number, entry_date, type, status, description, total_amount, reversal_of_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+entryColumns,
		entry.ID, entry.CompanyID, entry.Number, entry.Date, entry.Type, entry.Status, entry.Description, entry.TotalAmount, entry.ReversalOfID)
	return scanEntry(row)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, entryID uuid.UUID) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) GetLines(ctx context.Context, entryID uuid.UUID) ([]JournalLine, error) {
	return queryLines(ctx, r.tx, entryID)
}

func (r *txRepository) InsertLine(ctx context.Context, line JournalLine) (JournalLine, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (id, entry_id, account_id, description, debit, credit, line_order)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, entry_id, account_id, description, debit, credit, line_order, created_at, updated_at`,
		line.ID, line.EntryID, line.AccountID, line.Description, line.Debit, line.Credit, line.LineOrder)
	var inserted JournalLine
	err := row.Scan(&inserted.ID, &inserted.EntryID, &inserted.AccountID, &inserted.Description, &inserted.Debit, &inserted.Credit, &inserted.LineOrder, &inserted.CreatedAt, &inserted.UpdatedAt)
	return inserted, err
}

func (r *txRepository) DeleteLine(ctx context.Context, entryID, lineID uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1 AND id=$2`, entryID, lineID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrLineNotFound
	}
	return nil
}

func (r *txRepository) NextLineOrder(ctx context.Context, entryID uuid.UUID) (int, error) {
	var next int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(line_order), 0) + 1 FROM journal_lines WHERE entry_id=$1`, entryID).Scan(&next)
	return next, err
}

func (r *txRepository) UpdateEntry(ctx context.Context, entry JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET
status=$2, total_amount=$3, approved_by=$4, approved_at=$5, posted_at=$6, reversed_at=$7, reversal_reason=$8, updated_at=NOW()
WHERE id=$1`,
		entry.ID, entry.Status, entry.TotalAmount, entry.ApprovedBy, entry.ApprovedAt, entry.PostedAt, entry.ReversedAt, entry.ReversalReason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) SetTotalAmount(ctx context.Context, entryID uuid.UUID, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET total_amount=$2, updated_at=NOW() WHERE id=$1`, entryID, total)
	return err
}

func (r *txRepository) GetPeriodForDate(ctx context.Context, companyID uuid.UUID, date time.Time) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, fiscal_year, period_no, start_date, end_date, status, closed_at, closed_by, created_at, updated_at
FROM financial_periods WHERE company_id=$1 AND $2 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1 FOR UPDATE`, companyID, date).
		Scan(&p.ID, &p.CompanyID, &p.FiscalYear, &p.PeriodNo, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrInvalidPeriod
		}
		return periods.Period{}, err
	}
	return p, nil
}

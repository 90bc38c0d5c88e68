package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository aggregates POSTED journal lines. All queries run at read
// committed or better so a half-written entry is never summed.
type Repository interface {
	AccountActivity(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]AccountTotals, error)
	BalanceAsOf(ctx context.Context, accountIDs []uuid.UUID, asOf time.Time) (decimal.Decimal, error)
	// LedgerPage returns up to limit lines after the keyset cursor,
	// ordered by (entry date, entry number, line order).
	LedgerPage(ctx context.Context, accountID uuid.UUID, start, end time.Time, after LedgerKey, limit int) ([]LedgerLine, error)
	UnbalancedPostedEntries(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
}

// LedgerKey is the keyset cursor position for general ledger paging.
// The zero value starts from the beginning of the range.
type LedgerKey struct {
	Date      time.Time
	Number    string
	LineOrder int
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) AccountActivity(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]AccountTotals, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.company_id = $1 AND e.status = 'POSTED' AND e.entry_date BETWEEN $2 AND $3
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, companyID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Type, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) BalanceAsOf(ctx context.Context, accountIDs []uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit - l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = ANY($1) AND e.status = 'POSTED' AND e.entry_date <= $2`, accountIDs, asOf).Scan(&balance)
	return balance, err
}

func (r *repository) LedgerPage(ctx context.Context, accountID uuid.UUID, start, end time.Time, after LedgerKey, limit int) ([]LedgerLine, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id, e.entry_date, e.number, l.description, l.debit, l.credit, l.line_order
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = $1 AND e.status = 'POSTED' AND e.entry_date BETWEEN $2 AND $3
  AND (e.entry_date, e.number, l.line_order) > ($4::date, $5::text, $6::int)
ORDER BY e.entry_date, e.number, l.line_order
LIMIT $7`, accountID, start, end, after.Date, after.Number, after.LineOrder, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerLine
	for rows.Next() {
		var line LedgerLine
		if err := rows.Scan(&line.EntryID, &line.EntryDate, &line.EntryNumber, &line.Description, &line.Debit, &line.Credit, &line.LineOrder); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// UnbalancedPostedEntries finds POSTED entries whose line totals do not
// cancel. A nonempty result is an integrity violation.
func (r *repository) UnbalancedPostedEntries(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id
FROM journal_entries e
JOIN journal_lines l ON l.entry_id = e.id
WHERE e.company_id = $1 AND e.status = 'POSTED'
GROUP BY e.id
HAVING SUM(l.debit) <> SUM(l.credit)`, companyID)
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

package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atrium-bms/atrium/internal/accounting/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Insert(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, companyID, accountID uuid.UUID) (Account, error)
	List(ctx context.Context, companyID uuid.UUID) ([]Account, error)
	ListChildren(ctx context.Context, companyID, parentID uuid.UUID) ([]Account, error)
	SetActive(ctx context.Context, companyID, accountID uuid.UUID, active bool) error
	SetParent(ctx context.Context, companyID, accountID uuid.UUID, parentID *uuid.UUID) error
	// PostedBalance sums debit-credit over POSTED journal lines for the
	// given accounts. Zero when the slice is empty.
	PostedBalance(ctx context.Context, accountIDs []uuid.UUID) (decimal.Decimal, error)
	// MaxCodeWithPrefix returns the highest code sharing the leading
	// digit, or empty string when none exists.
	MaxCodeWithPrefix(ctx context.Context, companyID uuid.UUID, prefix string) (string, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, company_id, code, name, type, parent_id, is_active, description, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.Description, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) Insert(ctx context.Context, account Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (id, company_id, code, name, type, parent_id, is_active, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+accountColumns,
		account.ID, account.CompanyID, account.Code, account.Name, account.Type, account.ParentID, account.IsActive, account.Description)
	inserted, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_accounts_company_code" {
			return Account{}, shared.ErrDuplicateCode
		}
		return Account{}, err
	}
	return inserted, nil
}

func (r *repository) GetByID(ctx context.Context, companyID, accountID uuid.UUID) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, companyID, accountID)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) ListChildren(ctx context.Context, companyID, parentID uuid.UUID) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND parent_id=$2 ORDER BY code ASC`, companyID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) SetActive(ctx context.Context, companyID, accountID uuid.UUID, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, accountID, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *repository) SetParent(ctx context.Context, companyID, accountID uuid.UUID, parentID *uuid.UUID) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET parent_id=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, accountID, parentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *repository) PostedBalance(ctx context.Context, accountIDs []uuid.UUID) (decimal.Decimal, error) {
	if len(accountIDs) == 0 {
		return decimal.Zero, nil
	}
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit - l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.status = 'POSTED' AND l.account_id = ANY($1)`, accountIDs).Scan(&balance)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *repository) MaxCodeWithPrefix(ctx context.Context, companyID uuid.UUID, prefix string) (string, error) {
	var code string
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(code), '') FROM accounts WHERE company_id=$1 AND code LIKE $2 || '%'`, companyID, prefix).Scan(&code)
	if err != nil {
		return "", err
	}
	return code, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

package ar

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for receivables and late fee
// policies.
type Repository interface {
	GetByID(ctx context.Context, companyID, id uuid.UUID) (Receivable, error)
	List(ctx context.Context, companyID uuid.UUID, status *ReceivableStatus) ([]Receivable, error)
	ListOpen(ctx context.Context, companyID uuid.UUID) ([]Receivable, error)
	OpenIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
	// EffectivePolicy returns the active policy covering the date. The
	// most recently effective policy wins when several overlap.
	EffectivePolicy(ctx context.Context, companyID uuid.UUID, date time.Time) (LateFeePolicy, error)
	ListPolicies(ctx context.Context, companyID uuid.UUID) ([]LateFeePolicy, error)
	InsertPolicy(ctx context.Context, p LateFeePolicy) error
	DeactivatePolicy(ctx context.Context, companyID, policyID uuid.UUID) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (Receivable, error)
	// Insert relies on the source_record_id unique constraint to keep
	// one receivable per generated record.
	Insert(ctx context.Context, rec Receivable) error
	Update(ctx context.Context, rec Receivable) error
	InsertPayment(ctx context.Context, p Payment) error
}

// Payment records one payment applied to a receivable.
type Payment struct {
	ID            uuid.UUID
	ReceivableID  uuid.UUID
	Amount        decimal.Decimal
	LateFeeAmount decimal.Decimal
	PaidAt        time.Time
	Note          string
	CreatedAt     time.Time
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const receivableColumns = `id, company_id, source_record_id, original_amount, outstanding_amount,
late_fee, due_date, last_payment_date, status, description, created_at, updated_at`

const policyColumns = `id, company_id, name, grace_period_days, fee_type, rate, fixed_fee,
max_late_fee, is_active, effective_from, effective_to, created_at, updated_at`

func scanReceivable(row pgx.Row) (Receivable, error) {
	var rec Receivable
	err := row.Scan(&rec.ID, &rec.CompanyID, &rec.SourceRecordID, &rec.OriginalAmount,
		&rec.Outstanding, &rec.LateFee, &rec.DueDate, &rec.LastPaymentDate,
		&rec.Status, &rec.Description, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receivable{}, ErrReceivableNotFound
	}
	return rec, err
}

func scanPolicy(row pgx.Row) (LateFeePolicy, error) {
	var p LateFeePolicy
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.GracePeriodDays, &p.Type, &p.Rate,
		&p.FixedFee, &p.MaxLateFee, &p.IsActive, &p.EffectiveFrom, &p.EffectiveTo,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LateFeePolicy{}, ErrPolicyNotFound
	}
	return p, err
}

func collectReceivables(rows pgx.Rows) ([]Receivable, error) {
	var recs []Receivable
	for rows.Next() {
		rec, err := scanReceivable(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, companyID, id uuid.UUID) (Receivable, error) {
	row := r.db.QueryRow(ctx, `SELECT `+receivableColumns+`
		FROM receivables WHERE company_id = $1 AND id = $2`, companyID, id)
	return scanReceivable(row)
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID, status *ReceivableStatus) ([]Receivable, error) {
	rows, err := r.db.Query(ctx, `SELECT `+receivableColumns+`
		FROM receivables
		WHERE company_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY due_date, id`, companyID, nullableStatus(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReceivables(rows)
}

func (r *repository) ListOpen(ctx context.Context, companyID uuid.UUID) ([]Receivable, error) {
	rows, err := r.db.Query(ctx, `SELECT `+receivableColumns+`
		FROM receivables
		WHERE company_id = $1 AND status IN ('OUTSTANDING', 'PARTIALLY_PAID')
		ORDER BY due_date, id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReceivables(rows)
}

func (r *repository) OpenIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM receivables
		WHERE company_id = $1 AND status IN ('OUTSTANDING', 'PARTIALLY_PAID')
		ORDER BY due_date, id`, companyID)
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

func (r *repository) EffectivePolicy(ctx context.Context, companyID uuid.UUID, date time.Time) (LateFeePolicy, error) {
	row := r.db.QueryRow(ctx, `SELECT `+policyColumns+`
		FROM late_fee_policies
		WHERE company_id = $1 AND is_active
		  AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to >= $2)
		ORDER BY effective_from DESC
		LIMIT 1`, companyID, date)
	return scanPolicy(row)
}

func (r *repository) ListPolicies(ctx context.Context, companyID uuid.UUID) ([]LateFeePolicy, error) {
	rows, err := r.db.Query(ctx, `SELECT `+policyColumns+`
		FROM late_fee_policies WHERE company_id = $1
		ORDER BY effective_from DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var policies []LateFeePolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (r *repository) InsertPolicy(ctx context.Context, p LateFeePolicy) error {
	_, err := r.db.Exec(ctx, `INSERT INTO late_fee_policies
		(id, company_id, name, grace_period_days, fee_type, rate, fixed_fee, max_late_fee,
		 is_active, effective_from, effective_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.CompanyID, p.Name, p.GracePeriodDays, p.Type, p.Rate, p.FixedFee, p.MaxLateFee,
		p.IsActive, p.EffectiveFrom, p.EffectiveTo, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repository) DeactivatePolicy(ctx context.Context, companyID, policyID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE late_fee_policies
		SET is_active = FALSE, updated_at = NOW()
		WHERE company_id = $1 AND id = $2`, companyID, policyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (t *txRepository) GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (Receivable, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+receivableColumns+`
		FROM receivables WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id)
	return scanReceivable(row)
}

func (t *txRepository) Insert(ctx context.Context, rec Receivable) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO receivables
		(id, company_id, source_record_id, original_amount, outstanding_amount, late_fee,
		 due_date, last_payment_date, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.CompanyID, rec.SourceRecordID, rec.OriginalAmount, rec.Outstanding, rec.LateFee,
		rec.DueDate, rec.LastPaymentDate, rec.Status, rec.Description, rec.CreatedAt, rec.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_receivables_source_record" {
		return ErrDuplicateSource
	}
	return err
}

func (t *txRepository) Update(ctx context.Context, rec Receivable) error {
	tag, err := t.tx.Exec(ctx, `UPDATE receivables
		SET outstanding_amount = $3, late_fee = $4, last_payment_date = $5,
			status = $6, updated_at = $7
		WHERE company_id = $1 AND id = $2`,
		rec.CompanyID, rec.ID, rec.Outstanding, rec.LateFee, rec.LastPaymentDate,
		rec.Status, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReceivableNotFound
	}
	return nil
}

func (t *txRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO receivable_payments
		(id, receivable_id, amount, late_fee_amount, paid_at, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.ReceivableID, p.Amount, p.LateFeeAmount, p.PaidAt, p.Note, p.CreatedAt)
	return err
}

func nullableStatus(s *ReceivableStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atrium-bms/atrium/internal/accounting/accounts"
	"github.com/atrium-bms/atrium/internal/accounting/shared"
)

// AccountDirectory resolves accounts and their subtrees for roll-ups.
type AccountDirectory interface {
	Get(ctx context.Context, companyID, accountID uuid.UUID) (accounts.Account, error)
	Descendants(ctx context.Context, companyID, accountID uuid.UUID) ([]accounts.Account, error)
}

// MetricsPort surfaces integrity violations to the alerting path.
type MetricsPort interface {
	IntegrityViolation()
}

// Service computes derived balances over posted journal lines. It never
// mutates ledger state; posted lines are the single source of truth and
// no denormalized balance column is consulted.
type Service struct {
	repo     Repository
	accounts AccountDirectory
	logger   *slog.Logger
	metrics  MetricsPort
}

func NewService(repo Repository, accounts AccountDirectory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: accounts, logger: logger}
}

func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// AccountBalance returns Σ(debit) − Σ(credit) over POSTED lines up to
// asOf. With rollUp the whole subtree contributes; otherwise only lines
// posted directly against the account.
func (s *Service) AccountBalance(ctx context.Context, companyID, accountID uuid.UUID, asOf time.Time, rollUp bool) (decimal.Decimal, error) {
	if _, err := s.accounts.Get(ctx, companyID, accountID); err != nil {
		return decimal.Zero, err
	}
	ids := []uuid.UUID{accountID}
	if rollUp {
		subtree, err := s.accounts.Descendants(ctx, companyID, accountID)
		if err != nil {
			return decimal.Zero, err
		}
		for _, acc := range subtree {
			ids = append(ids, acc.ID)
		}
	}
	return s.repo.BalanceAsOf(ctx, ids, asOf)
}

// TrialBalance aggregates every account with activity in the range and
// verifies the global invariant that debit and credit columns sum
// equally. An unequal result is reported as an integrity violation,
// never adjusted.
func (s *Service) TrialBalance(ctx context.Context, companyID uuid.UUID, start, end time.Time) (TrialBalance, error) {
	totals, err := s.repo.AccountActivity(ctx, companyID, start, end)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := BuildTrialBalance(totals)
	if !tb.TotalDebit.Equal(tb.TotalCredit) {
		if s.metrics != nil {
			s.metrics.IntegrityViolation()
		}
		s.logger.Error("trial balance out of balance",
			slog.String("company_id", companyID.String()),
			slog.String("total_debit", tb.TotalDebit.String()),
			slog.String("total_credit", tb.TotalCredit.String()),
		)
		return TrialBalance{}, fmt.Errorf("%w: trial balance debit %s != credit %s",
			shared.ErrIntegrity, tb.TotalDebit.String(), tb.TotalCredit.String())
	}
	return tb, nil
}

// GeneralLedger returns a cursor over the account's posted lines in the
// range, ordered by (date, entry number, line order).
func (s *Service) GeneralLedger(ctx context.Context, companyID, accountID uuid.UUID, start, end time.Time) (*LedgerCursor, error) {
	if _, err := s.accounts.Get(ctx, companyID, accountID); err != nil {
		return nil, err
	}
	return newLedgerCursor(s.repo, accountID, start, end), nil
}

// CheckIntegrity scans for POSTED entries whose lines do not cancel.
// Used by the scheduled integrity job; a nonempty result pages the
// operator path and is never auto-corrected.
func (s *Service) CheckIntegrity(ctx context.Context, companyID uuid.UUID) error {
	ids, err := s.repo.UnbalancedPostedEntries(ctx, companyID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if s.metrics != nil {
		s.metrics.IntegrityViolation()
	}
	s.logger.Error("unbalanced posted entries detected",
		slog.String("company_id", companyID.String()),
		slog.Int("count", len(ids)),
		slog.Any("entry_ids", ids),
	)
	return fmt.Errorf("%w: %d posted entries unbalanced", shared.ErrIntegrity, len(ids))
}

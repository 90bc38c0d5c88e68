package reports

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atrium-bms/atrium/internal/accounting/accounts"
	"github.com/atrium-bms/atrium/internal/accounting/shared"
)

type memoryReportsRepo struct {
	activity   []AccountTotals
	balances   map[uuid.UUID]decimal.Decimal
	ledger     []LedgerLine
	unbalanced []uuid.UUID
	pageCalls  int
}

func (r *memoryReportsRepo) AccountActivity(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]AccountTotals, error) {
	return r.activity, nil
}

func (r *memoryReportsRepo) BalanceAsOf(ctx context.Context, accountIDs []uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, id := range accountIDs {
		total = total.Add(r.balances[id])
	}
	return total, nil
}

func (r *memoryReportsRepo) LedgerPage(ctx context.Context, accountID uuid.UUID, start, end time.Time, after LedgerKey, limit int) ([]LedgerLine, error) {
	r.pageCalls++
	var out []LedgerLine
	for _, line := range r.ledger {
		key := LedgerKey{Date: line.EntryDate, Number: line.EntryNumber, LineOrder: line.LineOrder}
		if keyAfter(key, after) {
			out = append(out, line)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func keyAfter(a, b LedgerKey) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if a.Number != b.Number {
		return a.Number > b.Number
	}
	return a.LineOrder > b.LineOrder
}

func (r *memoryReportsRepo) UnbalancedPostedEntries(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	return r.unbalanced, nil
}

type stubDirectory struct {
	accounts map[uuid.UUID]accounts.Account
	children map[uuid.UUID][]accounts.Account
}

func (d *stubDirectory) Get(ctx context.Context, companyID, accountID uuid.UUID) (accounts.Account, error) {
	acc, ok := d.accounts[accountID]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return acc, nil
}

func (d *stubDirectory) Descendants(ctx context.Context, companyID, accountID uuid.UUID) ([]accounts.Account, error) {
	return d.children[accountID], nil
}

type countingMetrics struct {
	violations int
}

func (m *countingMetrics) IntegrityViolation() { m.violations++ }

func TestTrialBalancePostedEntryScenario(t *testing.T) {
	// One posted entry: debit 1000 (asset) 500.00, credit 4000
	// (revenue) 500.00.
	cash := uuid.New()
	revenue := uuid.New()
	repo := &memoryReportsRepo{
		activity: []AccountTotals{
			{AccountID: cash, Code: "1000", Name: "Operating Cash", Type: "ASSET", Debit: decimal.RequireFromString("500.00"), Credit: decimal.Zero},
			{AccountID: revenue, Code: "4000", Name: "Maintenance Fees", Type: "REVENUE", Debit: decimal.Zero, Credit: decimal.RequireFromString("500.00")},
		},
		balances: map[uuid.UUID]decimal.Decimal{cash: decimal.RequireFromString("500.00")},
	}
	dir := &stubDirectory{accounts: map[uuid.UUID]accounts.Account{
		cash:    {ID: cash, Code: "1000"},
		revenue: {ID: revenue, Code: "4000"},
	}}
	svc := NewService(repo, dir, nil)
	companyID := uuid.New()

	tb, err := svc.TrialBalance(context.Background(), companyID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(decimal.RequireFromString("500.00")))
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
	require.Len(t, tb.Groups, 2)
	require.Equal(t, "1", tb.Groups[0].Key)
	require.Equal(t, "4", tb.Groups[1].Key)

	balance, err := svc.AccountBalance(context.Background(), companyID, cash, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("500.00")))
}

func TestTrialBalanceDetectsImbalance(t *testing.T) {
	repo := &memoryReportsRepo{
		activity: []AccountTotals{
			{AccountID: uuid.New(), Code: "1000", Debit: decimal.RequireFromString("100.00"), Credit: decimal.Zero},
			{AccountID: uuid.New(), Code: "4000", Debit: decimal.Zero, Credit: decimal.RequireFromString("99.99")},
		},
	}
	metrics := &countingMetrics{}
	svc := NewService(repo, &stubDirectory{}, nil)
	svc.WithMetrics(metrics)

	_, err := svc.TrialBalance(context.Background(), uuid.New(), time.Time{}, time.Time{})
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.Equal(t, 1, metrics.violations)
}

func TestTrialBalanceSkipsZeroActivity(t *testing.T) {
	repo := &memoryReportsRepo{
		activity: []AccountTotals{
			{AccountID: uuid.New(), Code: "1000", Debit: decimal.Zero, Credit: decimal.Zero},
		},
	}
	svc := NewService(repo, &stubDirectory{}, nil)

	tb, err := svc.TrialBalance(context.Background(), uuid.New(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, tb.Groups)
	require.True(t, tb.TotalDebit.IsZero())
}

func TestAccountBalanceRollUp(t *testing.T) {
	parent := uuid.New()
	childA := uuid.New()
	childB := uuid.New()
	repo := &memoryReportsRepo{balances: map[uuid.UUID]decimal.Decimal{
		childA: decimal.RequireFromString("120.00"),
		childB: decimal.RequireFromString("80.00"),
	}}
	dir := &stubDirectory{
		accounts: map[uuid.UUID]accounts.Account{parent: {ID: parent, Code: "1000"}},
		children: map[uuid.UUID][]accounts.Account{parent: {{ID: childA}, {ID: childB}}},
	}
	svc := NewService(repo, dir, nil)

	leafOnly, err := svc.AccountBalance(context.Background(), uuid.New(), parent, time.Now(), false)
	require.NoError(t, err)
	require.True(t, leafOnly.IsZero())

	rolled, err := svc.AccountBalance(context.Background(), uuid.New(), parent, time.Now(), true)
	require.NoError(t, err)
	require.True(t, rolled.Equal(decimal.RequireFromString("200.00")))
}

func TestAccountBalanceUnknownAccount(t *testing.T) {
	svc := NewService(&memoryReportsRepo{}, &stubDirectory{}, nil)

	_, err := svc.AccountBalance(context.Background(), uuid.New(), uuid.New(), time.Now(), false)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func ledgerFixture(n int) []LedgerLine {
	lines := make([]LedgerLine, 0, n)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		lines = append(lines, LedgerLine{
			EntryID:     uuid.New(),
			EntryDate:   day.AddDate(0, 0, i/3),
			EntryNumber: "JE-2024-00000" + string(rune('1'+i%3)),
			Debit:       decimal.NewFromInt(int64(i + 1)),
			Credit:      decimal.Zero,
			LineOrder:   i%3 + 1,
		})
	}
	return lines
}

func TestGeneralLedgerCursorPagesLazily(t *testing.T) {
	account := uuid.New()
	repo := &memoryReportsRepo{ledger: ledgerFixture(5)}
	dir := &stubDirectory{accounts: map[uuid.UUID]accounts.Account{account: {ID: account}}}
	svc := NewService(repo, dir, nil)

	cursor, err := svc.GeneralLedger(context.Background(), uuid.New(), account, time.Time{}, time.Now())
	require.NoError(t, err)
	cursor.pageSize = 2

	var got []LedgerLine
	for cursor.Next(context.Background()) {
		got = append(got, cursor.Line())
	}
	require.NoError(t, cursor.Err())
	require.Len(t, got, 5)
	require.GreaterOrEqual(t, repo.pageCalls, 3)

	// Restartable: Reset rewinds to the beginning.
	cursor.Reset()
	var again []LedgerLine
	for cursor.Next(context.Background()) {
		again = append(again, cursor.Line())
	}
	require.NoError(t, cursor.Err())
	require.Equal(t, got, again)
}

func TestCheckIntegrityFlagsUnbalancedEntries(t *testing.T) {
	repo := &memoryReportsRepo{unbalanced: []uuid.UUID{uuid.New()}}
	metrics := &countingMetrics{}
	svc := NewService(repo, &stubDirectory{}, nil)
	svc.WithMetrics(metrics)

	err := svc.CheckIntegrity(context.Background(), uuid.New())
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.Equal(t, 1, metrics.violations)

	repo.unbalanced = nil
	require.NoError(t, svc.CheckIntegrity(context.Background(), uuid.New()))
}

package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atrium-bms/atrium/internal/accounting/shared"
)

type memoryAccountRepo struct {
	accounts map[uuid.UUID]*Account
	balances map[uuid.UUID]decimal.Decimal
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts: make(map[uuid.UUID]*Account),
		balances: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (r *memoryAccountRepo) Insert(ctx context.Context, account Account) (Account, error) {
	for _, existing := range r.accounts {
		if existing.CompanyID == account.CompanyID && existing.Code == account.Code {
			return Account{}, shared.ErrDuplicateCode
		}
	}
	stored := account
	r.accounts[account.ID] = &stored
	return stored, nil
}

func (r *memoryAccountRepo) GetByID(ctx context.Context, companyID, accountID uuid.UUID) (Account, error) {
	account, ok := r.accounts[accountID]
	if !ok || account.CompanyID != companyID {
		return Account{}, shared.ErrAccountNotFound
	}
	return *account, nil
}

func (r *memoryAccountRepo) List(ctx context.Context, companyID uuid.UUID) ([]Account, error) {
	var out []Account
	for _, account := range r.accounts {
		if account.CompanyID == companyID {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (r *memoryAccountRepo) ListChildren(ctx context.Context, companyID, parentID uuid.UUID) ([]Account, error) {
	var out []Account
	for _, account := range r.accounts {
		if account.CompanyID == companyID && account.ParentID != nil && *account.ParentID == parentID {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (r *memoryAccountRepo) SetActive(ctx context.Context, companyID, accountID uuid.UUID, active bool) error {
	account, ok := r.accounts[accountID]
	if !ok || account.CompanyID != companyID {
		return shared.ErrAccountNotFound
	}
	account.IsActive = active
	return nil
}

func (r *memoryAccountRepo) SetParent(ctx context.Context, companyID, accountID uuid.UUID, parentID *uuid.UUID) error {
	account, ok := r.accounts[accountID]
	if !ok || account.CompanyID != companyID {
		return shared.ErrAccountNotFound
	}
	account.ParentID = parentID
	return nil
}

func (r *memoryAccountRepo) PostedBalance(ctx context.Context, accountIDs []uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, id := range accountIDs {
		total = total.Add(r.balances[id])
	}
	return total, nil
}

func (r *memoryAccountRepo) MaxCodeWithPrefix(ctx context.Context, companyID uuid.UUID, prefix string) (string, error) {
	max := ""
	for _, account := range r.accounts {
		if account.CompanyID == companyID && len(account.Code) > 0 && account.Code[:1] == prefix && account.Code > max {
			max = account.Code
		}
	}
	return max, nil
}

func TestCreateAccountRejectsDuplicateCode(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo, nil)
	companyID := uuid.New()

	_, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1000", Name: "Cash", Type: AccountTypeAsset,
	})
	require.NoError(t, err)

	_, err = svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1000", Name: "Cash Again", Type: AccountTypeAsset,
	})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)
}

func TestCreateAccountValidatesCodeRange(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo, nil)

	_, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: uuid.New(), Code: "4000", Name: "Misfiled", Type: AccountTypeAsset,
	})
	require.ErrorIs(t, err, shared.ErrInvalidCode)

	_, err = svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: uuid.New(), Code: "40001", Name: "Too long", Type: AccountTypeRevenue,
	})
	require.ErrorIs(t, err, shared.ErrInvalidCode)
}

func TestCreateAccountRejectsForeignParent(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo, nil)

	parent, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: uuid.New(), Code: "1000", Name: "Cash", Type: AccountTypeAsset,
	})
	require.NoError(t, err)

	_, err = svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: uuid.New(), Code: "1100", Name: "Petty Cash", Type: AccountTypeAsset, ParentID: &parent.ID,
	})
	require.ErrorIs(t, err, shared.ErrInvalidHierarchy)
}

func TestReparentRejectsCycle(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo, nil)
	companyID := uuid.New()

	root, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1000", Name: "Assets", Type: AccountTypeAsset,
	})
	require.NoError(t, err)
	mid, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1100", Name: "Current", Type: AccountTypeAsset, ParentID: &root.ID,
	})
	require.NoError(t, err)
	leaf, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1110", Name: "Cash", Type: AccountTypeAsset, ParentID: &mid.ID,
	})
	require.NoError(t, err)

	err = svc.Reparent(context.Background(), companyID, root.ID, &leaf.ID, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrInvalidHierarchy)

	err = svc.Reparent(context.Background(), companyID, root.ID, &root.ID, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrInvalidHierarchy)
}

func TestDeactivateGuardsActivity(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo, nil)
	companyID := uuid.New()

	parent, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1000", Name: "Assets", Type: AccountTypeAsset,
	})
	require.NoError(t, err)
	child, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1100", Name: "Cash", Type: AccountTypeAsset, ParentID: &parent.ID,
	})
	require.NoError(t, err)

	// Active child blocks the parent.
	err = svc.Deactivate(context.Background(), companyID, parent.ID, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrHasActivity)

	// Nonzero balance blocks the child.
	repo.balances[child.ID] = decimal.RequireFromString("250.00")
	err = svc.Deactivate(context.Background(), companyID, child.ID, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrHasActivity)

	repo.balances[child.ID] = decimal.Zero
	require.NoError(t, svc.Deactivate(context.Background(), companyID, child.ID, uuid.Nil))
	require.NoError(t, svc.Deactivate(context.Background(), companyID, parent.ID, uuid.Nil))
}

func TestIsPostableLeafOnly(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo, nil)
	companyID := uuid.New()

	parent, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1000", Name: "Assets", Type: AccountTypeAsset,
	})
	require.NoError(t, err)
	child, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "1100", Name: "Cash", Type: AccountTypeAsset, ParentID: &parent.ID,
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.IsPostable(context.Background(), companyID, parent.ID), shared.ErrNotPostable)
	require.NoError(t, svc.IsPostable(context.Background(), companyID, child.ID))
	require.ErrorIs(t, svc.IsPostable(context.Background(), companyID, uuid.New()), shared.ErrUnknownAccount)
}

func TestSuggestCode(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo, nil)
	companyID := uuid.New()

	code, err := svc.SuggestCode(context.Background(), companyID, AccountTypeRevenue)
	require.NoError(t, err)
	require.Equal(t, "4000", code)

	_, err = svc.CreateAccount(context.Background(), CreateAccountInput{
		CompanyID: companyID, Code: "4000", Name: "Rent income", Type: AccountTypeRevenue,
	})
	require.NoError(t, err)

	code, err = svc.SuggestCode(context.Background(), companyID, AccountTypeRevenue)
	require.NoError(t, err)
	require.Equal(t, "4001", code)
}

func TestNormalSide(t *testing.T) {
	require.Equal(t, SideDebit, AccountTypeAsset.NormalSide())
	require.Equal(t, SideDebit, AccountTypeExpense.NormalSide())
	require.Equal(t, SideCredit, AccountTypeLiability.NormalSide())
	require.Equal(t, SideCredit, AccountTypeEquity.NormalSide())
	require.Equal(t, SideCredit, AccountTypeRevenue.NormalSide())
}

package reports

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountTotals models one account's aggregated activity over a range.
// Net is debit minus credit; the sign convention follows the account's
// normal side at the presentation layer, not here.
type AccountTotals struct {
	AccountID uuid.UUID
	Code      string
	Name      string
	Type      string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net computes the debit-minus-credit balance for the account.
func (a AccountTotals) Net() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// GroupKey returns the code's leading digit, which is also the account
// type band (1xxx assets through 5xxx expenses).
func (a AccountTotals) GroupKey() string {
	if len(a.Code) == 0 {
		return ""
	}
	return a.Code[:1]
}

// TrialBalanceRow is one account row inside a trial balance group.
type TrialBalanceRow struct {
	AccountID uuid.UUID
	Code      string
	Name      string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Net       decimal.Decimal
}

// TrialBalanceGroup aggregates rows per code band for presentation.
type TrialBalanceGroup struct {
	Key    string
	Rows   []TrialBalanceRow
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// TrialBalance is the final structure returned to callers. TotalDebit
// and TotalCredit are exactly equal whenever the ledger is intact.
type TrialBalance struct {
	Groups      []TrialBalanceGroup
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// BuildTrialBalance converts account totals into grouped trial balance
// data. Accounts with zero activity are skipped.
func BuildTrialBalance(accounts []AccountTotals) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range accounts {
		if acc.Debit.IsZero() && acc.Credit.IsZero() {
			continue
		}
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Rows = append(grp.Rows, TrialBalanceRow{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Debit:     acc.Debit,
			Credit:    acc.Credit,
			Net:       acc.Net(),
		})
		grp.Debit = grp.Debit.Add(acc.Debit)
		grp.Credit = grp.Credit.Add(acc.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Rows, func(i, j int) bool {
			return grp.Rows[i].Code < grp.Rows[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	return result
}

// LedgerLine is one row of an account's general ledger, ordered by
// (entry date, entry number, line order).
type LedgerLine struct {
	EntryID     uuid.UUID
	EntryDate   time.Time
	EntryNumber string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	LineOrder   int
}

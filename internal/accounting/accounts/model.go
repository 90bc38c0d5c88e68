package accounts

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// BalanceSide is the side on which an account type's balance is
// conventionally positive.
type BalanceSide string

const (
	SideDebit  BalanceSide = "DEBIT"
	SideCredit BalanceSide = "CREDIT"
)

// NormalSide returns the normal balance side for the account type.
func (t AccountType) NormalSide() BalanceSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Valid reports whether the type is one of the five categories.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// codePrefix maps each type to the leading digit of its code range.
var codePrefix = map[AccountType]byte{
	AccountTypeAsset:     '1',
	AccountTypeLiability: '2',
	AccountTypeEquity:    '3',
	AccountTypeRevenue:   '4',
	AccountTypeExpense:   '5',
}

var codePattern = regexp.MustCompile(`^[1-5][0-9]{3}$`)

// ValidCode reports whether code is a 4-digit code in the range
// belonging to the account type.
func ValidCode(code string, t AccountType) bool {
	if !codePattern.MatchString(code) {
		return false
	}
	return code[0] == codePrefix[t]
}

// Account models a chart of accounts node. Each node references its
// parent by ID; balances live on posted journal lines, never here.
type Account struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	Code        string
	Name        string
	Type        AccountType
	ParentID    *uuid.UUID
	IsActive    bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

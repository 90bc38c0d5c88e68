package shared

import "errors"

// Validation failures. Rejected synchronously before any mutation.
var (
	// ErrUnbalanced indicates debit total != credit total.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrMalformedLine indicates a line that is not exactly-one-sided.
	ErrMalformedLine = errors.New("accounting: line must carry either a debit or a credit, not both or neither")
	// ErrUnknownAccount indicates a line referencing a missing or inactive account.
	ErrUnknownAccount = errors.New("accounting: account not found or inactive")
	// ErrDuplicateCode indicates the account code is already used in the company.
	ErrDuplicateCode = errors.New("accounting: account code already in use")
	// ErrInvalidCode indicates the account code does not match the pattern for its type.
	ErrInvalidCode = errors.New("accounting: account code malformed for its type")
	// ErrInvalidHierarchy indicates a cross-company parent or a cycle.
	ErrInvalidHierarchy = errors.New("accounting: invalid account hierarchy")
)

// State failures. Rejected, entity unchanged.
var (
	// ErrInvalidTransition indicates action can't proceed from the current status.
	ErrInvalidTransition = errors.New("accounting: invalid status transition")
	// ErrHasActivity indicates the account subtree still carries balance or active children.
	ErrHasActivity = errors.New("accounting: account has activity or active children")
	// ErrNotPostable indicates posting against a non-leaf account.
	ErrNotPostable = errors.New("accounting: only leaf accounts accept journal lines")
)

// Period gating failures.
var (
	// ErrPeriodClosed indicates the entry date's period is not open for posting.
	ErrPeriodClosed = errors.New("accounting: period is closed")
	// ErrPeriodLocked indicates the period is locked and terminal.
	ErrPeriodLocked = errors.New("accounting: period locked")
	// ErrInvalidPeriod indicates no period covers the requested date.
	ErrInvalidPeriod = errors.New("accounting: no period for date")
	// ErrPeriodOverlap indicates a new period range collides with an existing one.
	ErrPeriodOverlap = errors.New("accounting: period range overlaps")
	// ErrDateOutOfRange indicates journal date falls outside its period.
	ErrDateOutOfRange = errors.New("accounting: date outside period")
)

// Not-found conditions.
var (
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrLineNotFound indicates missing journal line.
	ErrLineNotFound = errors.New("accounting: journal line not found")
	// ErrPeriodNotFound indicates missing period.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
)

// ErrIntegrity marks conditions that should be structurally impossible,
// such as a posted entry found unbalanced at read time. It must reach the
// operator path and is never auto-corrected.
var ErrIntegrity = errors.New("accounting: ledger integrity violation")

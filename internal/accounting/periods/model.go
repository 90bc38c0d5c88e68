package periods

import (
	"time"

	"github.com/google/uuid"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// transitions is the single source of truth for the period lifecycle.
// LOCKED is terminal.
var transitions = map[PeriodStatus]map[PeriodStatus]bool{
	PeriodStatusOpen:   {PeriodStatusClosed: true},
	PeriodStatusClosed: {PeriodStatusLocked: true, PeriodStatusOpen: true},
	PeriodStatusLocked: {},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to PeriodStatus) bool {
	return transitions[from][to]
}

// Period represents one fiscal period window of a company.
type Period struct {
	ID         uuid.UUID
	CompanyID  uuid.UUID
	FiscalYear int
	PeriodNo   int
	StartDate  time.Time
	EndDate    time.Time
	Status     PeriodStatus
	ClosedAt   *time.Time
	ClosedBy   *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Contains reports whether the date falls inside the period window,
// boundaries inclusive.
func (p Period) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMaterializeSchedules generates due recurring billing records.
	TaskMaterializeSchedules = "billing:materialize"
	// TaskRefreshLateFees recomputes late fees on open receivables.
	TaskRefreshLateFees = "ar:refresh_late_fees"
	// TaskLedgerIntegrity scans posted entries for debit/credit drift.
	TaskLedgerIntegrity = "ledger:integrity"
)

// SweepPayload carries the as-of date for company-wide sweep tasks. An
// empty AsOf means "today" at execution time.
type SweepPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// Date resolves the payload date, defaulting to the current UTC day.
func (p SweepPayload) Date() (time.Time, error) {
	if p.AsOf == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	return time.Parse("2006-01-02", p.AsOf)
}

// NewMaterializeTask constructs the recurring billing materialization task.
func NewMaterializeTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaterializeSchedules, data), nil
}

// NewRefreshLateFeesTask constructs the late fee refresh task.
func NewRefreshLateFeesTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefreshLateFees, data), nil
}

// NewLedgerIntegrityTask constructs the nightly ledger integrity scan.
func NewLedgerIntegrityTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskLedgerIntegrity, nil), nil
}

package schedules

import "errors"

var (
	// ErrScheduleNotFound indicates missing schedule.
	ErrScheduleNotFound = errors.New("schedules: schedule not found")
	// ErrNotDue indicates the schedule has nothing to generate for the date.
	ErrNotDue = errors.New("schedules: schedule not due for generation")
	// ErrAlreadyGenerated indicates a record for (schedule, date) already exists.
	ErrAlreadyGenerated = errors.New("schedules: record already generated for date")
	// ErrInvalidSchedule indicates malformed schedule parameters.
	ErrInvalidSchedule = errors.New("schedules: invalid schedule definition")
)

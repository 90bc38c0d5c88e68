package schedules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryScheduleRepo struct {
	schedules map[uuid.UUID]*Schedule
	records   []GeneratedRecord
}

func newMemoryScheduleRepo() *memoryScheduleRepo {
	return &memoryScheduleRepo{schedules: make(map[uuid.UUID]*Schedule)}
}

func (r *memoryScheduleRepo) GetByID(ctx context.Context, scheduleID uuid.UUID) (Schedule, error) {
	s, ok := r.schedules[scheduleID]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	return *s, nil
}

func (r *memoryScheduleRepo) List(ctx context.Context, companyID uuid.UUID) ([]Schedule, error) {
	var out []Schedule
	for _, s := range r.schedules {
		if s.CompanyID == companyID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memoryScheduleRepo) DueScheduleIDs(ctx context.Context, companyID uuid.UUID, asOf time.Time) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, s := range r.schedules {
		if s.CompanyID == companyID && s.ShouldGenerate(asOf) {
			out = append(out, s.ID)
		}
	}
	return out, nil
}

func (r *memoryScheduleRepo) Insert(ctx context.Context, schedule Schedule) (Schedule, error) {
	stored := schedule
	r.schedules[schedule.ID] = &stored
	return stored, nil
}

func (r *memoryScheduleRepo) SetActive(ctx context.Context, scheduleID uuid.UUID, active bool) error {
	s, ok := r.schedules[scheduleID]
	if !ok {
		return ErrScheduleNotFound
	}
	s.IsActive = active
	return nil
}

func (r *memoryScheduleRepo) ListRecords(ctx context.Context, companyID uuid.UUID, scheduleID uuid.UUID) ([]GeneratedRecord, error) {
	var out []GeneratedRecord
	for _, rec := range r.records {
		if rec.CompanyID == companyID && (scheduleID == uuid.Nil || rec.ScheduleID == scheduleID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryScheduleRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryScheduleRepo) GetForUpdate(ctx context.Context, scheduleID uuid.UUID) (Schedule, error) {
	return r.GetByID(ctx, scheduleID)
}

func (r *memoryScheduleRepo) InsertRecord(ctx context.Context, record GeneratedRecord) (GeneratedRecord, error) {
	for _, existing := range r.records {
		if existing.ScheduleID == record.ScheduleID && sameDay(existing.GenerationDate, record.GenerationDate) {
			return GeneratedRecord{}, ErrAlreadyGenerated
		}
	}
	r.records = append(r.records, record)
	return record, nil
}

func (r *memoryScheduleRepo) UpdateAfterGeneration(ctx context.Context, scheduleID uuid.UUID, next time.Time, generated time.Time) error {
	s, ok := r.schedules[scheduleID]
	if !ok {
		return ErrScheduleNotFound
	}
	s.NextGenerationDate = next
	gen := generated
	s.LastGeneratedDate = &gen
	return nil
}

type recordingOpener struct {
	opened []GeneratedRecord
}

func (o *recordingOpener) OpenForRecord(ctx context.Context, record GeneratedRecord) error {
	o.opened = append(o.opened, record)
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedSchedule(repo *memoryScheduleRepo, freq Frequency, interval int) Schedule {
	s := Schedule{
		ID:                 uuid.New(),
		CompanyID:          uuid.New(),
		Kind:               KindIncome,
		Name:               "Maintenance fee 101",
		Frequency:          freq,
		IntervalValue:      interval,
		Amount:             decimal.RequireFromString("350.00"),
		StartDate:          date(2024, 1, 1),
		NextGenerationDate: date(2024, 1, 1),
		IsActive:           true,
	}
	repo.schedules[s.ID] = &s
	return s
}

func TestCreateValidatesInput(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := NewService(repo, nil, nil, nil)
	base := CreateScheduleInput{
		CompanyID: uuid.New(),
		Kind:      KindIncome,
		Name:      "Rent unit 202",
		Frequency: FrequencyMonthly,
		Amount:    "1200.00",
		StartDate: date(2024, 1, 1),
	}

	created, err := svc.Create(context.Background(), base)
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.Equal(t, date(2024, 1, 1), created.NextGenerationDate)
	require.Equal(t, 1, created.IntervalValue)

	bad := base
	bad.Amount = "-5"
	_, err = svc.Create(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	bad = base
	bad.Frequency = "WEEKLY"
	_, err = svc.Create(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	bad = base
	end := date(2023, 12, 1)
	bad.EndDate = &end
	_, err = svc.Create(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestFrequencyStepArithmetic(t *testing.T) {
	cases := []struct {
		freq     Frequency
		interval int
		want     time.Time
	}{
		{FrequencyMonthly, 1, date(2024, 2, 1)},
		{FrequencyMonthly, 2, date(2024, 3, 1)},
		{FrequencyQuarterly, 1, date(2024, 4, 1)},
		{FrequencySemiAnnually, 1, date(2024, 7, 1)},
		{FrequencyAnnually, 1, date(2025, 1, 1)},
	}
	for _, tc := range cases {
		s := Schedule{Frequency: tc.freq, IntervalValue: tc.interval, NextGenerationDate: date(2024, 1, 1)}
		require.Equal(t, tc.want, s.NextGenerationAfter(), "freq %s interval %d", tc.freq, tc.interval)
	}
}

func TestShouldGenerateWindow(t *testing.T) {
	end := date(2024, 6, 30)
	s := Schedule{
		IsActive:           true,
		StartDate:          date(2024, 1, 1),
		EndDate:            &end,
		NextGenerationDate: date(2024, 3, 1),
	}

	require.False(t, s.ShouldGenerate(date(2023, 12, 31)), "before start")
	require.False(t, s.ShouldGenerate(date(2024, 2, 15)), "before next generation")
	require.True(t, s.ShouldGenerate(date(2024, 3, 1)))
	require.True(t, s.ShouldGenerate(date(2024, 4, 10)), "late run still generates")
	require.False(t, s.ShouldGenerate(date(2024, 7, 1)), "after end")

	s.IsActive = false
	require.False(t, s.ShouldGenerate(date(2024, 3, 1)))
}

func TestGenerateAdvancesScheduleAndOpensReceivable(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := NewService(repo, nil, nil, nil)
	opener := &recordingOpener{}
	svc.WithReceivables(opener)
	s := seedSchedule(repo, FrequencyMonthly, 1)

	record, err := svc.Generate(context.Background(), s.ID, date(2024, 1, 1))
	require.NoError(t, err)
	require.Equal(t, RecordStatusPending, record.Status)
	require.True(t, record.Amount.Equal(decimal.RequireFromString("350.00")))
	require.Equal(t, date(2024, 1, 31), record.DueDate)

	stored := *repo.schedules[s.ID]
	require.Equal(t, date(2024, 2, 1), stored.NextGenerationDate)
	require.NotNil(t, stored.LastGeneratedDate)
	require.Equal(t, date(2024, 1, 1), *stored.LastGeneratedDate)

	require.Len(t, opener.opened, 1)
	require.Equal(t, record.ID, opener.opened[0].ID)
}

func TestGenerateIsIdempotentPerDate(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := NewService(repo, nil, nil, nil)
	s := seedSchedule(repo, FrequencyMonthly, 1)

	_, err := svc.Generate(context.Background(), s.ID, date(2024, 1, 1))
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), s.ID, date(2024, 1, 1))
	require.ErrorIs(t, err, ErrAlreadyGenerated)
	require.Len(t, repo.records, 1)

	// Next cadence date generates again.
	_, err = svc.Generate(context.Background(), s.ID, date(2024, 2, 1))
	require.NoError(t, err)
	require.Len(t, repo.records, 2)
}

func TestGenerateRejectsNotDue(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := NewService(repo, nil, nil, nil)
	s := seedSchedule(repo, FrequencyMonthly, 1)
	repo.schedules[s.ID].NextGenerationDate = date(2024, 5, 1)

	_, err := svc.Generate(context.Background(), s.ID, date(2024, 4, 30))
	require.ErrorIs(t, err, ErrNotDue)
	require.Empty(t, repo.records)
}

func TestMaterializeDueSkipsFailuresAndDuplicates(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := NewService(repo, nil, nil, nil)
	companyID := uuid.New()

	due := seedSchedule(repo, FrequencyMonthly, 1)
	repo.schedules[due.ID].CompanyID = companyID
	other := seedSchedule(repo, FrequencyQuarterly, 1)
	repo.schedules[other.ID].CompanyID = companyID
	notDue := seedSchedule(repo, FrequencyMonthly, 1)
	repo.schedules[notDue.ID].CompanyID = companyID
	repo.schedules[notDue.ID].NextGenerationDate = date(2024, 9, 1)

	generated, err := svc.MaterializeDue(context.Background(), companyID, date(2024, 1, 1))
	require.NoError(t, err)
	require.Len(t, generated, 2)

	// A re-run is a no-op.
	generated, err = svc.MaterializeDue(context.Background(), companyID, date(2024, 1, 1))
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Len(t, repo.records, 2)
}

func TestPreviewGeneration(t *testing.T) {
	repo := newMemoryScheduleRepo()
	svc := NewService(repo, nil, nil, nil)
	s := seedSchedule(repo, FrequencyQuarterly, 1)

	preview, err := svc.PreviewGeneration(context.Background(), s.ID, date(2024, 1, 1))
	require.NoError(t, err)
	require.True(t, preview.CanGenerate)
	require.NotNil(t, preview.DueDate)
	require.Equal(t, date(2024, 2, 15), *preview.DueDate)
	require.NotNil(t, preview.NextGenerationDate)
	require.Equal(t, date(2024, 4, 1), *preview.NextGenerationDate)
	require.Empty(t, repo.records, "preview writes nothing")

	repo.schedules[s.ID].IsActive = false
	preview, err = svc.PreviewGeneration(context.Background(), s.ID, date(2024, 1, 1))
	require.NoError(t, err)
	require.False(t, preview.CanGenerate)
	require.Nil(t, preview.DueDate)
}

package periods

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/atrium-bms/atrium/internal/accounting/shared"
	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

type memoryPeriodRepo struct {
	periods  map[uuid.UUID]*Period
	unposted int

	inTx         bool
	conflictInTx bool
}

func newMemoryPeriodRepo() *memoryPeriodRepo {
	return &memoryPeriodRepo{periods: make(map[uuid.UUID]*Period)}
}

func (r *memoryPeriodRepo) FindByDate(ctx context.Context, companyID uuid.UUID, date time.Time) (Period, error) {
	for _, p := range r.periods {
		if p.CompanyID == companyID && p.Contains(date) {
			return *p, nil
		}
	}
	return Period{}, shared.ErrInvalidPeriod
}

func (r *memoryPeriodRepo) GetByID(ctx context.Context, periodID uuid.UUID) (Period, error) {
	p, ok := r.periods[periodID]
	if !ok {
		return Period{}, shared.ErrPeriodNotFound
	}
	return *p, nil
}

func (r *memoryPeriodRepo) ListByYear(ctx context.Context, companyID uuid.UUID, fiscalYear int) ([]Period, error) {
	var out []Period
	for _, p := range r.periods {
		if p.CompanyID == companyID && p.FiscalYear == fiscalYear {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryPeriodRepo) RangeConflict(ctx context.Context, companyID uuid.UUID, start, end time.Time) (bool, error) {
	r.conflictInTx = r.inTx
	for _, p := range r.periods {
		if p.CompanyID == companyID && !p.StartDate.After(end) && !p.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryPeriodRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.inTx = true
	defer func() { r.inTx = false }()
	return fn(ctx, r)
}

func (r *memoryPeriodRepo) GetForUpdate(ctx context.Context, periodID uuid.UUID) (Period, error) {
	return r.GetByID(ctx, periodID)
}

func (r *memoryPeriodRepo) UpdateStatus(ctx context.Context, periodID uuid.UUID, status PeriodStatus, closedAt *time.Time, closedBy *uuid.UUID) error {
	p, ok := r.periods[periodID]
	if !ok {
		return shared.ErrPeriodNotFound
	}
	p.Status = status
	p.ClosedAt = closedAt
	p.ClosedBy = closedBy
	return nil
}

func (r *memoryPeriodRepo) Insert(ctx context.Context, period Period) (Period, error) {
	stored := period
	r.periods[period.ID] = &stored
	return stored, nil
}

func (r *memoryPeriodRepo) CountUnpostedInRange(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int, error) {
	return r.unposted, nil
}

func seedPeriod(repo *memoryPeriodRepo, status PeriodStatus) Period {
	p := Period{
		ID:         uuid.New(),
		CompanyID:  uuid.New(),
		FiscalYear: 2024,
		PeriodNo:   1,
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Status:     status,
	}
	repo.periods[p.ID] = &p
	return p
}

func TestCloseRequiresOpen(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil, nil)
	period := seedPeriod(repo, PeriodStatusOpen)

	require.NoError(t, svc.Close(context.Background(), period.ID, uuid.New()))
	got, err := svc.Get(context.Background(), period.ID)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, got.Status)
	require.NotNil(t, got.ClosedAt)

	require.ErrorIs(t, svc.Close(context.Background(), period.ID, uuid.New()), shared.ErrInvalidTransition)
}

func TestClosePermitsUnpostedEntries(t *testing.T) {
	repo := newMemoryPeriodRepo()
	repo.unposted = 3
	svc := NewService(repo, nil, nil)
	period := seedPeriod(repo, PeriodStatusOpen)

	// Drafts dated inside the window do not block closing.
	require.NoError(t, svc.Close(context.Background(), period.ID, uuid.New()))
}

func TestLockRequiresClosedAndIsTerminal(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil, nil)
	period := seedPeriod(repo, PeriodStatusOpen)

	require.ErrorIs(t, svc.Lock(context.Background(), period.ID, uuid.New()), shared.ErrInvalidTransition)

	require.NoError(t, svc.Close(context.Background(), period.ID, uuid.New()))
	require.NoError(t, svc.Lock(context.Background(), period.ID, uuid.New()))

	require.ErrorIs(t, svc.Reopen(context.Background(), period.ID, uuid.New()), shared.ErrPeriodLocked)
	require.ErrorIs(t, svc.Close(context.Background(), period.ID, uuid.New()), shared.ErrPeriodLocked)
}

func TestReopenClosedPeriod(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil, nil)
	period := seedPeriod(repo, PeriodStatusClosed)

	require.NoError(t, svc.Reopen(context.Background(), period.ID, uuid.New()))
	got, err := svc.Get(context.Background(), period.ID)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, got.Status)
}

func TestIsDateOpen(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil, nil)
	period := seedPeriod(repo, PeriodStatusOpen)

	open, err := svc.IsDateOpen(context.Background(), period.CompanyID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, open)

	_, err = svc.IsDateOpen(context.Background(), period.CompanyID, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)
}

func TestCloseBarrierExcludesConcurrentClose(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mutex := internalShared.NewRedisMutex(client, time.Second)

	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil, mutex)
	period := seedPeriod(repo, PeriodStatusOpen)

	release, err := mutex.Acquire(context.Background(), internalShared.PeriodLockKey(period.ID))
	require.NoError(t, err)
	defer release()

	require.ErrorIs(t, svc.Close(context.Background(), period.ID, uuid.New()), internalShared.ErrLockHeld)

	release()
	require.NoError(t, svc.Close(context.Background(), period.ID, uuid.New()))
}

func TestEnsureYearBuildsContiguousMonths(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()

	generated, err := svc.EnsureYear(context.Background(), companyID, 2024)
	require.NoError(t, err)
	require.Len(t, generated, 12)
	for i, p := range generated {
		require.Equal(t, i+1, p.PeriodNo)
		if i > 0 {
			require.Equal(t, generated[i-1].EndDate.AddDate(0, 0, 1), p.StartDate)
		}
	}

	// Second call is a no-op returning the existing year.
	again, err := svc.EnsureYear(context.Background(), companyID, 2024)
	require.NoError(t, err)
	require.Len(t, again, 12)
}

func TestEnsureYearChecksOverlapWithinTransaction(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()

	// A stray period filed under the prior fiscal year but overlapping
	// January must block the whole year atomically.
	stray := Period{
		ID:         uuid.New(),
		CompanyID:  companyID,
		FiscalYear: 2023,
		PeriodNo:   13,
		StartDate:  time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:     PeriodStatusOpen,
	}
	repo.periods[stray.ID] = &stray

	_, err := svc.EnsureYear(context.Background(), companyID, 2024)
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)
	require.True(t, repo.conflictInTx, "overlap check must share the insert transaction")
	require.Len(t, repo.periods, 1)
}

package ar

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryARRepo struct {
	receivables map[uuid.UUID]*Receivable
	policies    []LateFeePolicy
	payments    []Payment
}

func newMemoryARRepo() *memoryARRepo {
	return &memoryARRepo{receivables: make(map[uuid.UUID]*Receivable)}
}

func (r *memoryARRepo) GetByID(ctx context.Context, companyID, id uuid.UUID) (Receivable, error) {
	rec, ok := r.receivables[id]
	if !ok || rec.CompanyID != companyID {
		return Receivable{}, ErrReceivableNotFound
	}
	return *rec, nil
}

func (r *memoryARRepo) List(ctx context.Context, companyID uuid.UUID, status *ReceivableStatus) ([]Receivable, error) {
	var out []Receivable
	for _, rec := range r.receivables {
		if rec.CompanyID != companyID {
			continue
		}
		if status != nil && rec.Status != *status {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r *memoryARRepo) ListOpen(ctx context.Context, companyID uuid.UUID) ([]Receivable, error) {
	var out []Receivable
	for _, rec := range r.receivables {
		if rec.CompanyID == companyID && rec.Status.open() {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memoryARRepo) OpenIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	open, err := r.ListOpen(ctx, companyID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(open))
	for _, rec := range open {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (r *memoryARRepo) EffectivePolicy(ctx context.Context, companyID uuid.UUID, date time.Time) (LateFeePolicy, error) {
	var best *LateFeePolicy
	for i := range r.policies {
		p := &r.policies[i]
		if p.CompanyID != companyID || !p.EffectiveOn(date) {
			continue
		}
		if best == nil || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
		}
	}
	if best == nil {
		return LateFeePolicy{}, ErrPolicyNotFound
	}
	return *best, nil
}

func (r *memoryARRepo) ListPolicies(ctx context.Context, companyID uuid.UUID) ([]LateFeePolicy, error) {
	var out []LateFeePolicy
	for _, p := range r.policies {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryARRepo) InsertPolicy(ctx context.Context, p LateFeePolicy) error {
	r.policies = append(r.policies, p)
	return nil
}

func (r *memoryARRepo) DeactivatePolicy(ctx context.Context, companyID, policyID uuid.UUID) error {
	for i := range r.policies {
		if r.policies[i].CompanyID == companyID && r.policies[i].ID == policyID {
			r.policies[i].IsActive = false
			return nil
		}
	}
	return ErrPolicyNotFound
}

func (r *memoryARRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[uuid.UUID]*Receivable, len(r.receivables))
	for id, rec := range r.receivables {
		copied := *rec
		snapshot[id] = &copied
	}
	payments := len(r.payments)
	if err := fn(ctx, r); err != nil {
		r.receivables = snapshot
		r.payments = r.payments[:payments]
		return err
	}
	return nil
}

func (r *memoryARRepo) GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (Receivable, error) {
	return r.GetByID(ctx, companyID, id)
}

func (r *memoryARRepo) Insert(ctx context.Context, rec Receivable) error {
	for _, existing := range r.receivables {
		if existing.SourceRecordID == rec.SourceRecordID {
			return ErrDuplicateSource
		}
	}
	stored := rec
	r.receivables[rec.ID] = &stored
	return nil
}

func (r *memoryARRepo) Update(ctx context.Context, rec Receivable) error {
	if _, ok := r.receivables[rec.ID]; !ok {
		return ErrReceivableNotFound
	}
	stored := rec
	r.receivables[rec.ID] = &stored
	return nil
}

func (r *memoryARRepo) InsertPayment(ctx context.Context, p Payment) error {
	r.payments = append(r.payments, p)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedReceivable(repo *memoryARRepo, companyID uuid.UUID, amount string, due time.Time) Receivable {
	rec := Receivable{
		ID:             uuid.New(),
		CompanyID:      companyID,
		SourceRecordID: uuid.New(),
		OriginalAmount: dec(amount),
		Outstanding:    dec(amount),
		LateFee:        decimal.Zero,
		DueDate:        due,
		Status:         StatusOutstanding,
	}
	repo.receivables[rec.ID] = &rec
	return rec
}

func percentagePolicy(companyID uuid.UUID) LateFeePolicy {
	return LateFeePolicy{
		ID:              uuid.New(),
		CompanyID:       companyID,
		Name:            "Standard late fee",
		GracePeriodDays: 5,
		Type:            LateFeePercentage,
		Rate:            dec("5"),
		FixedFee:        decimal.Zero,
		IsActive:        true,
		EffectiveFrom:   day(2024, 1, 1),
	}
}

func TestLateFeeCalculation(t *testing.T) {
	capFee := dec("40.00")
	cases := []struct {
		name        string
		policy      LateFeePolicy
		outstanding string
		overdueDays int
		want        string
	}{
		{
			name:        "percentage after grace",
			policy:      LateFeePolicy{GracePeriodDays: 5, Type: LateFeePercentage, Rate: dec("5")},
			outstanding: "1000.00", overdueDays: 10, want: "50",
		},
		{
			name:        "within grace accrues nothing",
			policy:      LateFeePolicy{GracePeriodDays: 5, Type: LateFeePercentage, Rate: dec("5")},
			outstanding: "1000.00", overdueDays: 5, want: "0",
		},
		{
			name:        "fixed fee",
			policy:      LateFeePolicy{GracePeriodDays: 0, Type: LateFeeFixed, FixedFee: dec("25.00")},
			outstanding: "1000.00", overdueDays: 3, want: "25.00",
		},
		{
			name:        "daily rate scales with days past grace",
			policy:      LateFeePolicy{GracePeriodDays: 2, Type: LateFeeDailyRate, Rate: dec("0.5")},
			outstanding: "1000.00", overdueDays: 12, want: "50",
		},
		{
			name:        "cap clamps the fee",
			policy:      LateFeePolicy{GracePeriodDays: 5, Type: LateFeePercentage, Rate: dec("5"), MaxLateFee: &capFee},
			outstanding: "1000.00", overdueDays: 10, want: "40.00",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.policy.Calculate(dec(tc.outstanding), tc.overdueDays)
			require.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestOverdueDaysGatedByStatus(t *testing.T) {
	rec := Receivable{
		Outstanding: dec("100.00"),
		DueDate:     day(2024, 3, 1),
		Status:      StatusOutstanding,
	}
	require.Equal(t, 10, rec.OverdueDays(day(2024, 3, 11)))
	require.Equal(t, 0, rec.OverdueDays(day(2024, 3, 1)), "due date itself is not overdue")
	require.Equal(t, 0, rec.OverdueDays(day(2024, 2, 20)))

	rec.Status = StatusFullyPaid
	require.Equal(t, 0, rec.OverdueDays(day(2024, 3, 11)))
	rec.Status = StatusWrittenOff
	require.Equal(t, 0, rec.OverdueDays(day(2024, 3, 11)))
}

func TestOpenIsIdempotentPerSourceRecord(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	in := OpenInput{
		CompanyID:      uuid.New(),
		SourceRecordID: uuid.New(),
		Amount:         dec("350.00"),
		DueDate:        day(2024, 2, 1),
	}

	rec, err := svc.Open(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusOutstanding, rec.Status)
	require.True(t, rec.Outstanding.Equal(dec("350.00")))
	require.True(t, rec.LateFee.IsZero())

	_, err = svc.Open(context.Background(), in)
	require.ErrorIs(t, err, ErrDuplicateSource)

	_, err = svc.Open(context.Background(), OpenInput{
		CompanyID:      in.CompanyID,
		SourceRecordID: uuid.New(),
		Amount:         decimal.Zero,
		DueDate:        day(2024, 2, 1),
	})
	require.ErrorIs(t, err, ErrInvalidPayment)
}

func TestApplyPaymentProgressesStatus(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()
	rec := seedReceivable(repo, companyID, "1000.00", day(2024, 2, 1))

	partial, err := svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{
		Amount: dec("400.00"),
		PaidAt: day(2024, 2, 10),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, partial.Status)
	require.True(t, partial.Outstanding.Equal(dec("600.00")))
	require.NotNil(t, partial.LastPaymentDate)
	require.Equal(t, day(2024, 2, 10), *partial.LastPaymentDate)

	full, err := svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{
		Amount: dec("600.00"),
		PaidAt: day(2024, 2, 20),
	})
	require.NoError(t, err)
	require.Equal(t, StatusFullyPaid, full.Status)
	require.True(t, full.Outstanding.IsZero())

	_, err = svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{
		Amount: dec("1.00"),
	})
	require.ErrorIs(t, err, ErrAlreadySettled)
	require.Len(t, repo.payments, 2)
}

func TestApplyPaymentOverpayClampsToZero(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()
	rec := seedReceivable(repo, companyID, "100.00", day(2024, 2, 1))

	paid, err := svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{
		Amount: dec("150.00"),
	})
	require.NoError(t, err)
	require.True(t, paid.Outstanding.IsZero(), "outstanding clamps at zero, never negative")
	require.Equal(t, StatusFullyPaid, paid.Status)
}

func TestApplyPaymentSettlesLateFeeSeparately(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()
	rec := seedReceivable(repo, companyID, "1000.00", day(2024, 2, 1))
	repo.receivables[rec.ID].LateFee = dec("50.00")

	// Principal cleared but the fee remains, so the receivable stays open.
	partial, err := svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{
		Amount: dec("1000.00"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, partial.Status)
	require.True(t, partial.TotalOutstanding().Equal(dec("50.00")))

	full, err := svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{
		LateFeePaid: dec("50.00"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusFullyPaid, full.Status)
	require.True(t, full.TotalOutstanding().IsZero())
}

func TestApplyPaymentRejectsNonPositive(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()
	rec := seedReceivable(repo, companyID, "100.00", day(2024, 2, 1))

	_, err := svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{})
	require.ErrorIs(t, err, ErrInvalidPayment)

	_, err = svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{
		Amount: dec("-10.00"),
	})
	require.ErrorIs(t, err, ErrInvalidPayment)

	got, err := svc.Get(context.Background(), companyID, rec.ID)
	require.NoError(t, err)
	require.True(t, got.Outstanding.Equal(dec("100.00")), "rejected payments leave the balance untouched")
}

func TestRefreshLateFeesUsesEffectivePolicy(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()
	repo.policies = append(repo.policies, percentagePolicy(companyID))

	overdue := seedReceivable(repo, companyID, "1000.00", day(2024, 3, 1))
	current := seedReceivable(repo, companyID, "500.00", day(2024, 4, 1))
	settled := seedReceivable(repo, companyID, "200.00", day(2024, 1, 1))
	repo.receivables[settled.ID].Status = StatusFullyPaid
	repo.receivables[settled.ID].Outstanding = decimal.Zero

	updated, err := svc.RefreshLateFees(context.Background(), companyID, day(2024, 3, 11))
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	got, err := svc.Get(context.Background(), companyID, overdue.ID)
	require.NoError(t, err)
	require.True(t, got.LateFee.Equal(dec("50")), "5%% of 1000.00 after grace, got %s", got.LateFee)

	got, err = svc.Get(context.Background(), companyID, current.ID)
	require.NoError(t, err)
	require.True(t, got.LateFee.IsZero())

	// A second run at the same date changes nothing.
	updated, err = svc.RefreshLateFees(context.Background(), companyID, day(2024, 3, 11))
	require.NoError(t, err)
	require.Equal(t, 0, updated)
}

func TestRefreshLateFeesWithoutPolicyIsNoop(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()
	seedReceivable(repo, companyID, "1000.00", day(2024, 1, 1))

	updated, err := svc.RefreshLateFees(context.Background(), companyID, day(2024, 3, 1))
	require.NoError(t, err)
	require.Equal(t, 0, updated)
}

func TestAgingBucketsByOverdueAge(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()
	asOf := day(2024, 6, 15)

	seedReceivable(repo, companyID, "100.00", day(2024, 7, 1))  // not yet due
	seedReceivable(repo, companyID, "200.00", day(2024, 6, 1))  // 14 days
	seedReceivable(repo, companyID, "300.00", day(2024, 5, 1))  // 45 days
	seedReceivable(repo, companyID, "400.00", day(2024, 4, 1))  // 75 days
	seedReceivable(repo, companyID, "500.00", day(2024, 1, 1))  // 166 days
	written := seedReceivable(repo, companyID, "999.00", day(2024, 1, 1))
	repo.receivables[written.ID].Status = StatusWrittenOff

	report, err := svc.Aging(context.Background(), companyID, asOf)
	require.NoError(t, err)
	bucket := report.Buckets
	require.True(t, bucket.Current.Equal(dec("100.00")))
	require.True(t, bucket.Bucket30.Equal(dec("200.00")))
	require.True(t, bucket.Bucket60.Equal(dec("300.00")))
	require.True(t, bucket.Bucket90.Equal(dec("400.00")))
	require.True(t, bucket.Bucket120.Equal(dec("500.00")))
	require.True(t, bucket.Total().Equal(dec("1500.00")))
}

func TestAgingIncludesLateFees(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()

	rec := seedReceivable(repo, companyID, "1000.00", day(2024, 6, 1))
	repo.receivables[rec.ID].LateFee = dec("50.00")

	report, err := svc.Aging(context.Background(), companyID, day(2024, 6, 10))
	require.NoError(t, err)
	require.True(t, report.Buckets.Bucket30.Equal(dec("1050.00")))
}

func TestAgingSnapshotsPerReceivableAtAsOf(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()

	early := seedReceivable(repo, companyID, "200.00", day(2024, 5, 1))
	repo.receivables[early.ID].LateFee = dec("10.00")
	late := seedReceivable(repo, companyID, "300.00", day(2024, 6, 1))
	written := seedReceivable(repo, companyID, "999.00", day(2024, 1, 1))
	repo.receivables[written.ID].Status = StatusWrittenOff

	report, err := svc.Aging(context.Background(), companyID, day(2024, 6, 15))
	require.NoError(t, err)
	require.Equal(t, day(2024, 6, 15), report.AsOf)
	require.Len(t, report.Snapshots, 2)

	// Ordered by due date, written-off receivables excluded.
	first, second := report.Snapshots[0], report.Snapshots[1]
	require.Equal(t, early.ID, first.ReceivableID)
	require.Equal(t, 45, first.OverdueDays)
	require.True(t, first.Outstanding.Equal(dec("200.00")))
	require.True(t, first.LateFee.Equal(dec("10.00")))
	require.True(t, first.Total.Equal(dec("210.00")))
	require.Equal(t, StatusOutstanding, first.Status)
	require.Equal(t, late.ID, second.ReceivableID)
	require.Equal(t, 14, second.OverdueDays)

	// The same receivables viewed at an earlier date are not overdue.
	prior, err := svc.Aging(context.Background(), companyID, day(2024, 4, 1))
	require.NoError(t, err)
	require.Len(t, prior.Snapshots, 2)
	for _, snap := range prior.Snapshots {
		require.Equal(t, 0, snap.OverdueDays)
	}
	require.True(t, prior.Buckets.Current.Equal(dec("510.00")))
}

func TestWriteOffTerminatesReceivable(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	companyID := uuid.New()
	rec := seedReceivable(repo, companyID, "100.00", day(2024, 2, 1))

	_, err := svc.WriteOff(context.Background(), companyID, rec.ID, uuid.Nil, "")
	require.ErrorIs(t, err, ErrInvalidPayment)

	written, err := svc.WriteOff(context.Background(), companyID, rec.ID, uuid.Nil, "tenant vacated")
	require.NoError(t, err)
	require.Equal(t, StatusWrittenOff, written.Status)

	_, err = svc.WriteOff(context.Background(), companyID, rec.ID, uuid.Nil, "again")
	require.ErrorIs(t, err, ErrAlreadySettled)
	_, err = svc.ApplyPayment(context.Background(), companyID, rec.ID, uuid.Nil, PaymentInput{Amount: dec("10.00")})
	require.ErrorIs(t, err, ErrAlreadySettled)
}

func TestCreatePolicyValidation(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)
	base := PolicyInput{
		CompanyID:     uuid.New(),
		Name:          "Standard",
		Type:          LateFeePercentage,
		Rate:          dec("5"),
		EffectiveFrom: day(2024, 1, 1),
	}

	created, err := svc.CreatePolicy(context.Background(), base)
	require.NoError(t, err)
	require.True(t, created.IsActive)

	bad := base
	bad.Type = "HOURLY"
	_, err = svc.CreatePolicy(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidPolicy)

	bad = base
	bad.GracePeriodDays = -1
	_, err = svc.CreatePolicy(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidPolicy)

	bad = base
	to := day(2023, 12, 1)
	bad.EffectiveTo = &to
	_, err = svc.CreatePolicy(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestEffectivePolicyWindow(t *testing.T) {
	companyID := uuid.New()
	to := day(2024, 6, 30)
	p := percentagePolicy(companyID)
	p.EffectiveTo = &to

	require.False(t, p.EffectiveOn(day(2023, 12, 31)))
	require.True(t, p.EffectiveOn(day(2024, 1, 1)))
	require.True(t, p.EffectiveOn(day(2024, 6, 30)))
	require.False(t, p.EffectiveOn(day(2024, 7, 1)))

	p.IsActive = false
	require.False(t, p.EffectiveOn(day(2024, 3, 1)))
}

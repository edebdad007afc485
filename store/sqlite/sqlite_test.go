package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/job-ledger/billing"
	"github.com/warp/job-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var base = time.Date(2025, time.May, 20, 11, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var mu sync.Mutex
	tick := base
	s.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	return s
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func jobFields(total string) billing.Fields {
	return billing.Fields{
		CustomerName:    "Vikram Singh",
		CustomerPhone:   "9811122233",
		CustomerAddress: "Plot 7, Industrial Area",
		Note:            "Motor rewinding",
		Hours:           5,
		Minutes:         15,
		PerHourRate:     amount("180.50"),
		LabourCount:     3,
		TotalAmount:     amount(total),
		Date:            base.Add(-24 * time.Hour),
	}
}

func newRecord(t *testing.T, id billing.RecordID, total string) *billing.Record {
	t.Helper()
	r, err := billing.NewRecord(id, jobFields(total), nil, "", base)
	require.NoError(t, err)
	return r
}

func payment(amt string, mode billing.PaymentMode, at time.Time) billing.PaymentInput {
	return billing.PaymentInput{Amount: amount(amt), Mode: mode, Date: &at}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	r := newRecord(t, "job-1", "1999.99")
	paidAt := time.Date(2025, time.May, 19, 17, 45, 30, 123456789, time.UTC)
	require.NoError(t, r.AddPayment(payment("999.99", billing.PaymentModeOnline, paidAt), "pay-1", base))

	committed, err := s.Put(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(1), committed.Version)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Vikram Singh", got.CustomerName)
	assert.Equal(t, "Motor rewinding", got.Note)
	assert.Equal(t, 5, got.Hours)
	assert.Equal(t, 15, got.Minutes)
	assert.Equal(t, 3, got.LabourCount)
	assert.True(t, amount("180.50").Equal(got.PerHourRate))
	assert.True(t, amount("1999.99").Equal(got.TotalAmount))
	assert.True(t, base.Add(-24*time.Hour).Equal(got.Date))
	assert.True(t, got.Active)
	assert.False(t, got.Deleted)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, committed.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, committed.UpdatedAt.Equal(got.UpdatedAt))

	entries := got.Ledger().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, billing.PaymentID("pay-1"), entries[0].ID)
	assert.Equal(t, billing.PaymentModeOnline, entries[0].Mode)
	assert.True(t, amount("999.99").Equal(entries[0].Amount))
	assert.True(t, paidAt.Equal(entries[0].Date), "nanoseconds survive")
	assert.Equal(t, billing.PaymentStatusPending, got.PaymentStatus())
}

func TestStore_GetMissing(t *testing.T) {
	got, err := newStore(t).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_FileDatabaseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = s.Put(ctx, newRecord(t, "job-1", "100"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Ping(ctx))

	got, err := reopened.Get(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, amount("100").Equal(got.TotalAmount))
}

// corruptColumn rewrites one column of an existing database file behind the
// store's back.
func corruptColumn(t *testing.T, path, stmt string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(stmt)
	require.NoError(t, err)
}

func TestStore_MalformedTimestampsAreReported(t *testing.T) {
	tests := []struct {
		name    string
		stmt    string
		wantErr string
	}{
		{"job date", "UPDATE records SET job_date = 'yesterday'", "job_date"},
		{"created at", "UPDATE records SET created_at = 'garbage'", "created_at"},
		{"updated at", "UPDATE records SET updated_at = '2025-13-45'", "updated_at"},
		{"paid at", "UPDATE payments SET paid_at = 'not a time'", "paid_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "records.db")

			// GIVEN: A stored record with one payment
			s, err := sqlite.New(path)
			require.NoError(t, err)
			r := newRecord(t, "job-1", "100")
			require.NoError(t, r.AddPayment(payment("40", billing.PaymentModeCash, base), "p1", base))
			_, err = s.Put(ctx, r)
			require.NoError(t, err)
			require.NoError(t, s.Close())

			// WHEN: A timestamp column no longer parses
			corruptColumn(t, path, tt.stmt)

			reopened, err := sqlite.New(path)
			require.NoError(t, err)
			defer reopened.Close()

			// THEN: Reads fail instead of returning zero times
			got, err := reopened.Get(ctx, "job-1")
			assert.Nil(t, got)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			list, err := reopened.ListActive(ctx)
			assert.Nil(t, list)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// =============================================================================
// OPTIMISTIC LOCKING
// =============================================================================

func TestStore_DuplicateInsertConflicts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Put(ctx, newRecord(t, "job-1", "100"))
	require.NoError(t, err)
	_, err = s.Put(ctx, newRecord(t, "job-1", "100"))
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	v1, err := s.Put(ctx, newRecord(t, "job-1", "1000"))
	require.NoError(t, err)

	// GIVEN: Two writers holding version 1
	first, second := v1.Clone(), v1.Clone()
	require.NoError(t, first.AddPayment(payment("700", billing.PaymentModeCash, base), "p-first", base))
	require.NoError(t, second.AddPayment(payment("700", billing.PaymentModeCash, base), "p-second", base))

	// WHEN: Both commit
	v2, err := s.Put(ctx, first)
	require.NoError(t, err)
	_, err = s.Put(ctx, second)

	// THEN: The loser gets a conflict and its payment is not stored
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)
	assert.Equal(t, int64(2), v2.Version)
	assert.True(t, v1.CreatedAt.Equal(v2.CreatedAt))
	assert.True(t, v2.UpdatedAt.After(v1.UpdatedAt))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Ledger().Len())
	assert.Equal(t, billing.PaymentID("p-first"), got.Ledger().Entries()[0].ID)
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_AppendsOnlyNewPayments(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	r := newRecord(t, "job-1", "1000")
	require.NoError(t, r.AddPayment(payment("100", billing.PaymentModeCash, base), "p1", base))
	v1, err := s.Put(ctx, r)
	require.NoError(t, err)

	next := v1.Clone()
	require.NoError(t, next.AddPayment(payment("200", billing.PaymentModeOnline, base), "p2", base))
	require.NoError(t, next.AddPayment(payment("300", billing.PaymentModeCash, base), "p3", base))
	_, err = s.Put(ctx, next)
	require.NoError(t, err)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	var ids []billing.PaymentID
	for _, e := range got.Ledger().Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []billing.PaymentID{"p1", "p2", "p3"}, ids)
	assert.True(t, amount("600").Equal(got.TotalPaid()))
}

func TestStore_RejectsLedgerRewrite(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	r := newRecord(t, "job-1", "1000")
	require.NoError(t, r.AddPayment(payment("100", billing.PaymentModeCash, base), "p1", base))
	v1, err := s.Put(ctx, r)
	require.NoError(t, err)

	edited := billing.Restore(v1.ID, v1.Fields,
		billing.NewPaymentLedger(billing.PaymentEntry{ID: "p1", Amount: amount("50"), Date: base, Mode: billing.PaymentModeCash}),
		true, false, v1.Version, v1.CreatedAt, v1.UpdatedAt)

	_, err = s.Put(ctx, edited)
	assert.ErrorIs(t, err, billing.ErrLedgerRewrite)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, amount("100").Equal(got.TotalPaid()))
}

func TestStore_UpdateOfMissingRecord(t *testing.T) {
	r := billing.Restore("ghost", jobFields("10"), billing.NewPaymentLedger(), true, false, 2, base, base)
	_, err := newStore(t).Put(context.Background(), r)
	assert.True(t, billing.IsNotFound(err))
}

// =============================================================================
// LISTING
// =============================================================================

func TestStore_ListActive(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	committed := map[billing.RecordID]*billing.Record{}
	for _, id := range []billing.RecordID{"a", "b", "c"} {
		r := newRecord(t, id, "500")
		require.NoError(t, r.AddPayment(payment("50", billing.PaymentModeCash, base), billing.PaymentID("p-"+id), base))
		c, err := s.Put(ctx, r)
		require.NoError(t, err)
		committed[id] = c
	}

	// "a" gets a payment, "b" is deleted
	touched := committed["a"].Clone()
	require.NoError(t, touched.AddPayment(payment("25", billing.PaymentModeCash, base), "p-a2", base))
	_, err := s.Put(ctx, touched)
	require.NoError(t, err)

	gone := committed["b"].Clone()
	gone.SoftDelete()
	_, err = s.Put(ctx, gone)
	require.NoError(t, err)

	list, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, billing.RecordID("a"), list[0].ID)
	assert.Equal(t, billing.RecordID("c"), list[1].ID)
	assert.Equal(t, 2, list[0].Ledger().Len())
	assert.True(t, amount("75").Equal(list[0].TotalPaid()))
	assert.Equal(t, 1, list[1].Ledger().Len())

	// Deleted record is still retrievable
	audit, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, audit.Deleted)
	assert.False(t, audit.Active)
	assert.Equal(t, 1, audit.Ledger().Len())
}

func TestStore_ListActiveEmpty(t *testing.T) {
	list, err := newStore(t).ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

// =============================================================================
// SERVICE INTEGRATION
// =============================================================================

func TestStore_WithService(t *testing.T) {
	ctx := context.Background()
	svc := billing.NewService(newStore(t))

	initial := billing.PaymentInput{Amount: amount("300")}
	r, err := svc.CreateRecord(ctx, jobFields("1000"), &initial)
	require.NoError(t, err)

	r, err = svc.AddPayment(ctx, r.ID, billing.PaymentInput{Amount: amount("700")})
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentStatusPaid, r.PaymentStatus())

	_, err = svc.AddPayment(ctx, r.ID, billing.PaymentInput{Amount: amount("1")})
	assert.ErrorIs(t, err, billing.ErrOverpayment)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	other, err := svc.CreateRecord(ctx, jobFields("500"), nil)
	require.NoError(t, err)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddPayment(ctx, other.ID, billing.PaymentInput{Amount: amount("100")})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, billing.ErrOverpayment)
		}
	}
	assert.Equal(t, 5, accepted)

	got, err := svc.GetRecord(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, amount("500").Equal(got.TotalPaid()))
}

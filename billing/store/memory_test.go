package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/job-ledger/billing"
	"github.com/warp/job-ledger/billing/store"
)

var base = time.Date(2025, time.April, 1, 8, 0, 0, 0, time.UTC)

func fields(total int64) billing.Fields {
	return billing.Fields{
		CustomerName:    "Anita",
		CustomerPhone:   "9000000001",
		CustomerAddress: "Sector 4",
		TotalAmount:     decimal.NewFromInt(total),
	}
}

func newRecord(t *testing.T, id billing.RecordID, total int64) *billing.Record {
	t.Helper()
	r, err := billing.NewRecord(id, fields(total), nil, "", base)
	require.NoError(t, err)
	return r
}

func newMemory() *store.Memory {
	m := store.NewMemory()
	tick := base
	m.Now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	return m
}

func TestMemory_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	m := newMemory()

	got, err := m.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	committed, err := m.Put(ctx, newRecord(t, "r1", 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1), committed.Version)
	assert.Equal(t, base.Add(time.Minute), committed.CreatedAt)
	assert.Equal(t, committed.CreatedAt, committed.UpdatedAt)

	got, err = m.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, committed.Version, got.Version)
	assert.Equal(t, "Anita", got.CustomerName)
}

func TestMemory_DuplicateInsertConflicts(t *testing.T) {
	ctx := context.Background()
	m := newMemory()

	_, err := m.Put(ctx, newRecord(t, "r1", 1000))
	require.NoError(t, err)

	_, err = m.Put(ctx, newRecord(t, "r1", 1000))
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)
}

func TestMemory_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	v1, err := m.Put(ctx, newRecord(t, "r1", 1000))
	require.NoError(t, err)

	// GIVEN: Two writers load the same version
	first := v1.Clone()
	second := v1.Clone()

	// WHEN: Both append a payment
	require.NoError(t, first.AddPayment(billing.PaymentInput{Amount: decimal.NewFromInt(600)}, "p1", base))
	require.NoError(t, second.AddPayment(billing.PaymentInput{Amount: decimal.NewFromInt(600)}, "p2", base))

	v2, err := m.Put(ctx, first)
	require.NoError(t, err)
	_, err = m.Put(ctx, second)

	// THEN: Only the first commit lands
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)
	assert.Equal(t, int64(2), v2.Version)
	assert.Equal(t, v1.CreatedAt, v2.CreatedAt)
	assert.True(t, v2.UpdatedAt.After(v1.UpdatedAt))

	stored, err := m.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Ledger().Len())
}

func TestMemory_RejectsLedgerRewrite(t *testing.T) {
	ctx := context.Background()
	m := newMemory()

	r := newRecord(t, "r1", 1000)
	require.NoError(t, r.AddPayment(billing.PaymentInput{Amount: decimal.NewFromInt(100)}, "p1", base))
	v1, err := m.Put(ctx, r)
	require.NoError(t, err)

	// Same version, but the ledger lost its entry
	rewritten := billing.Restore(v1.ID, v1.Fields, billing.NewPaymentLedger(), true, false,
		v1.Version, v1.CreatedAt, v1.UpdatedAt)
	_, err = m.Put(ctx, rewritten)
	assert.ErrorIs(t, err, billing.ErrLedgerRewrite)
}

func TestMemory_UpdateOfMissingRecord(t *testing.T) {
	r := billing.Restore("ghost", fields(10), billing.NewPaymentLedger(), true, false, 3, base, base)
	_, err := newMemory().Put(context.Background(), r)
	assert.True(t, billing.IsNotFound(err))
}

func TestMemory_ListActiveOrderAndVisibility(t *testing.T) {
	ctx := context.Background()
	m := newMemory()

	var committed []*billing.Record
	for _, id := range []billing.RecordID{"a", "b", "c"} {
		c, err := m.Put(ctx, newRecord(t, id, 100))
		require.NoError(t, err)
		committed = append(committed, c)
	}

	// Touch "a", delete "b"
	_, err := m.Put(ctx, committed[0])
	require.NoError(t, err)
	gone := committed[1].Clone()
	gone.SoftDelete()
	_, err = m.Put(ctx, gone)
	require.NoError(t, err)

	list, err := m.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, billing.RecordID("a"), list[0].ID)
	assert.Equal(t, billing.RecordID("c"), list[1].ID)
}

func TestMemory_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	_, err := m.Put(ctx, newRecord(t, "r1", 1000))
	require.NoError(t, err)

	got, err := m.Get(ctx, "r1")
	require.NoError(t, err)
	got.CustomerName = "mutated"

	again, err := m.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Anita", again.CustomerName)
}

func TestSortByRecency_TieBreaks(t *testing.T) {
	mk := func(id billing.RecordID, created, updated time.Time) *billing.Record {
		return billing.Restore(id, fields(1), billing.NewPaymentLedger(), true, false, 1, created, updated)
	}
	records := []*billing.Record{
		mk("z", base, base),
		mk("old", base, base.Add(time.Hour)),
		mk("newer", base.Add(time.Minute), base.Add(time.Hour)),
		mk("a", base, base),
	}

	store.SortByRecency(records)

	var got []billing.RecordID
	for _, r := range records {
		got = append(got, r.ID)
	}
	assert.Equal(t, []billing.RecordID{"newer", "old", "a", "z"}, got)
}

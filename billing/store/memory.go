// Package store provides RecordStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/job-ledger/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[billing.RecordID]*billing.Record

	// Now stamps CreatedAt/UpdatedAt. Tests replace it for deterministic ordering.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[billing.RecordID]*billing.Record),
		Now:     time.Now,
	}
}

// Get returns a copy of the stored record, or nil if absent.
func (m *Memory) Get(_ context.Context, id billing.RecordID) (*billing.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

// Put inserts or compare-and-swaps on Version.
func (m *Memory) Put(_ context.Context, r *billing.Record) (*billing.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now().UTC()
	next := r.Clone()

	existing, ok := m.records[r.ID]
	switch {
	case r.Version == 0:
		if ok {
			return nil, billing.ErrConcurrentModification
		}
		next.CreatedAt = now
	case !ok:
		return nil, &billing.NotFoundError{ID: r.ID}
	case existing.Version != r.Version:
		return nil, billing.ErrConcurrentModification
	default:
		if err := billing.CheckAppendOnly(existing.Ledger(), r.Ledger()); err != nil {
			return nil, err
		}
		next.CreatedAt = existing.CreatedAt
	}

	next.Version = r.Version + 1
	next.UpdatedAt = now
	m.records[r.ID] = next
	return next.Clone(), nil
}

// ListActive returns visible records, newest update first.
func (m *Memory) ListActive(_ context.Context) ([]*billing.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*billing.Record, 0, len(m.records))
	for _, r := range m.records {
		if r.Visible() {
			result = append(result, r.Clone())
		}
	}
	SortByRecency(result)
	return result, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// SortByRecency orders records by UpdatedAt desc, then CreatedAt desc, then
// ID so the order is total.
func SortByRecency(records []*billing.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

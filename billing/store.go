/*
store.go - Persistence contract for records

PURPOSE:
  Defines the interface between the billing engine and the database.
  The engine never talks to a driver directly; it loads a Record, mutates
  it, and hands it back through this contract.

KEY INTERFACE:
  RecordStore: Get, Put (with optimistic version check), ListActive, Close

OPTIMISTIC LOCKING:
  Every Record carries a Version. Put with Version 0 inserts. Put with
  Version N succeeds only if the stored version is still N; the store then
  writes N+1 and refreshes UpdatedAt. A mismatch returns
  ErrConcurrentModification and nothing is written.

APPEND-ONLY PAYMENTS:
  A Put whose ledger is shorter than the stored ledger, or whose entries
  differ from the stored prefix, is rejected with ErrLedgerRewrite.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via database/sql
  - billing/store/memory.go: In-memory for testing

SEE ALSO:
  - service.go: The only caller of Put
*/
package billing

import "context"

// RecordStore persists records.
type RecordStore interface {
	// Get returns the record with id, deleted or not. Returns (nil, nil)
	// when no such record exists.
	Get(ctx context.Context, id RecordID) (*Record, error)

	// Put inserts (Version 0) or compare-and-swaps (Version N) a record and
	// returns the committed copy with refreshed Version and timestamps.
	Put(ctx context.Context, r *Record) (*Record, error)

	// ListActive returns records with Active && !Deleted, most recently
	// updated first, ties broken by most recently created.
	ListActive(ctx context.Context) ([]*Record, error)

	// Close releases the store's resources.
	Close() error
}

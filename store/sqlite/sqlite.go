/*
Package sqlite provides a SQLite-backed implementation of billing.RecordStore.

PURPOSE:
  Persists records and their payment ledgers using SQLite. The same schema
  works on PostgreSQL with minor dialect changes.

KEY TABLES:
  records:  One row per job. Holds billing fields, lifecycle flags, the
            optimistic-lock version and the created/updated timestamps.
  payments: Append-only ledger lines, ordered by (record_id, seq).

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on payments
  - Put inserts only ledger entries beyond the stored count, after checking
    the stored prefix is unchanged (billing.CheckAppendOnly)

OPTIMISTIC LOCKING:
  Put with Version N runs
    UPDATE records SET ..., version = N+1 WHERE id = ? AND version = N
  inside a transaction together with the payment inserts. Zero rows
  affected means another writer won: the transaction rolls back and
  billing.ErrConcurrentModification is returned.

TIMESTAMPS:
  Stored as fixed-width UTC text (timeLayout) so ORDER BY on the column
  matches chronological order. Currency values are stored as decimal text.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process. The version
  column protects against other processes sharing the file.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/records.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := billing.NewService(store)

SEE ALSO:
  - billing/store.go: Interface definition
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/job-ledger/billing"
)

// timeLayout is fixed width so text comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements billing.RecordStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Now stamps CreatedAt/UpdatedAt. Tests replace it for deterministic ordering.
	Now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, Now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL,
		customer_phone TEXT NOT NULL,
		customer_address TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		hours INTEGER NOT NULL,
		minutes INTEGER NOT NULL,
		per_hour_rate TEXT NOT NULL,
		labour_count INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		job_date TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Listing hot path: visible records, newest update first
	CREATE INDEX IF NOT EXISTS idx_records_visible_updated
		ON records(active, deleted, updated_at DESC, created_at DESC);

	-- Payments (append-only ledger)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES records(id),
		seq INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		mode TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(record_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_record
		ON payments(record_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (billing.RecordStore interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const recordColumns = `
	id, customer_name, customer_phone, customer_address, note,
	hours, minutes, per_hour_rate, labour_count, total_amount, job_date,
	active, deleted, version, created_at, updated_at`

// Get returns a record with its ledger, or nil if absent.
func (s *Store) Get(ctx context.Context, id billing.RecordID) (*billing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.get(ctx, s.db, id)
}

func (s *Store) get(ctx context.Context, q querier, id billing.RecordID) (*billing.Record, error) {
	row := q.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payments, err := s.queryPayments(ctx, q,
		"SELECT record_id, id, amount, paid_at, mode FROM payments WHERE record_id = ? ORDER BY seq ASC", id)
	if err != nil {
		return nil, err
	}
	return rec.build(payments[id]), nil
}

// Put inserts (Version 0) or compare-and-swaps a record and appends any new
// payments, all in one transaction.
func (s *Store) Put(ctx context.Context, r *billing.Record) (*billing.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := s.Now().UTC()
	nowText := now.Format(timeLayout)
	createdAt := now
	storedLen := 0

	if r.Version == 0 {
		if err := insertRecord(ctx, sqlTx, r, nowText); err != nil {
			if isUniqueConstraintError(err) {
				return nil, billing.ErrConcurrentModification
			}
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
	} else {
		existing, err := s.get(ctx, sqlTx, r.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, &billing.NotFoundError{ID: r.ID}
		}
		if existing.Version != r.Version {
			return nil, billing.ErrConcurrentModification
		}
		if err := billing.CheckAppendOnly(existing.Ledger(), r.Ledger()); err != nil {
			return nil, err
		}
		createdAt = existing.CreatedAt
		storedLen = existing.Ledger().Len()

		res, err := updateRecord(ctx, sqlTx, r, nowText)
		if err != nil {
			return nil, fmt.Errorf("failed to update record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check record update: %w", err)
		}
		if n == 0 {
			return nil, billing.ErrConcurrentModification
		}
	}

	entries := r.Ledger().Entries()
	for i := storedLen; i < len(entries); i++ {
		if err := insertPayment(ctx, sqlTx, r.ID, i, entries[i], nowText); err != nil {
			if isUniqueConstraintError(err) {
				return nil, billing.ErrConcurrentModification
			}
			return nil, fmt.Errorf("failed to append payment: %w", err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit record: %w", err)
	}

	committed := r.Clone()
	committed.Version = r.Version + 1
	committed.CreatedAt = createdAt
	committed.UpdatedAt = now
	return committed, nil
}

// ListActive returns visible records, newest update first.
func (s *Store) ListActive(ctx context.Context) ([]*billing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+` FROM records
		WHERE active = TRUE AND deleted = FALSE
		ORDER BY updated_at DESC, created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var scanned []recordRow
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		scanned = append(scanned, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	payments, err := s.queryPayments(ctx, s.db, `
		SELECT p.record_id, p.id, p.amount, p.paid_at, p.mode
		FROM payments p JOIN records r ON r.id = p.record_id
		WHERE r.active = TRUE AND r.deleted = FALSE
		ORDER BY p.record_id, p.seq ASC`)
	if err != nil {
		return nil, err
	}

	records := make([]*billing.Record, len(scanned))
	for i, rec := range scanned {
		records[i] = rec.build(payments[billing.RecordID(rec.id)])
	}
	return records, nil
}

// =============================================================================
// ROW MAPPING
// =============================================================================

func insertRecord(ctx context.Context, db execer, r *billing.Record, now string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		r.ID, r.CustomerName, r.CustomerPhone, r.CustomerAddress, r.Note,
		r.Hours, r.Minutes, r.PerHourRate.String(), r.LabourCount, r.TotalAmount.String(),
		r.Date.UTC().Format(timeLayout),
		r.Active, r.Deleted, now, now,
	)
	return err
}

func updateRecord(ctx context.Context, db execer, r *billing.Record, now string) (sql.Result, error) {
	return db.ExecContext(ctx, `
		UPDATE records SET
			customer_name = ?, customer_phone = ?, customer_address = ?, note = ?,
			hours = ?, minutes = ?, per_hour_rate = ?, labour_count = ?, total_amount = ?,
			job_date = ?, active = ?, deleted = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		r.CustomerName, r.CustomerPhone, r.CustomerAddress, r.Note,
		r.Hours, r.Minutes, r.PerHourRate.String(), r.LabourCount, r.TotalAmount.String(),
		r.Date.UTC().Format(timeLayout), r.Active, r.Deleted,
		now, r.ID, r.Version,
	)
}

func insertPayment(ctx context.Context, db execer, id billing.RecordID, seq int, e billing.PaymentEntry, now string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (id, record_id, seq, amount, paid_at, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, id, seq, e.Amount.String(), e.Date.UTC().Format(timeLayout), e.Mode, now,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

type recordRow struct {
	id        string
	fields    billing.Fields
	active    bool
	deleted   bool
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

func (rr recordRow) build(entries []billing.PaymentEntry) *billing.Record {
	return billing.Restore(billing.RecordID(rr.id), rr.fields,
		billing.NewPaymentLedger(entries...),
		rr.active, rr.deleted, rr.version, rr.createdAt, rr.updatedAt)
}

func scanRecord(row scanner) (recordRow, error) {
	var (
		rr                   recordRow
		perHourRate, total   string
		jobDate              string
		createdAt, updatedAt string
	)

	err := row.Scan(
		&rr.id, &rr.fields.CustomerName, &rr.fields.CustomerPhone, &rr.fields.CustomerAddress, &rr.fields.Note,
		&rr.fields.Hours, &rr.fields.Minutes, &perHourRate, &rr.fields.LabourCount, &total, &jobDate,
		&rr.active, &rr.deleted, &rr.version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rr, err
	}
	if err != nil {
		return rr, fmt.Errorf("failed to scan record: %w", err)
	}

	if rr.fields.PerHourRate, err = decimal.NewFromString(perHourRate); err != nil {
		return rr, fmt.Errorf("record %s: per_hour_rate: %w", rr.id, err)
	}
	if rr.fields.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return rr, fmt.Errorf("record %s: total_amount: %w", rr.id, err)
	}
	if rr.fields.Date, err = time.Parse(timeLayout, jobDate); err != nil {
		return rr, fmt.Errorf("record %s: job_date: %w", rr.id, err)
	}
	if rr.createdAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return rr, fmt.Errorf("record %s: created_at: %w", rr.id, err)
	}
	if rr.updatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return rr, fmt.Errorf("record %s: updated_at: %w", rr.id, err)
	}
	return rr, nil
}

// queryPayments groups payment rows by record in the order returned.
func (s *Store) queryPayments(ctx context.Context, q querier, query string, args ...any) (map[billing.RecordID][]billing.PaymentEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	result := make(map[billing.RecordID][]billing.PaymentEntry)
	for rows.Next() {
		var (
			recordID billing.RecordID
			e        billing.PaymentEntry
			amount   string
			paidAt   string
		)
		if err := rows.Scan(&recordID, &e.ID, &amount, &paidAt, &e.Mode); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %s: amount: %w", e.ID, err)
		}
		if e.Date, err = time.Parse(timeLayout, paidAt); err != nil {
			return nil, fmt.Errorf("payment %s: paid_at: %w", e.ID, err)
		}
		result[recordID] = append(result[recordID], e)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

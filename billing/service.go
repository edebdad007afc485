/*
service.go - Use-case orchestration

PURPOSE:
  The Service is what the transport layer calls. Each mutating use-case is
  one bounded sequence:

    lock(id) -> Get -> mutate aggregate -> Put (version CAS) -> unlock

CONCURRENCY:
  Two layers keep the overpayment check honest:
  1. A per-record mutex serializes mutations inside this process, so two
     add-payment calls cannot both validate against the same stale total.
  2. The store's version compare-and-swap catches writers outside this
     process. On ErrConcurrentModification the whole sequence is re-run
     from a fresh Get, up to MaxRetries extra attempts.
  Records are independent; there is no cross-record locking. ListActive
  takes no lock and may observe a slightly stale snapshot.

ERRORS:
  Every method returns a committed *Record or one of the typed errors in
  errors.go. A failed mutation never leaves partial state: the aggregate is
  mutated on a clone and only the store's atomic Put commits it.

SEE ALSO:
  - record.go: The aggregate rules
  - store.go: The persistence contract
*/
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxRetries is how many times a conflicting commit is re-run.
const DefaultMaxRetries = 3

// Service runs the record use-cases against a RecordStore.
type Service struct {
	store      RecordStore
	locks      *recordLocks
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
	newID      func() string
	onRetry    func()
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxRetries sets how many times a conflicting commit is retried.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithClock overrides the mutation clock used for default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides record and payment ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithRetryHook is called each time a conflicting commit is retried.
func WithRetryHook(fn func()) Option {
	return func(s *Service) { s.onRetry = fn }
}

// NewService wires a Service to store.
func NewService(store RecordStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		locks:      newRecordLocks(),
		logger:     zap.NewNop(),
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// QUERIES
// =============================================================================

// ListActive returns visible records, most recently updated first.
func (s *Service) ListActive(ctx context.Context) ([]*Record, error) {
	records, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	return records, nil
}

// GetRecord returns a record by ID, including soft-deleted ones, for audit.
func (s *Service) GetRecord(ctx context.Context, id RecordID) (*Record, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr("get", err)
	}
	if r == nil {
		return nil, &NotFoundError{ID: id}
	}
	return r, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

// CreateRecord builds a new record with an optional initial payment and
// persists it.
func (s *Service) CreateRecord(ctx context.Context, fields Fields, initial *PaymentInput) (*Record, error) {
	id := RecordID(s.newID())
	r, err := NewRecord(id, fields, initial, PaymentID(s.newID()), s.now())
	if err != nil {
		return nil, err
	}

	committed, err := s.store.Put(ctx, r)
	if err != nil {
		return nil, storeErr("create", err)
	}

	s.logger.Debug("record created",
		zap.String("record_id", string(id)),
		zap.String("total_amount", committed.TotalAmount.String()),
		zap.String("total_paid", committed.TotalPaid().String()),
	)
	return committed, nil
}

// UpdateRecord overwrites the billing fields of a live record, optionally
// appending one payment.
func (s *Service) UpdateRecord(ctx context.Context, id RecordID, fields Fields, payment *PaymentInput) (*Record, error) {
	return s.commit(ctx, "update", id, false, func(r *Record) error {
		return r.ApplyFieldUpdate(fields, payment, PaymentID(s.newID()), s.now())
	})
}

// AddPayment appends one payment to a live record.
func (s *Service) AddPayment(ctx context.Context, id RecordID, payment PaymentInput) (*Record, error) {
	return s.commit(ctx, "add_payment", id, false, func(r *Record) error {
		return r.AddPayment(payment, PaymentID(s.newID()), s.now())
	})
}

// DeleteRecord soft-deletes a record. Deleting an already deleted record
// succeeds and only bumps its timestamp.
func (s *Service) DeleteRecord(ctx context.Context, id RecordID) (*Record, error) {
	return s.commit(ctx, "delete", id, true, func(r *Record) error {
		r.SoftDelete()
		return nil
	})
}

// commit runs load -> fn -> Put under the record lock, retrying on version
// conflicts. allowDeleted lets soft-delete operate on deleted records.
func (s *Service) commit(ctx context.Context, op string, id RecordID, allowDeleted bool, fn func(*Record) error) (*Record, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if s.onRetry != nil {
				s.onRetry()
			}
			s.logger.Warn("retrying record commit after conflict",
				zap.String("op", op),
				zap.String("record_id", string(id)),
				zap.Int("attempt", attempt),
			)
		}

		current, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, storeErr(op, err)
		}
		if current == nil || (!current.Visible() && !allowDeleted) {
			return nil, &NotFoundError{ID: id}
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}

		committed, err := s.store.Put(ctx, next)
		if err == nil {
			s.logger.Debug("record committed",
				zap.String("op", op),
				zap.String("record_id", string(id)),
				zap.Int64("version", committed.Version),
				zap.String("payment_status", string(committed.PaymentStatus())),
			)
			return committed, nil
		}
		if !IsRetryable(err) {
			return nil, storeErr(op, err)
		}
		lastErr = err
	}
	return nil, lastErr
}

// storeErr wraps driver failures as StoreError, passing typed errors through.
func storeErr(op string, err error) error {
	if errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrLedgerRewrite) ||
		IsNotFound(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

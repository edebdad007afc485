/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure a use-case can produce is one of these, so the transport
  layer can map it to a status code and a message without string matching.

ERROR CATEGORIES:
  1. Validation errors - Missing or malformed input fields
  2. Not found errors - Identifier does not resolve to a live record
  3. Overpayment errors - Payment would push paid above the billed total
  4. Concurrency errors - Optimistic version check failed at commit
  5. Store errors - The persistence layer failed

USAGE:
  Structured errors unwrap to their sentinel, so callers can use either:

    if errors.Is(err, billing.ErrOverpayment) { ... }

    var over *billing.OverpaymentError
    if errors.As(err, &over) {
        fmt.Println("remaining:", over.Remaining)
    }

SEE ALSO:
  - record.go: Produces validation and overpayment errors
  - service.go: Produces not-found errors and retries concurrency errors
*/
package billing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input fields are missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrRecordNotFound is returned when an identifier does not resolve to an
	// active, non-deleted record.
	ErrRecordNotFound = errors.New("record not found")

	// ErrOverpayment is returned when a payment would violate the ledger
	// invariant totalPaid <= totalAmount.
	ErrOverpayment = errors.New("payment exceeds total amount")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStoreUnavailable is returned when the record store fails.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrLedgerRewrite is returned by stores asked to persist a ledger that
	// drops or reorders already committed payments.
	ErrLedgerRewrite = errors.New("ledger is append-only")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError maps field names to what is wrong with them.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError starts an empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a problem with field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// OrNil returns nil when no field problems were recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError names the identifier that did not resolve.
type NotFoundError struct {
	ID RecordID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrRecordNotFound
}

// OverpaymentReason tells which rule rejected a payment.
type OverpaymentReason string

const (
	// OverpaymentFullyPaid: the record is already paid in full.
	OverpaymentFullyPaid OverpaymentReason = "fully_paid"
	// OverpaymentExceedsRemaining: the payment is larger than what is left.
	OverpaymentExceedsRemaining OverpaymentReason = "exceeds_remaining"
)

// OverpaymentError provides details about a rejected payment.
// Remaining is what the caller may still pay (never negative).
type OverpaymentError struct {
	RecordID    RecordID
	Reason      OverpaymentReason
	TotalAmount decimal.Decimal
	TotalPaid   decimal.Decimal
	Requested   decimal.Decimal
	Remaining   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	if e.Reason == OverpaymentFullyPaid {
		return fmt.Sprintf("record already fully paid: paid %s of %s",
			e.TotalPaid, e.TotalAmount)
	}
	return fmt.Sprintf("payment exceeds remaining balance: requested %s, remaining %s",
		e.Requested, e.Remaining)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrOverpayment)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

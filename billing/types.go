/*
Package billing provides the payment ledger and consistency engine for
service-job records.

PURPOSE:
  A Record is a billable service job: customer contact details, the labour
  and time that went into the job, the amount billed, and a ledger of the
  partial payments received against that amount. This package owns the
  rules that keep those pieces consistent.

KEY CONCEPTS IN THIS FILE (types.go):
  - RecordID / PaymentID: Type-safe identifiers
  - PaymentMode: How a payment was received (cash, online)
  - PaymentStatus: Derived state, never stored or set by callers
  - PaymentEntry: One immutable ledger line
  - Fields: The billing fields a caller supplies on create/update

DESIGN PRINCIPLES:
  1. Append-only: Payments are never edited or removed
  2. Precision: Uses decimal.Decimal for all currency values
  3. Derived status: PaymentStatus is computed from the ledger every time
  4. Non-exceedance: Sum of payments never exceeds the billed total

SEE ALSO:
  - ledger.go: PaymentLedger container
  - record.go: Record aggregate and its mutations
  - service.go: Use-case orchestration with load/validate/persist
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string
type PaymentID string

// =============================================================================
// PAYMENT MODE
// =============================================================================

type PaymentMode string

const (
	PaymentModeCash   PaymentMode = "cash"
	PaymentModeOnline PaymentMode = "online"
)

// Valid reports whether m is a known payment mode.
func (m PaymentMode) Valid() bool {
	return m == PaymentModeCash || m == PaymentModeOnline
}

// OrDefault returns cash for an empty mode.
func (m PaymentMode) OrDefault() PaymentMode {
	if m == "" {
		return PaymentModeCash
	}
	return m
}

// =============================================================================
// PAYMENT STATUS - Derived, see Record.PaymentStatus
// =============================================================================

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// DerivePaymentStatus is the only place a status is produced.
// Paid iff totalPaid >= totalAmount and totalAmount > 0.
func DerivePaymentStatus(totalPaid, totalAmount decimal.Decimal) PaymentStatus {
	if totalAmount.IsPositive() && totalPaid.GreaterThanOrEqual(totalAmount) {
		return PaymentStatusPaid
	}
	return PaymentStatusPending
}

// =============================================================================
// PAYMENT ENTRY - Immutable ledger line
// =============================================================================

type PaymentEntry struct {
	ID     PaymentID
	Amount decimal.Decimal
	Date   time.Time
	Mode   PaymentMode
}

// PaymentInput is a payment as requested by a caller, before defaults apply.
// A nil Date means "now"; an empty Mode means cash.
type PaymentInput struct {
	Amount decimal.Decimal
	Mode   PaymentMode
	Date   *time.Time
}

// =============================================================================
// FIELDS - Caller-supplied billing fields
// =============================================================================

// Fields holds every billing field of a record. Updates overwrite all of
// them; a zero Date keeps the record's existing job date.
type Fields struct {
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Note            string
	Hours           int
	Minutes         int
	PerHourRate     decimal.Decimal
	LabourCount     int
	TotalAmount     decimal.Decimal
	Date            time.Time
}

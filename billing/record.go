/*
record.go - The Record aggregate

PURPOSE:
  A Record combines billing fields, the payment ledger and lifecycle flags.
  Every mutation goes through a method here, and every method leaves the
  aggregate satisfying its invariants or returns an error and leaves it
  untouched.

INVARIANTS (hold after every successful mutation):
  1. Ledger().TotalPaid() <= TotalAmount
  2. PaymentStatus() is computed from the ledger and TotalAmount only
  3. Deleted records are not mutated by update or add-payment
  4. Ledger entries are only ever appended

PAYMENT RULE (ValidatePayment):
  1. paid >= total            -> reject, already fully paid
  2. paid + incoming > total  -> reject, report total - paid as remaining
  3. otherwise                -> accept

  A payment exactly equal to the remaining balance is accepted and flips the
  record to paid.

TIMESTAMPS:
  CreatedAt and UpdatedAt are owned by the RecordStore. Version is the
  optimistic-lock counter, also owned by the store (0 = never persisted).

SEE ALSO:
  - ledger.go: The payment container
  - service.go: Loads, mutates and persists records under a per-record lock
*/
package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a billable service job.
type Record struct {
	ID RecordID
	Fields

	ledger PaymentLedger

	Active  bool
	Deleted bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// NewRecord creates an active record from validated fields and an optional
// initial payment. A nil payment or a zero amount creates an empty ledger.
// paymentID names the initial payment; it is unused when none is appended.
func NewRecord(id RecordID, fields Fields, initial *PaymentInput, paymentID PaymentID, now time.Time) (*Record, error) {
	fields = normalizeFields(fields)
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}

	r := &Record{
		ID:     id,
		Fields: fields,
		Active: true,
	}
	r.Date = NormalizeDate(fields.Date, now)

	if initial != nil && !initial.Amount.IsZero() {
		entry, err := r.preparePayment(*initial, paymentID, now)
		if err != nil {
			return nil, err
		}
		r.ledger.Append(entry)
	}
	return r, nil
}

// Restore rebuilds a record from storage. Stores call this; nothing else should.
func Restore(id RecordID, fields Fields, ledger PaymentLedger, active, deleted bool, version int64, createdAt, updatedAt time.Time) *Record {
	return &Record{
		ID:        id,
		Fields:    fields,
		ledger:    ledger,
		Active:    active,
		Deleted:   deleted,
		Version:   version,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// =============================================================================
// DERIVED STATE
// =============================================================================

// Ledger returns the record's payments. The returned value is a copy.
func (r *Record) Ledger() PaymentLedger { return r.ledger.clone() }

// TotalPaid is the sum of all ledger entries.
func (r *Record) TotalPaid() decimal.Decimal { return r.ledger.TotalPaid() }

// Remaining is what may still be paid, never negative.
func (r *Record) Remaining() decimal.Decimal {
	rem := r.TotalAmount.Sub(r.TotalPaid())
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// PaymentStatus is derived on every call.
func (r *Record) PaymentStatus() PaymentStatus {
	return DerivePaymentStatus(r.TotalPaid(), r.TotalAmount)
}

// Visible reports whether the record belongs in listings.
func (r *Record) Visible() bool { return r.Active && !r.Deleted }

// Clone returns a deep copy, safe to mutate without touching r.
func (r *Record) Clone() *Record {
	c := *r
	c.ledger = r.ledger.clone()
	return &c
}

// =============================================================================
// MUTATIONS
// =============================================================================

// ApplyFieldUpdate overwrites every billing field and, when payment carries a
// non-zero amount, appends it after ValidatePayment accepts it against the
// new total. A zero fields.Date keeps the current job date.
//
// The new TotalAmount may not drop below what has already been paid.
func (r *Record) ApplyFieldUpdate(fields Fields, payment *PaymentInput, paymentID PaymentID, now time.Time) error {
	if r.Deleted {
		return &NotFoundError{ID: r.ID}
	}

	fields = normalizeFields(fields)
	if err := ValidateFields(fields); err != nil {
		return err
	}

	paid := r.TotalPaid()
	if fields.TotalAmount.LessThan(paid) {
		verr := NewValidationError()
		verr.Add("totalAmount", "must not be less than the amount already paid ("+paid.String()+")")
		return verr
	}

	if fields.Date.IsZero() {
		fields.Date = r.Date
	} else {
		fields.Date = fields.Date.UTC()
	}

	next := r.Clone()
	next.Fields = fields
	if payment != nil && !payment.Amount.IsZero() {
		entry, err := next.preparePayment(*payment, paymentID, now)
		if err != nil {
			return err
		}
		next.ledger.Append(entry)
	}

	*r = *next
	return nil
}

// AddPayment validates and appends one payment. Unlike ApplyFieldUpdate a
// zero amount is not skipped: it is validated and then rejected.
func (r *Record) AddPayment(payment PaymentInput, paymentID PaymentID, now time.Time) error {
	if r.Deleted {
		return &NotFoundError{ID: r.ID}
	}
	entry, err := r.preparePayment(payment, paymentID, now)
	if err != nil {
		return err
	}
	r.ledger.Append(entry)
	return nil
}

// SoftDelete marks the record inactive and deleted. Repeating it is a no-op.
func (r *Record) SoftDelete() {
	r.Active = false
	r.Deleted = true
}

// preparePayment rejects out-of-range amounts, then runs the overpayment
// rule, then entry-level checks.
func (r *Record) preparePayment(p PaymentInput, id PaymentID, now time.Time) (PaymentEntry, error) {
	if !AmountInRange(p.Amount) {
		verr := NewValidationError()
		verr.Add("amount", outOfRange)
		return PaymentEntry{}, verr
	}
	amount := RoundCurrency(p.Amount)
	if err := ValidatePayment(r.TotalPaid(), r.TotalAmount, amount); err != nil {
		if over, ok := err.(*OverpaymentError); ok {
			over.RecordID = r.ID
		}
		return PaymentEntry{}, err
	}

	verr := NewValidationError()
	if !amount.IsPositive() {
		verr.Add("amount", "must be greater than zero")
	}
	mode := p.Mode.OrDefault()
	if !mode.Valid() {
		verr.Add("paymentmode", "must be one of: cash online")
	}
	if err := verr.OrNil(); err != nil {
		return PaymentEntry{}, err
	}

	return PaymentEntry{
		ID:     id,
		Amount: amount,
		Date:   NormalizeDatePtr(p.Date, now),
		Mode:   mode,
	}, nil
}

// =============================================================================
// RULES
// =============================================================================

// ValidatePayment is the overpayment rule shared by update and add-payment.
func ValidatePayment(currentTotalPaid, totalAmount, incoming decimal.Decimal) error {
	if currentTotalPaid.GreaterThanOrEqual(totalAmount) {
		return &OverpaymentError{
			Reason:      OverpaymentFullyPaid,
			TotalAmount: totalAmount,
			TotalPaid:   currentTotalPaid,
			Requested:   incoming,
			Remaining:   decimal.Zero,
		}
	}
	if currentTotalPaid.Add(incoming).GreaterThan(totalAmount) {
		return &OverpaymentError{
			Reason:      OverpaymentExceedsRemaining,
			TotalAmount: totalAmount,
			TotalPaid:   currentTotalPaid,
			Requested:   incoming,
			Remaining:   totalAmount.Sub(currentTotalPaid),
		}
	}
	return nil
}

const outOfRange = "is out of range"

// ValidateFields checks required and range constraints on billing fields.
func ValidateFields(f Fields) error {
	verr := NewValidationError()

	if f.CustomerName == "" {
		verr.Add("customerName", "is required")
	}
	if f.CustomerPhone == "" {
		verr.Add("customerPhone", "is required")
	}
	if f.CustomerAddress == "" {
		verr.Add("customerAddress", "is required")
	}
	if f.Hours < 0 {
		verr.Add("hours", "must not be negative")
	}
	if f.Minutes < 0 {
		verr.Add("minutes", "must not be negative")
	}
	if f.LabourCount < 0 {
		verr.Add("labourCount", "must not be negative")
	}
	if !AmountInRange(f.PerHourRate) {
		verr.Add("perHourRate", outOfRange)
	} else if f.PerHourRate.IsNegative() {
		verr.Add("perHourRate", "must not be negative")
	}
	if !AmountInRange(f.TotalAmount) {
		verr.Add("totalAmount", outOfRange)
	} else if f.TotalAmount.IsNegative() {
		verr.Add("totalAmount", "must not be negative")
	}

	return verr.OrNil()
}

func normalizeFields(f Fields) Fields {
	f.CustomerName = strings.TrimSpace(f.CustomerName)
	f.CustomerPhone = strings.TrimSpace(f.CustomerPhone)
	f.CustomerAddress = strings.TrimSpace(f.CustomerAddress)
	f.Note = strings.TrimSpace(f.Note)
	f.PerHourRate = roundInRange(f.PerHourRate)
	f.TotalAmount = roundInRange(f.TotalAmount)
	return f
}

// roundInRange leaves out-of-range amounts untouched for ValidateFields to
// reject.
func roundInRange(d decimal.Decimal) decimal.Decimal {
	if !AmountInRange(d) {
		return d
	}
	return RoundCurrency(d)
}

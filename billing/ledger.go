/*
ledger.go - Append-only payment ledger

PURPOSE:
  The PaymentLedger is the ordered list of payments received against one
  record. The amount paid so far is always computed from the entries, so
  there is no separate "paid" counter that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Insertion order is preserved.
  2. DUMB CONTAINER: The ledger does not validate. Overpayment checks live
     on the Record (see ValidatePayment) because they need the billed total.

PERSISTENCE:
  Stores rebuild a ledger with NewPaymentLedger(entries...). The SQLite
  store refuses to persist a ledger shorter than the one already stored.

SEE ALSO:
  - record.go: Record.AddPayment, ValidatePayment
*/
package billing

import "github.com/shopspring/decimal"

// PaymentLedger is the source of truth for what has been paid on a record.
type PaymentLedger struct {
	entries []PaymentEntry
}

// NewPaymentLedger builds a ledger from entries in their stored order.
func NewPaymentLedger(entries ...PaymentEntry) PaymentLedger {
	l := PaymentLedger{}
	if len(entries) > 0 {
		l.entries = make([]PaymentEntry, len(entries))
		copy(l.entries, entries)
	}
	return l
}

// Append adds an entry at the end. This is the ONLY write operation.
func (l *PaymentLedger) Append(e PaymentEntry) {
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the entries in insertion order.
func (l PaymentLedger) Entries() []PaymentEntry {
	out := make([]PaymentEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l PaymentLedger) Len() int { return len(l.entries) }

// TotalPaid sums every entry amount.
func (l PaymentLedger) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.entries {
		total = total.Add(e.Amount)
	}
	return total
}

func (l PaymentLedger) clone() PaymentLedger {
	return NewPaymentLedger(l.entries...)
}

// CheckAppendOnly verifies next only adds entries after stored's. Stores
// call it before committing a ledger.
func CheckAppendOnly(stored, next PaymentLedger) error {
	if next.Len() < stored.Len() {
		return ErrLedgerRewrite
	}
	for i, e := range stored.entries {
		n := next.entries[i]
		if n.ID != e.ID || !n.Amount.Equal(e.Amount) || n.Mode != e.Mode || !n.Date.Equal(e.Date) {
			return ErrLedgerRewrite
		}
	}
	return nil
}

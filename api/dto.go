/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing aggregate from the wire contract, which keeps the field names
  the existing front-end already sends (camelCase, "paymentmode",
  "totalPayments").

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Records:
    RecordRequest (create + update), RecordDTO, PaymentDTO

  Payments:
    AddPaymentRequest

  Envelope:
    Envelope, Message (bilingual)

VALIDATION:
  Presence and enum checks are struct tags checked by go-playground/validator
  (see validate.go). Numeric fields are pointers so that "missing" and "0"
  are different things. Range rules on decimals live in the billing package.

AMOUNTS:
  Amount marshals as a bare JSON number. Inputs accept numbers or numeric
  strings (decimal.Decimal's UnmarshalJSON).

SEE ALSO:
  - handlers.go: Uses these types
  - messages.go: Envelope construction
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/job-ledger/billing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RecordRequest is the body of create and update. Update requires every
// billing field, same as create.
type RecordRequest struct {
	CustomerName    string           `json:"customerName"    validate:"required"`
	CustomerPhone   string           `json:"customerPhone"   validate:"required"`
	CustomerAddress string           `json:"customerAddress" validate:"required"`
	Note            string           `json:"note"`
	Hours           *int             `json:"hours"           validate:"required,gte=0"`
	Minutes         *int             `json:"minutes"         validate:"required,gte=0"`
	PerHourRate     *decimal.Decimal `json:"perHourRate"     validate:"required"`
	TotalAmount     *decimal.Decimal `json:"totalAmount"     validate:"required"`
	LabourCount     *int             `json:"labourCount"     validate:"required,gte=0"`
	Date            string           `json:"date"`

	// Optional payment recorded alongside the fields.
	TotalPaid   *decimal.Decimal `json:"totalPaid"`
	PaymentMode string           `json:"paymentmode" validate:"omitempty,oneof=cash online"`
}

// AddPaymentRequest is the body of POST /api/records/{id}/payments.
type AddPaymentRequest struct {
	Amount      *decimal.Decimal `json:"amount"      validate:"required"`
	PaymentMode string           `json:"paymentmode" validate:"omitempty,oneof=cash online"`
	Date        string           `json:"date"`
}

// fields converts a validated request. date is the parsed Date (nil if absent).
func (r RecordRequest) fields(date *time.Time) billing.Fields {
	f := billing.Fields{
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		CustomerAddress: r.CustomerAddress,
		Note:            r.Note,
		Hours:           *r.Hours,
		Minutes:         *r.Minutes,
		PerHourRate:     *r.PerHourRate,
		LabourCount:     *r.LabourCount,
		TotalAmount:     *r.TotalAmount,
	}
	if date != nil {
		f.Date = *date
	}
	return f
}

// payment returns the optional payment, dated with the job date when given.
func (r RecordRequest) payment(date *time.Time) *billing.PaymentInput {
	if r.TotalPaid == nil {
		return nil
	}
	return &billing.PaymentInput{
		Amount: *r.TotalPaid,
		Mode:   billing.PaymentMode(r.PaymentMode),
		Date:   date,
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// Amount marshals a decimal as a JSON number.
type Amount decimal.Decimal

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).String()), nil
}

// PaymentDTO is one ledger entry.
type PaymentDTO struct {
	ID          string `json:"id"`
	Amount      Amount `json:"amount"`
	Date        string `json:"date"`
	PaymentMode string `json:"paymentmode"`
}

// RecordDTO represents a record in API responses. TotalPaid, RemainingAmount
// and PaymentStatus are derived from the ledger on every response.
type RecordDTO struct {
	ID              string       `json:"id"`
	CustomerName    string       `json:"customerName"`
	CustomerPhone   string       `json:"customerPhone"`
	CustomerAddress string       `json:"customerAddress"`
	Note            string       `json:"note"`
	Hours           int          `json:"hours"`
	Minutes         int          `json:"minutes"`
	PerHourRate     Amount       `json:"perHourRate"`
	LabourCount     int          `json:"labourCount"`
	TotalAmount     Amount       `json:"totalAmount"`
	TotalPaid       Amount       `json:"totalPaid"`
	RemainingAmount Amount       `json:"remainingAmount"`
	PaymentStatus   string       `json:"paymentStatus"`
	TotalPayments   []PaymentDTO `json:"totalPayments"`
	Date            string       `json:"date"`
	Active          bool         `json:"active"`
	Deleted         bool         `json:"deleted"`
	Version         int64        `json:"version"`
	CreatedAt       string       `json:"createdAt"`
	UpdatedAt       string       `json:"updatedAt"`
}

func toRecordDTO(r *billing.Record) RecordDTO {
	entries := r.Ledger().Entries()
	payments := make([]PaymentDTO, len(entries))
	for i, e := range entries {
		payments[i] = PaymentDTO{
			ID:          string(e.ID),
			Amount:      Amount(e.Amount),
			Date:        e.Date.Format(time.RFC3339),
			PaymentMode: string(e.Mode),
		}
	}

	return RecordDTO{
		ID:              string(r.ID),
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		CustomerAddress: r.CustomerAddress,
		Note:            r.Note,
		Hours:           r.Hours,
		Minutes:         r.Minutes,
		PerHourRate:     Amount(r.PerHourRate),
		LabourCount:     r.LabourCount,
		TotalAmount:     Amount(r.TotalAmount),
		TotalPaid:       Amount(r.TotalPaid()),
		RemainingAmount: Amount(r.Remaining()),
		PaymentStatus:   string(r.PaymentStatus()),
		TotalPayments:   payments,
		Date:            r.Date.Format(time.RFC3339),
		Active:          r.Active,
		Deleted:         r.Deleted,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func toRecordDTOs(records []*billing.Record) []RecordDTO {
	dtos := make([]RecordDTO, len(records))
	for i, r := range records {
		dtos[i] = toRecordDTO(r)
	}
	return dtos
}

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope wraps every response. Data is false on failure. Errors carries
// field-level detail for validation failures; RemainingAmount is set when a
// payment is refused as an overpayment.
type Envelope struct {
	Status          bool              `json:"status"`
	Message         any               `json:"message"`
	Data            any               `json:"data"`
	Errors          map[string]string `json:"errors,omitempty"`
	RemainingAmount *Amount           `json:"remainingAmount,omitempty"`
}

// Message is a bilingual message.
type Message struct {
	English string `json:"english"`
	Hindi   string `json:"hindi"`
}

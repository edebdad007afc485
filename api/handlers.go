/*
handlers.go - HTTP API handlers for job records

PURPOSE:
  Exposes the billing Service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every rule to the billing package.

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: Record use-cases (create, list, get, update, pay, delete)
  - Logger:  zap logger for failures the envelope does not explain
  - Store:   optional Pinger checked by /health

REQUEST FLOW:
  1. Parse and validate the body (validate.go)
  2. Call the Service
  3. Wrap the result in the response envelope
  4. Map typed errors to status codes (messages.go)

ERROR HANDLING:
  Errors are returned in the envelope with:
  - 400: Validation errors, overpayment (with remaining amount)
  - 404: Record not found (or soft-deleted, for mutations)
  - 409: Concurrent modification after retries were exhausted
  - 503: Record store unavailable
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/job-ledger/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by record stores that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *billing.Service
	Logger  *zap.Logger

	// Store, when set, is pinged by Health.
	Store Pinger
}

// NewHandler creates a new handler. A nil logger disables logging.
func NewHandler(svc *billing.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: svc, Logger: logger}
}

// =============================================================================
// LIVENESS
// =============================================================================

// Awake answers the front-end's wake-up ping.
func (h *Handler) Awake(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Server is awake!"))
}

// Health reports the process is serving and, when a Pinger is wired, that
// the record store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			h.Logger.Warn("health check: record store unreachable",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "store": "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// ListRecords returns visible records, most recently updated first.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.ListActive(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, msgRecordsFetched, toRecordDTOs(records))
}

// GetRecord returns one record, soft-deleted or not.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.GetRecord(r.Context(), recordID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, msgRecordFetched, toRecordDTO(rec))
}

// CreateRecord creates a record with an optional initial payment (totalPaid).
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payment := req.payment(date)
	rec, err := h.Service.CreateRecord(r.Context(), req.fields(date), payment)
	if payment != nil && !payment.Amount.IsZero() {
		countPayment(err)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, msgRecordCreated, toRecordDTO(rec))
}

// UpdateRecord overwrites all billing fields; a non-zero totalPaid is
// appended as a payment.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payment := req.payment(date)
	rec, err := h.Service.UpdateRecord(r.Context(), recordID(r), req.fields(date), payment)
	if payment != nil && !payment.Amount.IsZero() {
		countPayment(err)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, msgRecordUpdated, toRecordDTO(rec))
}

// AddPayment appends one payment.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	var req AddPaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		countPayment(err)
		h.writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		countPayment(err)
		h.writeError(w, r, err)
		return
	}

	rec, err := h.Service.AddPayment(r.Context(), recordID(r), billing.PaymentInput{
		Amount: *req.Amount,
		Mode:   billing.PaymentMode(req.PaymentMode),
		Date:   date,
	})
	countPayment(err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, msgPaymentAdded, toRecordDTO(rec))
}

// DeleteRecord soft-deletes a record.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.DeleteRecord(r.Context(), recordID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, msgRecordDeleted, toRecordDTO(rec))
}

// =============================================================================
// HELPERS
// =============================================================================

func recordID(r *http.Request) billing.RecordID {
	return billing.RecordID(chi.URLParam(r, "id"))
}

func countPayment(err error) {
	outcome := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrOverpayment):
		outcome = "overpayment"
	case errors.Is(err, billing.ErrValidation):
		outcome = "invalid"
	case billing.IsNotFound(err):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	paymentOutcomes.WithLabelValues(outcome).Inc()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeOK(w http.ResponseWriter, status int, message any, data any) {
	writeJSON(w, status, Envelope{Status: true, Message: message, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, env := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, env)
}

// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/limited-claim/internal/events"
	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
	"github.com/Shivanand-hulikatti/limited-claim/internal/service"
)

// ClaimHandler holds all HTTP handlers for the limited-claim API.
type ClaimHandler struct {
	svc      *service.ClaimService
	recorder *events.Recorder
	hub      *events.Hub
	log      *slog.Logger
}

// NewClaimHandler constructs a ClaimHandler.
func NewClaimHandler(svc *service.ClaimService, recorder *events.Recorder, hub *events.Hub, log *slog.Logger) *ClaimHandler {
	return &ClaimHandler{svc: svc, recorder: recorder, hub: hub, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

// maxBodyBytes bounds every request body, signed or decoded.
const maxBodyBytes = 1 << 20

// internalErrorBody is served when a response cannot be encoded.
var internalErrorBody = []byte(`{"error":"internal error","code":"internal"}` + "\n")

// writeJSON encodes v before touching w so an encoding failure still yields
// a well-formed 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		slog.Error("response encode failed", "status", status, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(internalErrorBody)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func writeError(w http.ResponseWriter, status int, code model.ErrorCode, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

// decodeJSON reads at most maxBodyBytes. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps a domain code to its HTTP status.
func statusFor(code model.ErrorCode) int {
	switch code {
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeAlreadyExists, model.CodeDuplicateClaim, model.CodeSoldOut,
		model.CodeNotStarted, model.CodeAtCapacity:
		return http.StatusConflict
	case model.CodeUnauthorized:
		return http.StatusForbidden
	case model.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError surfaces domain errors verbatim and hides everything else
// behind a generic 500.
func (h *ClaimHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.CodeOf(err)
	if code == model.CodeInternal {
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, code, "internal error")
		return
	}
	if code == model.CodeOverflow || code == model.CodeAtCapacity {
		h.log.WarnContext(r.Context(), "counter consistency check failed", "path", r.URL.Path, "code", code)
	}
	writeError(w, statusFor(code), code, err.Error())
}

func (h *ClaimHandler) principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, model.CodeUnauthorized, "authentication required")
	}
	return p, ok
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateCounter handles POST /counters
// Initializes the caller's counter with the given capacity and start time.
func (h *ClaimHandler) CreateCounter(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req model.CreateCounterRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	counter, err := h.svc.Initialize(r.Context(), admin, req.Capacity, time.Unix(req.StartTime, 0))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, counter)
}

// ListCounters handles GET /counters
func (h *ClaimHandler) ListCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.svc.ListCounters(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if counters == nil {
		counters = []model.Counter{}
	}
	writeJSON(w, http.StatusOK, counters)
}

// GetCounter handles GET /counters/{id}
func (h *ClaimHandler) GetCounter(w http.ResponseWriter, r *http.Request) {
	counter, err := h.svc.GetCounter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

// CounterOf handles GET /admins/{admin}/counter
// Resolves the counter an admin initialized.
func (h *ClaimHandler) CounterOf(w http.ResponseWriter, r *http.Request) {
	counter, err := h.svc.CounterOf(r.Context(), chi.URLParam(r, "admin"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

// Claim handles POST /counters/{id}/claim
// Takes one slot for the authenticated principal.
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Claim(r.Context(), chi.URLParam(r, "id"), principal)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Cancel handles POST /counters/{id}/cancel
// Releases a receipt held by the authenticated principal. The body may name
// a receipt id; without one the principal's own receipt is used.
func (h *ClaimHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req model.CancelRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), principal, req.ReceiptID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListReceipts handles GET /counters/{id}/receipts
func (h *ClaimHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.svc.ListReceipts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if receipts == nil {
		receipts = []model.Receipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

// GetReceipt handles GET /counters/{id}/receipts/{principal}
func (h *ClaimHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.svc.GetReceipt(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "principal"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// ListEvents handles GET /counters/{id}/events
// Returns the most recent claim and cancel events of the counter.
func (h *ClaimHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetCounter(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recorder.Recent(id))
}

// Credits handles GET /principals/{principal}/credits
func (h *ClaimHandler) Credits(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	amount, err := h.svc.Credits(r.Context(), principal)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.CreditsResponse{Principal: principal, Credited: amount})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

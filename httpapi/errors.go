package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	phoneverify "github.com/MrEthical07/phoneverify"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// RemainingSeconds is set for already_pending.
	RemainingSeconds int `json:"remainingSeconds,omitempty"`
}

type errorMapping struct {
	status  int
	message string
}

var errorMappings = map[string]errorMapping{
	"invalid_number":      {http.StatusBadRequest, "The phone number is not valid."},
	"not_allowed":         {http.StatusBadRequest, "The phone number is not accepted."},
	"invalid_purpose":     {http.StatusBadRequest, "Unknown verification purpose."},
	"abuse_detected":      {http.StatusTooManyRequests, "Too many codes requested. Try again later."},
	"already_pending":     {http.StatusConflict, "A code was already sent and is still valid."},
	"no_ongoing_process":  {http.StatusNotFound, "No verification is in progress for this number."},
	"code_mismatch":       {http.StatusUnprocessableEntity, "The code is incorrect."},
	"attempts_exceeded":   {http.StatusForbidden, "Too many incorrect codes. Request a new one."},
	"already_consumed":    {http.StatusConflict, "The code was already used."},
	"delivery_failed":     {http.StatusBadGateway, "The code could not be sent."},
	"account_not_found":   {http.StatusNotFound, "No account uses this phone number."},
	"already_registered":  {http.StatusConflict, "The phone number is already registered."},
	"invalid_proof":       {http.StatusUnauthorized, "The verification proof is not valid."},
	"unknown_record":      {http.StatusNotFound, "Unknown verification record."},
	"backend_unavailable": {http.StatusServiceUnavailable, "Service temporarily unavailable."},
	"not_ready":           {http.StatusServiceUnavailable, "Service not configured for this request."},
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := phoneverify.ErrorKind(err)
	m, ok := errorMappings[kind]
	if !ok {
		h.logger.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		m = errorMapping{http.StatusInternalServerError, "Internal error."}
	} else if m.status >= http.StatusInternalServerError {
		h.logger.WarnContext(r.Context(), "request failed", "error", err, "kind", kind, "path", r.URL.Path)
	}

	resp := ErrorResponse{Error: kind, Message: m.message}
	var pending *phoneverify.PendingError
	if errors.As(err, &pending) {
		resp.RemainingSeconds = pending.RemainingSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(resp.RemainingSeconds))
	}

	render.Status(r, m.status)
	render.JSON(w, r, resp)
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: "bad_request", Message: message})
}

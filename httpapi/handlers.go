package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	phoneverify "github.com/MrEthical07/phoneverify"
	"github.com/MrEthical07/phoneverify/middleware"
)

type CodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Purpose     string `json:"purpose"`
}

// CodeResponse acknowledges an issuance. The record id is only disclosed
// once the code has been validated.
type CodeResponse struct {
	PhoneNumber string    `json:"phoneNumber"`
	Purpose     string    `json:"purpose"`
	ExpiresIn   int       `json:"expiresIn"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type SubmitRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Purpose     string `json:"purpose"`
	Code        string `json:"code"`
}

type ValidateResponse struct {
	RecordID string `json:"recordId"`
}

type VerifyResponse struct {
	RecordID    string    `json:"recordId"`
	PhoneNumber string    `json:"phoneNumber"`
	Purpose     string    `json:"purpose"`
	AccountID   string    `json:"accountId,omitempty"`
	VerifiedAt  time.Time `json:"verifiedAt"`
	Proof       string    `json:"proof,omitempty"`
}

type PendingResponse struct {
	PhoneNumber string `json:"phoneNumber"`
	Purpose     string `json:"purpose"`
	ExpiresIn   int    `json:"expiresIn"`
}

type BindRequest struct {
	AccountID string `json:"accountId"`
}

type BindResponse struct {
	AccountID    string            `json:"accountId"`
	PhoneNumber  string            `json:"phoneNumber"`
	Attributes   map[string]string `json:"attributes"`
	ClearFrom    []string          `json:"clearFrom"`
	AlreadyBound bool              `json:"alreadyBound"`
}

// RequestCode handles POST /v1/codes.
func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	purpose, ok := h.purpose(w, r, req.Purpose)
	if !ok {
		return
	}

	res, err := h.engine.RequestCode(r.Context(), req.PhoneNumber, purpose)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, CodeResponse{
		PhoneNumber: res.PhoneNumber,
		Purpose:     string(res.Purpose),
		ExpiresIn:   res.ExpiresInSeconds(),
		ExpiresAt:   res.ExpiresAt.UTC(),
	})
}

// Pending handles GET /v1/codes/pending?phoneNumber=...&purpose=...
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	purpose, ok := h.purpose(w, r, q.Get("purpose"))
	if !ok {
		return
	}
	phone, err := h.engine.Canonicalize(q.Get("phoneNumber"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	remaining, err := h.engine.Pending(r.Context(), phone, purpose)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, PendingResponse{
		PhoneNumber: phone,
		Purpose:     string(purpose),
		ExpiresIn:   int((remaining + time.Second - 1) / time.Second),
	})
}

// Validate handles POST /v1/codes/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	phone, purpose, code, ok := h.submission(w, r)
	if !ok {
		return
	}

	recordID, err := h.engine.Validate(r.Context(), phone, purpose, code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, ValidateResponse{RecordID: recordID})
}

// Consume handles POST /v1/codes/{recordID}/consume.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Consume(r.Context(), chi.URLParam(r, "recordID")); err != nil {
		h.fail(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// Verify handles POST /v1/codes/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	phone, purpose, code, ok := h.submission(w, r)
	if !ok {
		return
	}

	v, err := h.engine.Verify(r.Context(), phone, purpose, code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, VerifyResponse{
		RecordID:    v.RecordID,
		PhoneNumber: v.PhoneNumber,
		Purpose:     string(v.Purpose),
		AccountID:   v.AccountID,
		VerifiedAt:  v.VerifiedAt.UTC(),
		Proof:       v.Proof,
	})
}

// BindPhone handles POST /v1/phone-bindings. The number comes from the
// verification proof, never from the body.
func (h *Handler) BindPhone(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ProofFromContext(r.Context())
	if !ok {
		h.fail(w, r, phoneverify.ErrInvalidProof)
		return
	}
	var req BindRequest
	if !h.decode(w, r, &req) {
		return
	}

	binding, err := h.engine.BindPhone(r.Context(), req.AccountID, claims.PhoneNumber)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	clearFrom := binding.ClearFrom
	if clearFrom == nil {
		clearFrom = []string{}
	}
	render.JSON(w, r, BindResponse{
		AccountID:    binding.AccountID,
		PhoneNumber:  binding.PhoneNumber,
		Attributes:   binding.Attributes,
		ClearFrom:    clearFrom,
		AlreadyBound: binding.AlreadyBound,
	})
}

func (h *Handler) submission(w http.ResponseWriter, r *http.Request) (string, phoneverify.Purpose, string, bool) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return "", "", "", false
	}
	purpose, ok := h.purpose(w, r, req.Purpose)
	if !ok {
		return "", "", "", false
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		h.badRequest(w, r, "code is required")
		return "", "", "", false
	}
	phone, err := h.engine.Canonicalize(req.PhoneNumber)
	if err != nil {
		h.fail(w, r, err)
		return "", "", "", false
	}
	return phone, purpose, code, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.badRequest(w, r, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) purpose(w http.ResponseWriter, r *http.Request, raw string) (phoneverify.Purpose, bool) {
	purpose, err := phoneverify.ParsePurpose(raw)
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return purpose, true
}

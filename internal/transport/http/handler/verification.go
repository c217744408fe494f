package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/application/verification"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/validate"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/transport/http/middleware"
)

// VerificationHandler handles the push-identity verification flow.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

type confirmEnvelope struct {
	Verified bool `json:"verified"`
}

func (h *VerificationHandler) Request(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body domain.RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issued, err := h.svc.RequestCode(r.Context(), claims.UserID, body.PushTarget)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

func (h *VerificationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body domain.ConfirmCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ConfirmCode(r.Context(), claims.UserID, body.Code); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmEnvelope{Verified: true})
}

package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/facepay-service/internal/app"
)

type registerFacePayRequest struct {
	Image string           `json:"image"`
	PIN   string           `json:"pin"`
	Limit *decimal.Decimal `json:"limit,omitempty"`
}

type toggleFacePayRequest struct {
	Enabled bool `json:"enabled"`
}

// RegisterFacePayHandler enrolls the calling customer.
func (h *Handlers) RegisterFacePayHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	var req registerFacePayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	image, err := decodeImage(req.Image)
	if err != nil {
		writeServiceError(w, "register_facepay", err)
		return
	}
	var limit int64
	if req.Limit != nil {
		if limit, err = app.ToMinorUnits(*req.Limit); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	status, err := h.service.RegisterFacePay(r.Context(), app.RegisterFacePayRequest{
		AccountID: accountID,
		Image:     image,
		PIN:       req.PIN,
		Limit:     limit,
	})
	if err != nil {
		writeServiceError(w, "register_facepay", err)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

// FacePayStatusHandler reports the caller's enrollment.
func (h *Handlers) FacePayStatusHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	status, err := h.service.FacePayStatus(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, "facepay_status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ToggleFacePayHandler enables or disables FacePay for the caller.
func (h *Handlers) ToggleFacePayHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	var req toggleFacePayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, err := h.service.ToggleFacePay(r.Context(), accountID, req.Enabled)
	if err != nil {
		writeServiceError(w, "toggle_facepay", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// VerifyTransactionHandler serves the "was this you?" links from FacePay debit notifications.
func (h *Handlers) VerifyTransactionHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID, err := uuid.Parse(q.Get("session"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID format")
		return
	}
	action := q.Get("action")
	if action != "yes" && action != "no" {
		writeError(w, http.StatusBadRequest, "action must be yes or no")
		return
	}

	message, err := h.service.ConfirmTransaction(r.Context(), sessionID, action)
	if err != nil {
		writeServiceError(w, "verify_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

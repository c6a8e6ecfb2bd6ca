package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/transfa/facepay-service/internal/app"
)

type initiateSessionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type confirmAmountRequest struct {
	Confirmed bool `json:"confirmed"`
}

type verifyPhoneRequest struct {
	Phone string `json:"phone"`
}

type verifyFaceRequest struct {
	Image string `json:"image"`
}

type verifyPINRequest struct {
	PIN string `json:"pin"`
}

// InitiateSessionHandler opens a FacePay session for the calling vendor.
func (h *Handlers) InitiateSessionHandler(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	var req initiateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := app.ToMinorUnits(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.service.InitiateSession(r.Context(), vendorID, amount)
	if err != nil {
		writeServiceError(w, "initiate_session", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// GetSessionHandler returns one of the vendor's sessions.
func (h *Handlers) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, ok := sessionFromPath(w, r)
	if !ok {
		return
	}
	session, err := h.service.GetSession(r.Context(), vendorID, sessionID)
	if err != nil {
		writeServiceError(w, "get_session", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ConfirmAmountHandler records the customer's confirmation of the amount.
func (h *Handlers) ConfirmAmountHandler(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, ok := sessionFromPath(w, r)
	if !ok {
		return
	}
	var req confirmAmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.service.ConfirmAmount(r.Context(), vendorID, sessionID, req.Confirmed)
	if err != nil {
		writeServiceError(w, "confirm_amount", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// VerifyPhoneHandler resolves the paying customer by phone number.
func (h *Handlers) VerifyPhoneHandler(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, ok := sessionFromPath(w, r)
	if !ok {
		return
	}
	var req verifyPhoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}

	res, err := h.service.VerifyPhone(r.Context(), vendorID, sessionID, phone)
	if err != nil {
		writeServiceError(w, "verify_phone", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VerifyFaceHandler matches the live capture against the customer's template.
func (h *Handlers) VerifyFaceHandler(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, ok := sessionFromPath(w, r)
	if !ok {
		return
	}
	var req verifyFaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	image, err := decodeImage(req.Image)
	if err != nil {
		writeServiceError(w, "verify_face", err)
		return
	}

	res, err := h.service.VerifyFace(r.Context(), vendorID, sessionID, image)
	if err != nil {
		log.Printf("level=warn component=api endpoint=verify_face outcome=reject session_id=%s err=%v", sessionID, err)
		writeServiceError(w, "verify_face", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VerifyPINHandler checks the FacePay PIN and settles the payment.
func (h *Handlers) VerifyPINHandler(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, ok := sessionFromPath(w, r)
	if !ok {
		return
	}
	var req verifyPINRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.PIN) == "" {
		writeError(w, http.StatusBadRequest, "pin is required")
		return
	}

	receipt, err := h.service.VerifyPIN(r.Context(), vendorID, sessionID, strings.TrimSpace(req.PIN))
	if err != nil {
		log.Printf("level=warn component=api endpoint=verify_pin outcome=reject session_id=%s err=%v", sessionID, err)
		writeServiceError(w, "verify_pin", err)
		return
	}
	log.Printf("level=info component=api endpoint=verify_pin outcome=settled session_id=%s transaction_id=%s", sessionID, receipt.Transaction.ID)
	writeJSON(w, http.StatusOK, receipt)
}

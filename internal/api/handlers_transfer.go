package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/transfa/facepay-service/internal/app"
)

type transferRequest struct {
	ReceiverAccountNumber string          `json:"receiver_account_number"`
	Amount                decimal.Decimal `json:"amount"`
	Remarks               string          `json:"remarks"`
}

// TransferHandler moves funds from the caller to another account.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	senderID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	receiver := strings.TrimSpace(req.ReceiverAccountNumber)
	if receiver == "" {
		writeError(w, http.StatusBadRequest, "receiver_account_number is required")
		return
	}
	amount, err := app.ToMinorUnits(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := h.service.Transfer(r.Context(), app.TransferRequest{
		SenderID:              senderID,
		ReceiverAccountNumber: receiver,
		Amount:                amount,
		Remarks:               strings.TrimSpace(req.Remarks),
	})
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=failed sender_id=%s err=%v", senderID, err)
		writeServiceError(w, "transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// ListTransactionsHandler returns the caller's transactions, newest first.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = parsed
	}

	txns, err := h.service.ListTransactions(r.Context(), accountID, limit)
	if err != nil {
		writeServiceError(w, "list_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/transfa/facepay-service/internal/app"
)

type registerAccountRequest struct {
	Name          string `json:"name"`
	Mobile        string `json:"mobile"`
	Email         string `json:"email"`
	AccountNumber string `json:"account_number"`
	PIN           string `json:"pin"`
}

type depositRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Remarks string          `json:"remarks"`
}

// RegisterAccountHandler opens a customer account and returns an access token for it.
func (h *Handlers) RegisterAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req registerAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.RegisterAccount(r.Context(), app.RegisterAccountRequest{
		Name:          req.Name,
		Mobile:        req.Mobile,
		Email:         req.Email,
		AccountNumber: req.AccountNumber,
		PIN:           req.PIN,
	})
	if err != nil {
		writeServiceError(w, "register_account", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// BalanceHandler returns the caller's balance.
func (h *Handlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// DashboardHandler returns the caller's account and recent activity.
func (h *Handlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	dash, err := h.service.Dashboard(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// DepositHandler credits a cash deposit to the caller's account.
func (h *Handlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := app.ToMinorUnits(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := h.service.Deposit(r.Context(), app.DepositRequest{
		AccountID: accountID,
		Amount:    amount,
		Remarks:   strings.TrimSpace(req.Remarks),
	})
	if err != nil {
		writeServiceError(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

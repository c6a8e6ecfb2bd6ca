package api

import (
	"net/http"
	"strings"
)

type loginRequest struct {
	Mobile string `json:"mobile"`
	PIN    string `json:"pin"`
}

// LoginHandler exchanges a mobile number and login PIN for an access token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Mobile) == "" || req.PIN == "" {
		writeError(w, http.StatusBadRequest, "mobile and pin are required")
		return
	}

	res, err := h.service.Login(r.Context(), req.Mobile, req.PIN)
	if err != nil {
		writeServiceError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

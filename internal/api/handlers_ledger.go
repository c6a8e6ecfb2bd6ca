package api

import (
	"net/http"
)

// ListBlocksHandler returns the full chain.
func (h *Handlers) ListBlocksHandler(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.service.ListBlocks(r.Context())
	if err != nil {
		writeServiceError(w, "ledger_blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain":  blocks,
		"length": len(blocks),
	})
}

// ValidateLedgerHandler recomputes every block. A tampered chain is still a 200; the
// report carries the verdict.
func (h *Handlers) ValidateLedgerHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ValidateLedger(r.Context())
	if err != nil {
		writeServiceError(w, "ledger_validate", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

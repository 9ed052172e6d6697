package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/user/name-indexer/internal/usecase"
)

// AdminHandler serves the operator endpoints: cursor reset for replay and
// backfill.
type AdminHandler struct {
	cursor *usecase.CursorManager
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cursor *usecase.CursorManager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{cursor: cursor, logger: logger}
}

type resetRequest struct {
	EventID *int64 `json:"event_id"`
}

// ResetCursor handles POST /v1/admin/cursor/reset. Events after the given id
// will be redelivered by the upstream and re-ingested idempotently.
func (h *AdminHandler) ResetCursor(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventID == nil || *req.EventID < 0 {
		writeError(w, http.StatusBadRequest, "event_id is required and must be non-negative")
		return
	}

	if err := h.cursor.Reset(r.Context(), *req.EventID); err != nil {
		h.logger.Error("cursor reset failed", "event_id", *req.EventID, "error", err)
		writeError(w, http.StatusBadGateway, "cursor reset failed")
		return
	}

	h.logger.Info("cursor reset via admin API", "event_id", *req.EventID)
	writeJSON(w, http.StatusOK, map[string]int64{"last_acknowledged_id": *req.EventID})
}

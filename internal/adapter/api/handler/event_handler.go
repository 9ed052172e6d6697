package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/user/name-indexer/internal/domain"
	"github.com/user/name-indexer/internal/usecase"
)

// EventHandler serves the query surface consumed by external collaborators:
// filtered event listings, single-event lookup, stats, and status.
type EventHandler struct {
	events domain.EventRepository
	stats  *usecase.StatsAggregator
	logger *slog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events domain.EventRepository, stats *usecase.StatsAggregator, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, stats: stats, logger: logger}
}

// List handles GET /v1/events.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.events.Find(r.Context(), filter)
	if err != nil {
		h.logger.Error("event query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if records == nil {
		records = []domain.StoredRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records, "count": len(records)})
}

// Get handles GET /v1/events/{uniqueID}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueID")
	record, err := h.events.FindByUniqueID(r.Context(), uniqueID)
	if err != nil {
		h.logger.Error("event lookup failed", "unique_id", uniqueID, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Stats handles GET /v1/stats.
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Status handles GET /v1/status.
func (h *EventHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.stats.Status(r.Context())
	if err != nil {
		h.logger.Error("status query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "status query failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func filterFromQuery(r *http.Request) (domain.EventFilter, error) {
	q := r.URL.Query()
	filter := domain.EventFilter{
		Type:    domain.EventType(q.Get("event_type")),
		Name:    q.Get("name"),
		TokenID: q.Get("token_id"),
		Status:  domain.ProcessingStatus(q.Get("status")),
	}

	var err error
	if filter.FromID, err = parseInt64(q.Get("from_id")); err != nil {
		return filter, err
	}
	if filter.ToID, err = parseInt64(q.Get("to_id")); err != nil {
		return filter, err
	}
	limit, err := parseInt64(q.Get("limit"))
	if err != nil {
		return filter, err
	}
	offset, err := parseInt64(q.Get("offset"))
	if err != nil {
		return filter, err
	}
	filter.Limit = int(limit)
	filter.Offset = int(offset)
	return filter, nil
}

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

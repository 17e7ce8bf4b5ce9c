package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hfoster/routinely/internal/model"
	"github.com/hfoster/routinely/internal/report"
	"github.com/hfoster/routinely/internal/run"
	"github.com/hfoster/routinely/internal/store"
)

const defaultSummaryLimit = 5

type OvertimeHandler struct {
	overtimeStore *store.OvertimeStore
	dispatcher    *run.Dispatcher
	logger        *slog.Logger
}

func NewOvertimeHandler(os *store.OvertimeStore, d *run.Dispatcher, logger *slog.Logger) *OvertimeHandler {
	return &OvertimeHandler{overtimeStore: os, dispatcher: d, logger: logger}
}

type overtimeIntakeRequest struct {
	Entries []model.OvertimeEntry `json:"entries"`
}

// Intake handles POST /api/overtime. The batch is accepted immediately and
// written behind the response; losing a batch costs report rows, never points.
func (h *OvertimeHandler) Intake(w http.ResponseWriter, r *http.Request) {
	var req overtimeIntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.Entries) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entries are required"})
		return
	}

	now := time.Now().UTC()
	for i := range req.Entries {
		if req.Entries[i].OccurredAt.IsZero() {
			req.Entries[i].OccurredAt = now
		}
	}

	entries := req.Entries
	h.dispatcher.Enqueue("intake_overtime", func() error {
		return h.overtimeStore.Append(entries)
	})

	w.WriteHeader(http.StatusAccepted)
}

func parseLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultSummaryLimit
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return defaultSummaryLimit
	}
	return limit
}

// Children handles GET /api/reports/overtime/children.
func (h *OvertimeHandler) Children(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.overtimeStore.SummaryByChild(parseLimit(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to summarize overtime"})
		return
	}
	if summaries == nil {
		summaries = []model.OvertimeSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Routines handles GET /api/reports/overtime/routines.
func (h *OvertimeHandler) Routines(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.overtimeStore.SummaryByRoutine(parseLimit(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to summarize overtime"})
		return
	}
	if summaries == nil {
		summaries = []model.OvertimeSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Events handles GET /api/reports/overtime/events: the chronological
// drill-down grouped by day, then routine.
func (h *OvertimeHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.overtimeStore.ListEvents()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list overtime events"})
		return
	}

	days := report.GroupEvents(events)
	if days == nil {
		days = []report.DayGroup{}
	}
	writeJSON(w, http.StatusOK, days)
}

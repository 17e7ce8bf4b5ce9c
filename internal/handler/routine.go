package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/hfoster/routinely/internal/builder"
	"github.com/hfoster/routinely/internal/model"
	"github.com/hfoster/routinely/internal/store"
	"github.com/hfoster/routinely/internal/websocket"
)

type RoutineHandler struct {
	routineStore *store.RoutineStore
	taskStore    *store.TaskStore
	memberStore  *store.FamilyMemberStore
	hub          *websocket.Hub
}

func NewRoutineHandler(rs *store.RoutineStore, ts *store.TaskStore, ms *store.FamilyMemberStore, hub *websocket.Hub) *RoutineHandler {
	return &RoutineHandler{routineStore: rs, taskStore: ts, memberStore: ms, hub: hub}
}

func (h *RoutineHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type routineRequest struct {
	Title       string          `json:"title"`
	ChildID     int64           `json:"child_id"`
	BonusPoints int             `json:"bonus_points"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	Tasks       []builder.Entry `json:"tasks"`
}

func (h *RoutineHandler) validate(req *routineRequest) (string, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required", nil
	}
	if req.BonusPoints < 0 {
		return "bonus_points must not be negative", nil
	}
	if len(req.Tasks) == 0 {
		return "at least one task is required", nil
	}

	member, err := h.memberStore.GetByID(req.ChildID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "child not found", nil
	}
	return "", nil
}

// routineResponse pairs the stored detail with the advisory schedule summary.
type routineResponse struct {
	*model.RoutineDetail
	Summary *builder.Summary `json:"summary,omitempty"`
}

func (h *RoutineHandler) respondDetail(w http.ResponseWriter, status int, detail *model.RoutineDetail) {
	resp := routineResponse{RoutineDetail: detail}
	if detail.Routine.StartTime != "" && detail.Routine.EndTime != "" {
		if summary, err := h.summarize(detail); err == nil {
			resp.Summary = &summary
		}
	}
	writeJSON(w, status, resp)
}

func (h *RoutineHandler) summarize(detail *model.RoutineDetail) (builder.Summary, error) {
	tasks := make(map[int64]model.Task)
	entries := make([]builder.Entry, 0, len(detail.Entries))
	for _, item := range detail.Entries {
		entries = append(entries, builder.Entry{TaskID: item.RoutineTask.TaskID})
		if item.Task != nil {
			tasks[item.Task.ID] = *item.Task
		}
	}
	b := builder.New(entries)
	return b.Summarize(tasks, detail.Routine.StartTime, detail.Routine.EndTime)
}

func (h *RoutineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req routineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	msg, err := h.validate(&req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check child"})
		return
	}
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	detail, err := h.routineStore.Create(req.Title, req.ChildID, req.BonusPoints, req.StartTime, req.EndTime, builder.Plan{Tasks: req.Tasks})
	if err != nil {
		log.Printf("failed to create routine: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create routine"})
		return
	}

	h.broadcast(websocket.NewMessage("routine", "created", detail.Routine.ID, nil))

	h.respondDetail(w, http.StatusCreated, detail)
}

func (h *RoutineHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		routines []model.Routine
		err      error
	)
	if v := r.URL.Query().Get("child_id"); v != "" {
		childID, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid child_id"})
			return
		}
		routines, err = h.routineStore.ListByChild(childID)
	} else {
		routines, err = h.routineStore.List()
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list routines"})
		return
	}
	if routines == nil {
		routines = []model.Routine{}
	}
	writeJSON(w, http.StatusOK, routines)
}

func (h *RoutineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	detail, err := h.routineStore.GetDetail(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get routine"})
		return
	}
	if detail == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "routine not found"})
		return
	}

	h.respondDetail(w, http.StatusOK, detail)
}

func (h *RoutineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	existing, err := h.routineStore.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get routine"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "routine not found"})
		return
	}

	var req routineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	msg, err := h.validate(&req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check child"})
		return
	}
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	detail, err := h.routineStore.Update(id, req.Title, req.ChildID, req.BonusPoints, req.StartTime, req.EndTime, builder.Plan{Tasks: req.Tasks})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update routine"})
		return
	}

	h.broadcast(websocket.NewMessage("routine", "updated", id, nil))

	h.respondDetail(w, http.StatusOK, detail)
}

func (h *RoutineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	existing, err := h.routineStore.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get routine"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "routine not found"})
		return
	}

	if err := h.routineStore.Delete(id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete routine"})
		return
	}

	h.broadcast(websocket.NewMessage("routine", "deleted", id, nil))

	w.WriteHeader(http.StatusNoContent)
}

// SetTaskStatus handles POST /api/routines/{id}/tasks/{task_id}/status.
// The mirror is display state only; settlement math never reads it.
func (h *RoutineHandler) SetTaskStatus(w http.ResponseWriter, r *http.Request) {
	routineTaskID, err := parsePathID(r, "task_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}

	var req struct {
		Status model.RunStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Status != model.RunStatusPending && req.Status != model.RunStatusCompleted {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be pending or completed"})
		return
	}

	if err := h.routineStore.SetTaskStatus(routineTaskID, req.Status); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to set task status"})
		return
	}

	h.broadcast(websocket.TaskStatusMessage(routineTaskID, string(req.Status)))

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Reset handles POST /api/routines/{id}/reset.
func (h *RoutineHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.routineStore.ResetStatuses(id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to reset statuses"})
		return
	}

	h.broadcast(websocket.NewMessage("routine", "reset", id, nil))

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package handler

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hfoster/routinely/internal/model"
	"github.com/hfoster/routinely/internal/notify"
	"github.com/hfoster/routinely/internal/points"
	"github.com/hfoster/routinely/internal/run"
	"github.com/hfoster/routinely/internal/store"
	"github.com/hfoster/routinely/internal/websocket"
)

type RunHandler struct {
	manager         *run.Manager
	routineStore    *store.RoutineStore
	settlementStore *store.SettlementStore
	memberStore     *store.FamilyMemberStore
	pushStore       *store.PushStore
	pushService     *notify.Service
	hub             *websocket.Hub
	logger          *slog.Logger
}

func NewRunHandler(m *run.Manager, rs *store.RoutineStore, ss *store.SettlementStore, ms *store.FamilyMemberStore, ps *store.PushStore, svc *notify.Service, hub *websocket.Hub, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		manager:         m,
		routineStore:    rs,
		settlementStore: ss,
		memberStore:     ms,
		pushStore:       ps,
		pushService:     svc,
		hub:             hub,
		logger:          logger,
	}
}

func (h *RunHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// runView is the state payload returned by the run endpoints.
type runView struct {
	Token     string             `json:"token"`
	State     run.State          `json:"state"`
	Task      *model.RoutineItem `json:"task,omitempty"`
	Index     int                `json:"index"`
	Remaining int                `json:"remaining"`
	Summary   *run.Summary       `json:"summary,omitempty"`
}

func viewOf(r *run.Run) runView {
	v := runView{
		Token:     r.Token,
		State:     r.State(),
		Index:     r.CurrentIndex(),
		Remaining: r.Remaining(),
	}
	if r.State() == run.StateTask || r.State() == run.StateStatus {
		v.Task = r.Current()
	}
	if r.State() == run.StateSummary {
		s := r.LocalSummary()
		v.Summary = &s
	}
	return v
}

// Open handles POST /api/routines/{id}/runs. It replaces any active run for
// the routine's child and starts timing the first task.
func (h *RunHandler) Open(w http.ResponseWriter, r *http.Request) {
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

	active, err := h.manager.Open(*detail)
	if err != nil {
		if errors.Is(err, run.ErrNoTasks) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "routine has no playable tasks"})
			return
		}
		h.logger.Error("open run", "routine_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to open run"})
		return
	}

	// The first entry never has a dependency, so this only fails if the run
	// vanished between the two calls.
	if _, err := h.manager.StartTask(active.Token); err != nil {
		h.logger.Error("start first task", "routine_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to start run"})
		return
	}

	h.broadcast(websocket.RunMessage("opened", id, map[string]any{"child_id": active.ChildID}))

	writeJSON(w, http.StatusCreated, viewOf(active))
}

// Complete handles POST /api/runs/{token}/tasks/{task_id}/complete.
func (h *RunHandler) Complete(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	taskID, err := parsePathID(r, "task_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}

	view, err := h.manager.CompleteTask(token, taskID)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	if active, err := h.manager.Get(token); err == nil {
		h.broadcast(websocket.RunMessage("task_completed", active.RoutineID, map[string]any{
			"task_id": taskID,
			"points":  view.Result.AwardedPoints,
			"stars":   view.Result.Stars,
		}))
	}

	writeJSON(w, http.StatusOK, view)
}

// Advance handles POST /api/runs/{token}/advance. Moving onto a task also
// starts its clock; a task whose dependency is still pending refuses to start.
func (h *RunHandler) Advance(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	state, err := h.manager.Advance(token)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	if state == run.StateTask {
		if _, err := h.manager.StartTask(token); err != nil {
			if errors.Is(err, run.ErrDependencyIncomplete) {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "task dependency not completed"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to start task"})
			return
		}
	}

	active, err := h.manager.Get(token)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	writeJSON(w, http.StatusOK, viewOf(active))
}

// Exit handles POST /api/runs/{token}/exit. Nothing is awarded and buffered
// overtime is discarded.
func (h *RunHandler) Exit(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	active, err := h.manager.Get(token)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	routineID := active.RoutineID

	if err := h.manager.Exit(token); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	h.broadcast(websocket.RunMessage("exited", routineID, nil))

	w.WriteHeader(http.StatusNoContent)
}

type settleRequest struct {
	ChildID  int64              `json:"child_id"`
	RunToken string             `json:"run_token"`
	Metrics  []model.TaskMetric `json:"metrics"`
}

type settleResponse struct {
	Duplicate   bool               `json:"duplicate"`
	Message     string             `json:"message,omitempty"`
	Results     []model.TaskResult `json:"results,omitempty"`
	TaskPoints  int                `json:"task_points"`
	BonusPoints int                `json:"bonus_points"`
	NewTotal    int                `json:"new_total"`
}

// Settle handles POST /api/routines/{id}/settle. Awards are recomputed
// server-side from the submitted metrics; any points the client thinks it
// earned are ignored. The run token makes retries harmless.
func (h *RunHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.Metrics) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "metrics are required"})
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

	childID := req.ChildID
	if childID == 0 {
		childID = detail.Routine.ChildID
	}

	pointValues := make(map[int64]int)
	for _, item := range detail.Entries {
		if item.Task != nil {
			pointValues[item.Task.ID] = item.Task.PointValue
		}
	}

	results := make([]model.TaskResult, 0, len(req.Metrics))
	for _, m := range req.Metrics {
		pv, ok := pointValues[m.TaskID]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("task %d is not part of this routine", m.TaskID)})
			return
		}
		results = append(results, points.Result(pv, m))
	}

	bonus := 0
	if points.BonusEligible(results) {
		bonus = detail.Routine.BonusPoints
	}

	token := req.RunToken
	if token == "" {
		token = deriveToken(id, childID, req.Metrics)
	}

	settlement, duplicate, err := h.settlementStore.Settle(store.SettleRequest{
		RoutineID:   id,
		ChildID:     childID,
		RunToken:    token,
		Results:     results,
		BonusPoints: bonus,
	})
	if err != nil {
		h.logger.Error("settle", "routine_id", id, "child_id", childID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to settle routine"})
		return
	}

	resp := settleResponse{
		Duplicate:   duplicate,
		Results:     results,
		TaskPoints:  settlement.TaskPoints,
		BonusPoints: settlement.BonusPoints,
		NewTotal:    settlement.NewTotal,
	}

	if duplicate {
		// A retry after a lost response still closes out the run.
		h.manager.FlushAndClose(token)
		resp.Message = "routine already settled; points were not awarded again"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	h.logger.Info("routine settled",
		"routine_id", id,
		"child_id", childID,
		"task_points", settlement.TaskPoints,
		"bonus_points", settlement.BonusPoints,
		"new_total", settlement.NewTotal,
	)

	h.broadcast(websocket.SettlementMessage(id, childID, settlement.TaskPoints, settlement.BonusPoints, settlement.NewTotal))
	go h.notifyParents(detail.Routine.Title, childID, settlement.TaskPoints, settlement.BonusPoints)

	// The run's buffered overtime flushes once the outcome is durable.
	h.manager.FlushAndClose(token)

	writeJSON(w, http.StatusOK, resp)
}

// notifyParents pushes a settlement notification to every parent device,
// pruning subscriptions the push service reports as gone.
func (h *RunHandler) notifyParents(routineTitle string, childID int64, taskPoints, bonusPoints int) {
	if h.pushService == nil {
		return
	}

	childName := "Someone"
	if member, err := h.memberStore.GetByID(childID); err == nil && member != nil {
		childName = member.Name
	}

	subs, err := h.pushStore.ListParents()
	if err != nil {
		h.logger.Error("list parent subscriptions", "error", err)
		return
	}

	payload := notify.SettlementPayload(childName, routineTitle, taskPoints, bonusPoints)
	for i := range subs {
		err := h.pushService.Send(&subs[i], payload)
		switch {
		case errors.Is(err, notify.ErrExpired):
			if derr := h.pushStore.DeleteByEndpoint(subs[i].Endpoint); derr != nil {
				h.logger.Error("prune expired subscription", "error", derr)
			}
		case err != nil:
			h.logger.Error("send settlement push", "member_id", subs[i].MemberID, "error", err)
		}
	}
}

// deriveToken builds a deterministic fallback token for settlements submitted
// without one, so blind retries of the same payload still deduplicate.
func deriveToken(routineID, childID int64, metrics []model.TaskMetric) string {
	hash := sha256.New()
	fmt.Fprintf(hash, "%d|%d", routineID, childID)
	for _, m := range metrics {
		fmt.Fprintf(hash, "|%d:%d:%d", m.TaskID, m.ScheduledSeconds, m.ActualSeconds)
	}
	return fmt.Sprintf("derived-%x", hash.Sum(nil))
}

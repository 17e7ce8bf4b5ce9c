package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hfoster/routinely/internal/handler"
	"github.com/hfoster/routinely/internal/middleware"
	"github.com/hfoster/routinely/internal/model"
	"github.com/hfoster/routinely/internal/notify"
	"github.com/hfoster/routinely/internal/run"
	"github.com/hfoster/routinely/internal/store"
	ws "github.com/hfoster/routinely/internal/websocket"
)

// Config holds the server's optional settings.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	dispatcher  *run.Dispatcher
	manager     *run.Manager
	taskH       *handler.TaskHandler
	routineH    *handler.RoutineHandler
	runH        *handler.RunHandler
	overtimeH   *handler.OvertimeHandler
	memberH     *handler.FamilyMemberHandler
	pushH       *handler.PushHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// runStore adapts the SQL stores to the run manager's best-effort persistence
// interface.
type runStore struct {
	routines *store.RoutineStore
	overtime *store.OvertimeStore
}

func (s runStore) SetTaskStatus(routineTaskID int64, status model.RunStatus) error {
	return s.routines.SetTaskStatus(routineTaskID, status)
}

func (s runStore) ResetStatuses(routineID int64) error {
	return s.routines.ResetStatuses(routineID)
}

func (s runStore) AppendOvertime(entries []model.OvertimeEntry) error {
	return s.overtime.Append(entries)
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	taskStore := store.NewTaskStore(db)
	routineStore := store.NewRoutineStore(db)
	settlementStore := store.NewSettlementStore(db)
	memberStore := store.NewFamilyMemberStore(db)
	pointsStore := store.NewPointsStore(db)
	overtimeStore := store.NewOvertimeStore(db)
	pushStore := store.NewPushStore(db)

	dispatcher := run.NewDispatcher(64, logger.With("component", "dispatcher"))
	manager := run.NewManager(
		runStore{routines: routineStore, overtime: overtimeStore},
		dispatcher,
		logger.With("component", "run"),
	)

	var pushSvc *notify.Service
	var pushH *handler.PushHandler
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushSvc = notify.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push"))
	}

	return &Server{
		db:          db,
		hub:         hub,
		dispatcher:  dispatcher,
		manager:     manager,
		taskH:       handler.NewTaskHandler(taskStore, hub),
		routineH:    handler.NewRoutineHandler(routineStore, taskStore, memberStore, hub),
		runH:        handler.NewRunHandler(manager, routineStore, settlementStore, memberStore, pushStore, pushSvc, hub, logger.With("component", "settle")),
		overtimeH:   handler.NewOvertimeHandler(overtimeStore, dispatcher, logger.With("component", "overtime")),
		memberH:     handler.NewFamilyMemberHandler(memberStore, pointsStore),
		pushH:       pushH,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Close drains the best-effort write queue. Call during shutdown, after the
// HTTP server has stopped accepting requests.
func (s *Server) Close() {
	s.dispatcher.Close()
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Task template API routes
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)

	// Routine API routes
	mux.HandleFunc("POST /api/routines", s.routineH.Create)
	mux.HandleFunc("GET /api/routines", s.routineH.List)
	mux.HandleFunc("GET /api/routines/{id}", s.routineH.Get)
	mux.HandleFunc("PUT /api/routines/{id}", s.routineH.Update)
	mux.HandleFunc("DELETE /api/routines/{id}", s.routineH.Delete)
	mux.HandleFunc("POST /api/routines/{id}/tasks/{task_id}/status", s.routineH.SetTaskStatus)
	mux.HandleFunc("POST /api/routines/{id}/reset", s.routineH.Reset)

	// Run + settlement routes; settle is rate-limited since it moves points
	mux.HandleFunc("POST /api/routines/{id}/runs", s.runH.Open)
	mux.HandleFunc("POST /api/runs/{token}/tasks/{task_id}/complete", s.runH.Complete)
	mux.HandleFunc("POST /api/runs/{token}/advance", s.runH.Advance)
	mux.HandleFunc("POST /api/runs/{token}/exit", s.runH.Exit)
	mux.HandleFunc("POST /api/routines/{id}/settle", s.rateLimitedHandler(s.runH.Settle, 30))

	// Overtime intake + reports
	mux.HandleFunc("POST /api/overtime", s.overtimeH.Intake)
	mux.HandleFunc("GET /api/reports/overtime/children", s.overtimeH.Children)
	mux.HandleFunc("GET /api/reports/overtime/routines", s.overtimeH.Routines)
	mux.HandleFunc("GET /api/reports/overtime/events", s.overtimeH.Events)

	// Family member API routes
	mux.HandleFunc("GET /api/family-members", s.memberH.List)
	mux.HandleFunc("POST /api/family-members", s.memberH.Create)
	mux.HandleFunc("PUT /api/family-members/{id}", s.memberH.Update)
	mux.HandleFunc("DELETE /api/family-members/{id}", s.memberH.Delete)
	mux.HandleFunc("PUT /api/family-members/sort", s.memberH.UpdateSortOrder)
	mux.HandleFunc("GET /api/family-members/{id}/points", s.memberH.Points)

	// PIN routes; verify is rate-limited against guessing
	mux.HandleFunc("POST /api/family-members/{id}/pin", s.memberH.SetPIN)
	mux.HandleFunc("DELETE /api/family-members/{id}/pin", s.memberH.ClearPIN)
	mux.HandleFunc("POST /api/family-members/{id}/pin/verify", s.rateLimitedHandler(s.memberH.VerifyPIN, 10))

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// Real-time sync
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc, limit int) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, limit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

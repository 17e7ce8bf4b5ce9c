package run

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hfoster/routinely/internal/model"
)

// ErrRunNotFound is returned for an unknown or already-finished run token.
var ErrRunNotFound = errors.New("run not found")

// StatusStore is the persistence the manager mirrors run progress into. All
// calls go through the dispatcher and are best-effort.
type StatusStore interface {
	SetTaskStatus(routineTaskID int64, status model.RunStatus) error
	ResetStatuses(routineID int64) error
	AppendOvertime(entries []model.OvertimeEntry) error
}

// Manager owns the active runs. A child has at most one active run; opening a
// new flow replaces the old one. All state transitions are serialized behind
// the manager's mutex.
type Manager struct {
	mu      sync.Mutex
	byToken map[string]*Run
	byChild map[int64]string // child id → active token

	store      StatusStore
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewManager(store StatusStore, dispatcher *Dispatcher, logger *slog.Logger) *Manager {
	return &Manager{
		byToken:    make(map[string]*Run),
		byChild:    make(map[int64]string),
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Open starts a run for the routine, replacing any active run for the same
// child. All persisted task statuses are reset to pending best-effort, and a
// fresh server-issued token is minted for settlement idempotence.
func (m *Manager) Open(detail model.RoutineDetail) (*Run, error) {
	token := uuid.NewString()
	r, err := New(detail, token, nil)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if old, ok := m.byChild[r.ChildID]; ok {
		delete(m.byToken, old)
	}
	m.byToken[token] = r
	m.byChild[r.ChildID] = token
	m.mu.Unlock()

	routineID := r.RoutineID
	m.dispatcher.Enqueue("reset_statuses", func() error {
		return m.store.ResetStatuses(routineID)
	})

	m.logger.Info("run opened", "routine_id", r.RoutineID, "child_id", r.ChildID, "tasks", len(r.entries))
	return r, nil
}

// StartTask begins timing the current task of the run.
func (m *Manager) StartTask(token string) (*model.RoutineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byToken[token]
	if !ok {
		return nil, ErrRunNotFound
	}
	if err := r.StartTask(); err != nil {
		return nil, err
	}
	return r.Current(), nil
}

// CompleteTask finishes the current task, mirrors its persisted status
// best-effort, and returns the status screen data.
func (m *Manager) CompleteTask(token string, taskID int64) (StatusView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byToken[token]
	if !ok {
		return StatusView{}, ErrRunNotFound
	}
	current := r.Current()
	if current == nil || current.Task.ID != taskID {
		return StatusView{}, errors.New("task is not the current task")
	}

	view, err := r.CompleteTask()
	if err != nil {
		return StatusView{}, err
	}

	// Eager mirror so a crash mid-routine doesn't lose progress already made.
	rtID := current.RoutineTask.ID
	m.dispatcher.Enqueue("set_task_status", func() error {
		return m.store.SetTaskStatus(rtID, model.RunStatusCompleted)
	})

	return view, nil
}

// Advance moves a run past its status screen.
func (m *Manager) Advance(token string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byToken[token]
	if !ok {
		return StateIdle, ErrRunNotFound
	}
	if err := r.Advance(); err != nil {
		return r.State(), err
	}
	return r.State(), nil
}

// Get returns the run for a token.
func (m *Manager) Get(token string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byToken[token]
	if !ok {
		return nil, ErrRunNotFound
	}
	return r, nil
}

// FlushAndClose flushes the run's buffered overtime entries best-effort and
// removes the run. Called after settlement has settled, whether or not the
// settlement call succeeded.
func (m *Manager) FlushAndClose(token string) {
	m.mu.Lock()
	r, ok := m.byToken[token]
	if ok {
		delete(m.byToken, token)
		if m.byChild[r.ChildID] == token {
			delete(m.byChild, r.ChildID)
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	entries := r.DrainOvertime()
	if len(entries) > 0 {
		m.dispatcher.Enqueue("flush_overtime", func() error {
			return m.store.AppendOvertime(entries)
		})
	}
}

// Exit cancels a run without awarding anything, resetting persisted statuses
// best-effort and discarding all buffers.
func (m *Manager) Exit(token string) error {
	m.mu.Lock()
	r, ok := m.byToken[token]
	if ok {
		delete(m.byToken, token)
		if m.byChild[r.ChildID] == token {
			delete(m.byChild, r.ChildID)
		}
	}
	m.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}

	r.Exit()
	routineID := r.RoutineID
	m.dispatcher.Enqueue("reset_statuses", func() error {
		return m.store.ResetStatuses(routineID)
	})
	m.logger.Info("run exited", "routine_id", r.RoutineID, "child_id", r.ChildID)
	return nil
}

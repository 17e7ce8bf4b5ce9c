// Package run drives one execution of a routine by a child: an explicit state
// machine from open through per-task timing to the final summary. The value is
// plain data plus transition methods, so it is testable without any UI and
// could be serialized to resume a run.
package run

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hfoster/routinely/internal/model"
	"github.com/hfoster/routinely/internal/points"
)

type State string

const (
	StateIdle    State = "idle"
	StateTask    State = "task"
	StateStatus  State = "status"
	StateSummary State = "summary"
)

var (
	// ErrNoTasks is returned when a routine has no playable tasks.
	ErrNoTasks = errors.New("routine has no tasks")

	// ErrDependencyIncomplete is returned when a task's dependency has not
	// been completed in this run.
	ErrDependencyIncomplete = errors.New("task dependency not completed")
)

// StatusView is what the child sees after completing a task.
type StatusView struct {
	Result   model.TaskResult `json:"result"`
	Feedback string           `json:"feedback"`
}

// Run is one in-flight execution of a routine. It is not safe for concurrent
// use; the Manager serializes access.
type Run struct {
	Token     string
	RoutineID int64
	ChildID   int64

	bonusPoints int
	entries     []model.RoutineItem

	state     State
	current   int
	taskStart time.Time
	started   bool

	results   []model.TaskResult
	overtime  []model.OvertimeEntry
	completed map[int64]bool // routine_task id → done in this run

	now func() time.Time
}

// New opens a run for the given routine. Entries whose task template has been
// deleted are skipped rather than played. Routines with no playable tasks are
// refused. now may be nil, defaulting to time.Now.
func New(detail model.RoutineDetail, token string, now func() time.Time) (*Run, error) {
	if now == nil {
		now = time.Now
	}

	// Skipped entries count as completed so a surviving task that depends on
	// one is not blocked for the whole run.
	completed := make(map[int64]bool)
	var playable []model.RoutineItem
	for _, item := range detail.Entries {
		if item.Task == nil {
			completed[item.RoutineTask.ID] = true
			continue
		}
		playable = append(playable, item)
	}
	if len(playable) == 0 {
		return nil, ErrNoTasks
	}

	return &Run{
		Token:       token,
		RoutineID:   detail.Routine.ID,
		ChildID:     detail.Routine.ChildID,
		bonusPoints: detail.Routine.BonusPoints,
		entries:     playable,
		state:       StateTask,
		completed:   completed,
		now:         now,
	}, nil
}

// State returns the current state of the run.
func (r *Run) State() State { return r.state }

// CurrentIndex returns the position of the task being played.
func (r *Run) CurrentIndex() int { return r.current }

// Current returns the entry being played, or nil outside the task/status states.
func (r *Run) Current() *model.RoutineItem {
	if r.current >= len(r.entries) {
		return nil
	}
	item := r.entries[r.current]
	return &item
}

// Remaining returns how many tasks are left including the current one.
func (r *Run) Remaining() int {
	if r.current >= len(r.entries) {
		return 0
	}
	return len(r.entries) - r.current
}

// StartTask begins timing the current task. It is called when the task screen
// is actually displayed, not when the run advances, so UI transition latency
// is never counted against the child. Starting twice is a no-op that keeps
// the original start instant.
func (r *Run) StartTask() error {
	if r.state != StateTask {
		return fmt.Errorf("cannot start task in state %q", r.state)
	}
	entry := r.entries[r.current]
	if dep := entry.RoutineTask.DependencyID; dep != nil && !r.completed[*dep] {
		return ErrDependencyIncomplete
	}
	if !r.started {
		r.taskStart = r.now()
		r.started = true
	}
	return nil
}

// CompleteTask stops the clock for the current task, computes its award, and
// moves the run to the status screen. Overtime on timed tasks is buffered
// locally for a later best-effort flush; it is never sent eagerly.
func (r *Run) CompleteTask() (StatusView, error) {
	if r.state != StateTask {
		return StatusView{}, fmt.Errorf("cannot complete task in state %q", r.state)
	}
	if !r.started {
		return StatusView{}, errors.New("task not started")
	}

	entry := r.entries[r.current]
	elapsed := r.now().Sub(r.taskStart)
	actual := int(math.Ceil(elapsed.Seconds()))
	if actual < 0 {
		actual = 0
	}

	metric := model.TaskMetric{
		TaskID:           entry.Task.ID,
		ScheduledSeconds: entry.Task.ScheduledSeconds(),
		ActualSeconds:    actual,
	}
	result := points.Result(entry.Task.PointValue, metric)
	r.results = append(r.results, result)
	r.completed[entry.RoutineTask.ID] = true

	if over := points.Overtime(metric); over > 0 {
		r.overtime = append(r.overtime, model.OvertimeEntry{
			RoutineID:        r.RoutineID,
			RoutineTaskID:    entry.RoutineTask.ID,
			ChildID:          r.ChildID,
			ScheduledSeconds: metric.ScheduledSeconds,
			ActualSeconds:    metric.ActualSeconds,
			OvertimeSeconds:  over,
			OccurredAt:       r.now(),
		})
	}

	r.started = false
	r.state = StateStatus

	return StatusView{
		Result:   result,
		Feedback: points.Tier(result.Tier).Feedback(),
	}, nil
}

// Advance moves from the status screen to the next task, or to the summary
// when the run is exhausted.
func (r *Run) Advance() error {
	if r.state != StateStatus {
		return fmt.Errorf("cannot advance in state %q", r.state)
	}
	r.current++
	if r.current >= len(r.entries) {
		r.state = StateSummary
	} else {
		r.state = StateTask
	}
	return nil
}

// Results returns the per-task results recorded so far.
func (r *Run) Results() []model.TaskResult {
	return append([]model.TaskResult(nil), r.results...)
}

// Metrics returns the timing metrics for settlement submission.
func (r *Run) Metrics() []model.TaskMetric {
	metrics := make([]model.TaskMetric, 0, len(r.results))
	for _, res := range r.results {
		metrics = append(metrics, model.TaskMetric{
			TaskID:           res.TaskID,
			ScheduledSeconds: res.ScheduledSeconds,
			ActualSeconds:    res.ActualSeconds,
		})
	}
	return metrics
}

// Summary tallies the locally-computed totals shown optimistically before the
// settlement response arrives. The server's recomputation is authoritative.
type Summary struct {
	Points        int  `json:"points"`
	Bonus         int  `json:"bonus"`
	BonusEligible bool `json:"bonus_eligible"`
	TasksPlayed   int  `json:"tasks_played"`
}

// LocalSummary returns the optimistic tally for the summary screen.
func (r *Run) LocalSummary() Summary {
	total := 0
	for _, res := range r.results {
		total += res.AwardedPoints
	}
	s := Summary{Points: total, TasksPlayed: len(r.results)}
	if points.BonusEligible(r.results) {
		s.BonusEligible = true
		s.Bonus = r.bonusPoints
	}
	return s
}

// DrainOvertime returns and clears the buffered overtime entries. Called once
// after settlement settles (success or failure) for the best-effort flush.
func (r *Run) DrainOvertime() []model.OvertimeEntry {
	out := r.overtime
	r.overtime = nil
	return out
}

// RoutineTaskIDs returns the playable routine_task ids in order, for status
// resets.
func (r *Run) RoutineTaskIDs() []int64 {
	ids := make([]int64, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.RoutineTask.ID)
	}
	return ids
}

// Exit abandons the run without awarding anything and clears all buffers.
func (r *Run) Exit() {
	r.state = StateIdle
	r.started = false
	r.results = nil
	r.overtime = nil
	r.completed = make(map[int64]bool)
}

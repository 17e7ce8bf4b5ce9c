package model

import "time"

// RunStatus is the persisted per-task status mirrored during a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
)

// Routine is an ordered, reusable sequence of tasks assigned to one child,
// optionally carrying a completion bonus.
type Routine struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	ChildID     int64     `json:"child_id"`
	BonusPoints int       `json:"bonus_points"`
	StartTime   string    `json:"start_time"` // "HH:MM", informational schedule
	EndTime     string    `json:"end_time"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoutineTask joins a task template into a routine at a fixed position.
// DependencyID, if set, references another routine_tasks row earlier in the
// same routine.
type RoutineTask struct {
	ID            int64     `json:"id"`
	RoutineID     int64     `json:"routine_id"`
	TaskID        int64     `json:"task_id"`
	SequenceOrder int       `json:"sequence_order"`
	DependencyID  *int64    `json:"dependency_id"`
	RunStatus     RunStatus `json:"run_status"`
}

// RoutineDetail is a routine with its ordered task entries and the task
// templates they reference. Entries whose template was deleted out from under
// the routine carry a nil Task and are skipped by the run.
type RoutineDetail struct {
	Routine Routine       `json:"routine"`
	Entries []RoutineItem `json:"entries"`
}

type RoutineItem struct {
	RoutineTask RoutineTask `json:"routine_task"`
	Task        *Task       `json:"task"`
}

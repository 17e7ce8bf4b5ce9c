package model

import "time"

// TaskMetric is the per-task timing a client submits for settlement.
type TaskMetric struct {
	TaskID           int64 `json:"task_id"`
	ScheduledSeconds int   `json:"scheduled_seconds"`
	ActualSeconds    int   `json:"actual_seconds"`
}

// TaskResult is a server-recomputed award for one task in a run.
type TaskResult struct {
	TaskID           int64  `json:"task_id"`
	ScheduledSeconds int    `json:"scheduled_seconds"`
	ActualSeconds    int    `json:"actual_seconds"`
	AwardedPoints    int    `json:"awarded_points"`
	Tier             string `json:"tier"`
	Stars            int    `json:"stars"`
}

// Settlement records the one-time application of a run's points to a child's
// ledger. RunToken is unique per run and is the idempotency key.
type Settlement struct {
	ID          int64     `json:"id"`
	RoutineID   int64     `json:"routine_id"`
	ChildID     int64     `json:"child_id"`
	RunToken    string    `json:"run_token"`
	TaskPoints  int       `json:"task_points"`
	BonusPoints int       `json:"bonus_points"`
	NewTotal    int       `json:"new_total"`
	SettledAt   time.Time `json:"settled_at"`
}

// OvertimeSummary ranks a child or routine by accumulated overtime.
type OvertimeSummary struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	Occurrences          int    `json:"occurrences"`
	TotalOvertimeSeconds int    `json:"total_overtime_seconds"`
}

// OvertimeEvent is one logged overtime occurrence enriched with display names
// for the drill-down view.
type OvertimeEvent struct {
	OvertimeEntry
	RoutineTitle string `json:"routine_title"`
	ChildName    string `json:"child_name"`
}

// OvertimeEntry is one append-only overtime event: a task that ran past its
// allowance. OvertimeSeconds is actual minus scheduled and is positive by
// construction.
type OvertimeEntry struct {
	ID               int64     `json:"id"`
	RoutineID        int64     `json:"routine_id"`
	RoutineTaskID    int64     `json:"routine_task_id"`
	ChildID          int64     `json:"child_id"`
	ScheduledSeconds int       `json:"scheduled_seconds"`
	ActualSeconds    int       `json:"actual_seconds"`
	OvertimeSeconds  int       `json:"overtime_seconds"`
	OccurredAt       time.Time `json:"occurred_at"`
}

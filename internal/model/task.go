package model

import "time"

// Task is a point-bearing unit of work with an optional time allowance.
// TimeLimitMinutes of nil or 0 means the task is untimed.
type Task struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Category         string    `json:"category"`
	PointValue       int       `json:"point_value"`
	TimeLimitMinutes *int      `json:"time_limit_minutes"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ScheduledSeconds converts the task's time limit to seconds, clamping
// negatives to zero. Zero means untimed.
func (t Task) ScheduledSeconds() int {
	if t.TimeLimitMinutes == nil || *t.TimeLimitMinutes <= 0 {
		return 0
	}
	return *t.TimeLimitMinutes * 60
}

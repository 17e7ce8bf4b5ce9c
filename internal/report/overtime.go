// Package report shapes the append-only overtime log into the views the
// dashboard consumes. It is pure read-side aggregation; nothing here writes.
package report

import (
	"github.com/hfoster/routinely/internal/model"
)

// RoutineGroup collects one routine's overtime events within a day.
type RoutineGroup struct {
	RoutineID    int64                 `json:"routine_id"`
	RoutineTitle string                `json:"routine_title"`
	Events       []model.OvertimeEvent `json:"events"`
}

// DayGroup is one calendar day of overtime events, grouped by routine.
type DayGroup struct {
	Date     string         `json:"date"` // YYYY-MM-DD
	Routines []RoutineGroup `json:"routines"`
}

// GroupEvents arranges events (expected newest-first, as the store returns
// them) into day groups, then routine groups within each day. Order is
// preserved: the most recent day comes first, and routines appear in the
// order their latest event was logged.
func GroupEvents(events []model.OvertimeEvent) []DayGroup {
	var days []DayGroup
	dayIndex := make(map[string]int)

	for _, e := range events {
		date := e.OccurredAt.Format("2006-01-02")
		di, ok := dayIndex[date]
		if !ok {
			days = append(days, DayGroup{Date: date})
			di = len(days) - 1
			dayIndex[date] = di
		}

		day := &days[di]
		ri := -1
		for i, rg := range day.Routines {
			if rg.RoutineID == e.RoutineID {
				ri = i
				break
			}
		}
		if ri < 0 {
			day.Routines = append(day.Routines, RoutineGroup{
				RoutineID:    e.RoutineID,
				RoutineTitle: e.RoutineTitle,
			})
			ri = len(day.Routines) - 1
		}
		day.Routines[ri].Events = append(day.Routines[ri].Events, e)
	}

	return days
}

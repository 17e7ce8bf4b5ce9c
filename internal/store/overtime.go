package store

import (
	"database/sql"
	"fmt"

	"github.com/hfoster/routinely/internal/model"
)

// OvertimeStore owns the append-only overtime log. Entries are only ever
// inserted and aggregated, never mutated; summaries are computed at query
// time instead of maintaining counters that could drift from the log.
type OvertimeStore struct {
	db *sql.DB
}

func NewOvertimeStore(db *sql.DB) *OvertimeStore {
	return &OvertimeStore{db: db}
}

// Append inserts a batch of overtime entries in one transaction. The stored
// overtime is derived from scheduled and actual seconds; entries that did not
// actually run over, or whose task is untimed, are dropped.
func (s *OvertimeStore) Append(entries []model.OvertimeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO overtime_log (routine_id, routine_task_id, child_id, scheduled_seconds, actual_seconds, overtime_seconds, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		// Overtime is always recomputed from the submitted times; the
		// client-filled OvertimeSeconds field is not trusted.
		over := e.ActualSeconds - e.ScheduledSeconds
		if e.ScheduledSeconds <= 0 || over <= 0 {
			continue
		}
		if _, err := stmt.Exec(
			e.RoutineID, e.RoutineTaskID, e.ChildID,
			e.ScheduledSeconds, e.ActualSeconds, over, e.OccurredAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert overtime entry: %w", err)
		}
	}
	return tx.Commit()
}

// SummaryByChild returns the top-N children by total overtime, descending.
func (s *OvertimeStore) SummaryByChild(limit int) ([]model.OvertimeSummary, error) {
	rows, err := s.db.Query(
		`SELECT o.child_id, COALESCE(m.name, 'Unknown'), COUNT(*), SUM(o.overtime_seconds)
		 FROM overtime_log o
		 LEFT JOIN family_members m ON m.id = o.child_id
		 GROUP BY o.child_id
		 ORDER BY SUM(o.overtime_seconds) DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize overtime by child: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// SummaryByRoutine returns the top-N routines by total overtime, descending.
func (s *OvertimeStore) SummaryByRoutine(limit int) ([]model.OvertimeSummary, error) {
	rows, err := s.db.Query(
		`SELECT o.routine_id, COALESCE(r.title, 'Unknown'), COUNT(*), SUM(o.overtime_seconds)
		 FROM overtime_log o
		 LEFT JOIN routines r ON r.id = o.routine_id
		 GROUP BY o.routine_id
		 ORDER BY SUM(o.overtime_seconds) DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize overtime by routine: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

func collectSummaries(rows *sql.Rows) ([]model.OvertimeSummary, error) {
	var summaries []model.OvertimeSummary
	for rows.Next() {
		var s model.OvertimeSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Occurrences, &s.TotalOvertimeSeconds); err != nil {
			return nil, fmt.Errorf("scan overtime summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListEvents returns all overtime events newest first, enriched with routine
// and child names for the drill-down view.
func (s *OvertimeStore) ListEvents() ([]model.OvertimeEvent, error) {
	rows, err := s.db.Query(
		`SELECT o.id, o.routine_id, o.routine_task_id, o.child_id,
		        o.scheduled_seconds, o.actual_seconds, o.overtime_seconds, o.occurred_at,
		        COALESCE(r.title, 'Unknown'), COALESCE(m.name, 'Unknown')
		 FROM overtime_log o
		 LEFT JOIN routines r ON r.id = o.routine_id
		 LEFT JOIN family_members m ON m.id = o.child_id
		 ORDER BY o.occurred_at DESC, o.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list overtime events: %w", err)
	}
	defer rows.Close()

	var events []model.OvertimeEvent
	for rows.Next() {
		var e model.OvertimeEvent
		err := rows.Scan(
			&e.ID, &e.RoutineID, &e.RoutineTaskID, &e.ChildID,
			&e.ScheduledSeconds, &e.ActualSeconds, &e.OvertimeSeconds, &e.OccurredAt,
			&e.RoutineTitle, &e.ChildName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan overtime event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"

	"github.com/hfoster/routinely/internal/builder"
	"github.com/hfoster/routinely/internal/model"
)

type RoutineStore struct {
	db *sql.DB
}

func NewRoutineStore(db *sql.DB) *RoutineStore {
	return &RoutineStore{db: db}
}

func scanRoutine(scanner interface{ Scan(...any) error }) (*model.Routine, error) {
	var r model.Routine
	err := scanner.Scan(&r.ID, &r.Title, &r.ChildID, &r.BonusPoints, &r.StartTime, &r.EndTime, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const routineCols = `id, title, child_id, bonus_points, start_time, end_time, created_at, updated_at`

// Create persists a routine and its ordered task entries from a builder plan.
// Plan dependencies reference task ids; they are resolved to routine_task rows
// here, and any dependency that does not precede its depender is dropped.
func (s *RoutineStore) Create(title string, childID int64, bonusPoints int, startTime, endTime string, plan builder.Plan) (*model.RoutineDetail, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO routines (title, child_id, bonus_points, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
		title, childID, bonusPoints, startTime, endTime,
	)
	if err != nil {
		return nil, fmt.Errorf("insert routine: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := insertEntries(tx, id, plan); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetDetail(id)
}

// insertEntries writes the routine_tasks rows for a plan inside tx.
func insertEntries(tx *sql.Tx, routineID int64, plan builder.Plan) error {
	// Invariant repair happens in the builder; loading the plan through it
	// covers plans submitted directly over the API.
	entries := builder.New(plan.Tasks).Entries()

	rowIDs := make(map[int64]int64, len(entries)) // task id → routine_task id
	for i, e := range entries {
		result, err := tx.Exec(
			`INSERT INTO routine_tasks (routine_id, task_id, sequence_order) VALUES (?, ?, ?)`,
			routineID, e.TaskID, i,
		)
		if err != nil {
			return fmt.Errorf("insert routine task: %w", err)
		}
		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		rowIDs[e.TaskID] = rowID
	}

	for _, e := range entries {
		if e.DependencyID == nil {
			continue
		}
		depRow, ok := rowIDs[*e.DependencyID]
		if !ok {
			continue
		}
		if _, err := tx.Exec(
			`UPDATE routine_tasks SET dependency_id = ? WHERE id = ?`,
			depRow, rowIDs[e.TaskID],
		); err != nil {
			return fmt.Errorf("set dependency: %w", err)
		}
	}
	return nil
}

func (s *RoutineStore) GetByID(id int64) (*model.Routine, error) {
	row := s.db.QueryRow(`SELECT `+routineCols+` FROM routines WHERE id = ?`, id)
	r, err := scanRoutine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get routine: %w", err)
	}
	return r, nil
}

// GetDetail loads a routine with its ordered entries and task templates.
// Entries whose template has been deleted carry a nil Task.
func (s *RoutineStore) GetDetail(id int64) (*model.RoutineDetail, error) {
	r, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT rt.id, rt.routine_id, rt.task_id, rt.sequence_order, rt.dependency_id, rt.run_status,
		        t.id, t.title, t.category, t.point_value, t.time_limit_minutes, t.created_at, t.updated_at
		 FROM routine_tasks rt
		 LEFT JOIN tasks t ON t.id = rt.task_id
		 WHERE rt.routine_id = ?
		 ORDER BY rt.sequence_order ASC, rt.id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list routine tasks: %w", err)
	}
	defer rows.Close()

	detail := &model.RoutineDetail{Routine: *r}
	for rows.Next() {
		var rt model.RoutineTask
		var dep sql.NullInt64
		var taskID sql.NullInt64
		var title, category sql.NullString
		var pointValue, limit sql.NullInt64
		var createdAt, updatedAt sql.NullTime

		err := rows.Scan(
			&rt.ID, &rt.RoutineID, &rt.TaskID, &rt.SequenceOrder, &dep, &rt.RunStatus,
			&taskID, &title, &category, &pointValue, &limit, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan routine task: %w", err)
		}
		if dep.Valid {
			rt.DependencyID = &dep.Int64
		}

		item := model.RoutineItem{RoutineTask: rt}
		if taskID.Valid {
			t := model.Task{
				ID:         taskID.Int64,
				Title:      title.String,
				Category:   category.String,
				PointValue: int(pointValue.Int64),
				CreatedAt:  createdAt.Time,
				UpdatedAt:  updatedAt.Time,
			}
			if limit.Valid {
				m := int(limit.Int64)
				t.TimeLimitMinutes = &m
			}
			item.Task = &t
		}
		detail.Entries = append(detail.Entries, item)
	}
	return detail, rows.Err()
}

func (s *RoutineStore) List() ([]model.Routine, error) {
	rows, err := s.db.Query(`SELECT ` + routineCols + ` FROM routines ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()
	return collectRoutines(rows)
}

func (s *RoutineStore) ListByChild(childID int64) ([]model.Routine, error) {
	rows, err := s.db.Query(`SELECT `+routineCols+` FROM routines WHERE child_id = ? ORDER BY title ASC`, childID)
	if err != nil {
		return nil, fmt.Errorf("list routines by child: %w", err)
	}
	defer rows.Close()
	return collectRoutines(rows)
}

func collectRoutines(rows *sql.Rows) ([]model.Routine, error) {
	var routines []model.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		routines = append(routines, *r)
	}
	return routines, rows.Err()
}

// Update replaces the routine's fields and its entire task list.
func (s *RoutineStore) Update(id int64, title string, childID int64, bonusPoints int, startTime, endTime string, plan builder.Plan) (*model.RoutineDetail, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE routines SET title = ?, child_id = ?, bonus_points = ?, start_time = ?, end_time = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, childID, bonusPoints, startTime, endTime, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update routine: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM routine_tasks WHERE routine_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear routine tasks: %w", err)
	}
	if err := insertEntries(tx, id, plan); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetDetail(id)
}

func (s *RoutineStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete routine: %w", err)
	}
	return nil
}

// SetTaskStatus mirrors a single task's run status. Best-effort path.
func (s *RoutineStore) SetTaskStatus(routineTaskID int64, status model.RunStatus) error {
	_, err := s.db.Exec(`UPDATE routine_tasks SET run_status = ? WHERE id = ?`, string(status), routineTaskID)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	return nil
}

// ResetStatuses marks every task in the routine pending again.
func (s *RoutineStore) ResetStatuses(routineID int64) error {
	_, err := s.db.Exec(`UPDATE routine_tasks SET run_status = 'pending' WHERE routine_id = ?`, routineID)
	if err != nil {
		return fmt.Errorf("reset statuses: %w", err)
	}
	return nil
}

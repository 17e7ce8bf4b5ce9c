package store

import (
	"database/sql"
	"fmt"

	"github.com/hfoster/routinely/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var limit sql.NullInt64

	err := scanner.Scan(&t.ID, &t.Title, &t.Category, &t.PointValue, &limit, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if limit.Valid {
		m := int(limit.Int64)
		t.TimeLimitMinutes = &m
	}
	return &t, nil
}

const taskCols = `id, title, category, point_value, time_limit_minutes, created_at, updated_at`

func (s *TaskStore) Create(title, category string, pointValue int, timeLimitMinutes *int) (*model.Task, error) {
	var limit sql.NullInt64
	if timeLimitMinutes != nil {
		limit = sql.NullInt64{Int64: int64(*timeLimitMinutes), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO tasks (title, category, point_value, time_limit_minutes) VALUES (?, ?, ?, ?)`,
		title, category, pointValue, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) List() ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskCols + ` FROM tasks ORDER BY category ASC, title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Update(id int64, title, category string, pointValue int, timeLimitMinutes *int) (*model.Task, error) {
	var limit sql.NullInt64
	if timeLimitMinutes != nil {
		limit = sql.NullInt64{Int64: int64(*timeLimitMinutes), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, category = ?, point_value = ?, time_limit_minutes = ? WHERE id = ?`,
		title, category, pointValue, limit, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

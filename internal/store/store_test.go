package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/hfoster/routinely/internal/database"
	"github.com/hfoster/routinely/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	// A file-backed database: with ":memory:" each pooled connection gets
	// its own empty database, so queries on a second connection fail with
	// "no such table".
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedChild creates a child member and returns its id.
func seedChild(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	m, err := NewFamilyMemberStore(db).Create(name, model.RoleChild, "#4a90d9", "🦊")
	if err != nil {
		t.Fatalf("seed child: %v", err)
	}
	return m.ID
}

// seedTask creates a task template and returns its id.
func seedTask(t *testing.T, db *sql.DB, title string, pointValue int, limitMinutes *int) int64 {
	t.Helper()
	task, err := NewTaskStore(db).Create(title, "morning", pointValue, limitMinutes)
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task.ID
}

func intp(v int) *int { return &v }

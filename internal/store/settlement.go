package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hfoster/routinely/internal/model"
)

type SettlementStore struct {
	db *sql.DB
}

func NewSettlementStore(db *sql.DB) *SettlementStore {
	return &SettlementStore{db: db}
}

// SettleRequest carries the server-recomputed outcome of a run. Awards are
// computed by the caller from submitted metrics, never taken from the client.
type SettleRequest struct {
	RoutineID   int64
	ChildID     int64
	RunToken    string
	Results     []model.TaskResult
	BonusPoints int // 0 when the run is not bonus eligible
}

// Settle applies a run's points to the child's ledger exactly once. The run
// token is unique-indexed; a repeat settlement returns the original row with
// duplicate=true and writes nothing. Concurrent attempts for the same token
// serialize on that index.
func (s *SettlementStore) Settle(req SettleRequest) (*model.Settlement, bool, error) {
	taskPoints := 0
	for _, r := range req.Results {
		taskPoints += r.AwardedPoints
	}
	delta := taskPoints + req.BonusPoints

	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO settlements (routine_id, child_id, run_token, task_points, bonus_points) VALUES (?, ?, ?, ?, ?)`,
		req.RoutineID, req.ChildID, req.RunToken, taskPoints, req.BonusPoints,
	)
	if err != nil {
		if isUniqueViolation(err) {
			prior, gerr := s.GetByToken(req.RunToken)
			if gerr != nil {
				return nil, false, gerr
			}
			return prior, true, nil
		}
		return nil, false, fmt.Errorf("insert settlement: %w", err)
	}
	settlementID, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO point_entries (member_id, delta, reason, settlement_id) VALUES (?, ?, ?, ?)`,
		req.ChildID, delta, "routine settlement", settlementID,
	); err != nil {
		return nil, false, fmt.Errorf("insert point entry: %w", err)
	}

	var total int
	if err := tx.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM point_entries WHERE member_id = ?`,
		req.ChildID,
	).Scan(&total); err != nil {
		return nil, false, fmt.Errorf("sum ledger: %w", err)
	}

	if _, err := tx.Exec(`UPDATE settlements SET new_total = ? WHERE id = ?`, total, settlementID); err != nil {
		return nil, false, fmt.Errorf("record new total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		// A concurrent settle may have won the unique index race at commit.
		if isUniqueViolation(err) {
			prior, gerr := s.GetByToken(req.RunToken)
			if gerr != nil {
				return nil, false, gerr
			}
			return prior, true, nil
		}
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	return s.getByID(settlementID)
}

func (s *SettlementStore) getByID(id int64) (*model.Settlement, bool, error) {
	row := s.db.QueryRow(`SELECT `+settlementCols+` FROM settlements WHERE id = ?`, id)
	st, err := scanSettlement(row)
	if err != nil {
		return nil, false, fmt.Errorf("get settlement: %w", err)
	}
	return st, false, nil
}

// GetByToken returns the settlement for a run token, or nil if none exists.
func (s *SettlementStore) GetByToken(token string) (*model.Settlement, error) {
	row := s.db.QueryRow(`SELECT `+settlementCols+` FROM settlements WHERE run_token = ?`, token)
	st, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement by token: %w", err)
	}
	return st, nil
}

// ListByChild returns a child's settlements, newest first.
func (s *SettlementStore) ListByChild(childID int64) ([]model.Settlement, error) {
	rows, err := s.db.Query(
		`SELECT `+settlementCols+` FROM settlements WHERE child_id = ? ORDER BY settled_at DESC, id DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []model.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		settlements = append(settlements, *st)
	}
	return settlements, rows.Err()
}

func scanSettlement(scanner interface{ Scan(...any) error }) (*model.Settlement, error) {
	var st model.Settlement
	err := scanner.Scan(&st.ID, &st.RoutineID, &st.ChildID, &st.RunToken, &st.TaskPoints, &st.BonusPoints, &st.NewTotal, &st.SettledAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

const settlementCols = `id, routine_id, child_id, run_token, task_points, bonus_points, new_total, settled_at`

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

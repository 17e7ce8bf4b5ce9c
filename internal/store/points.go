package store

import (
	"database/sql"
	"fmt"

	"github.com/hfoster/routinely/internal/model"
)

// PointsStore is the sole writer of the per-member point ledger outside of
// settlement. The ledger is append-only; balances are sums over deltas.
type PointsStore struct {
	db *sql.DB
}

func NewPointsStore(db *sql.DB) *PointsStore {
	return &PointsStore{db: db}
}

// ApplyDelta appends a signed delta to the member's ledger and returns the
// new total.
func (s *PointsStore) ApplyDelta(memberID int64, delta int, reason string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO point_entries (member_id, delta, reason) VALUES (?, ?, ?)`,
		memberID, delta, reason,
	); err != nil {
		return 0, fmt.Errorf("insert point entry: %w", err)
	}

	var total int
	if err := tx.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM point_entries WHERE member_id = ?`,
		memberID,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// Balance returns the member's current total.
func (s *PointsStore) Balance(memberID int64) (*model.PointBalance, error) {
	var total int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM point_entries WHERE member_id = ?`,
		memberID,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("sum ledger: %w", err)
	}

	var name string
	err = s.db.QueryRow(`SELECT name FROM family_members WHERE id = ?`, memberID).Scan(&name)
	if err == sql.ErrNoRows {
		name = "Unknown"
	} else if err != nil {
		return nil, fmt.Errorf("get member name: %w", err)
	}

	return &model.PointBalance{MemberID: memberID, MemberName: name, Total: total}, nil
}

// ListEntries returns a member's ledger entries, newest first.
func (s *PointsStore) ListEntries(memberID int64) ([]model.PointEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, member_id, delta, reason, settlement_id, created_at
		 FROM point_entries WHERE member_id = ? ORDER BY created_at DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list point entries: %w", err)
	}
	defer rows.Close()

	var entries []model.PointEntry
	for rows.Next() {
		var e model.PointEntry
		var settlementID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Delta, &e.Reason, &settlementID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan point entry: %w", err)
		}
		if settlementID.Valid {
			e.SettlementID = &settlementID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

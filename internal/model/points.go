package model

import "time"

// PointEntry is one signed delta applied to a member's point ledger. The
// ledger is append-only; a member's balance is the sum of their deltas.
type PointEntry struct {
	ID           int64     `json:"id"`
	MemberID     int64     `json:"member_id"`
	Delta        int       `json:"delta"`
	Reason       string    `json:"reason"`
	SettlementID *int64    `json:"settlement_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type PointBalance struct {
	MemberID   int64  `json:"member_id"`
	MemberName string `json:"member_name"`
	Total      int    `json:"total"`
}

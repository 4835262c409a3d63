package models

import "time"

// Ledger entry types.
const (
	LedgerTypeAward      = "AWARD"
	LedgerTypeManual     = "MANUAL"
	LedgerTypeRedemption = "REDEMPTION"
)

// UnknownActivity labels history rows whose activity or prize reference no longer resolves.
const UnknownActivity = "Unknown Activity"

// LedgerEntry is one immutable signed point movement for a student.
type LedgerEntry struct {
	ID            int64     `db:"id" json:"id"`
	StudentID     int64     `db:"student_id" json:"student_id"`
	Points        int64     `db:"points" json:"points"`
	ActivityID    *int64    `db:"activity_id" json:"activity_id,omitempty"`
	PrizeID       *int64    `db:"prize_id" json:"prize_id,omitempty"`
	ActivityType  string    `db:"activity_type" json:"activity_type"`
	Description   string    `db:"description" json:"description,omitempty"`
	RecordedBy    string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ReferenceName string    `db:"reference_name" json:"reference_name,omitempty"`
}

// Balance pairs the cached total with the value recomputed from the ledger.
type Balance struct {
	StudentID int64 `db:"student_id" json:"student_id"`
	Cached    int64 `db:"cached" json:"cached"`
	LedgerSum int64 `db:"ledger_sum" json:"ledger_sum"`
}

// Consistent reports whether the cached total matches the ledger.
func (b Balance) Consistent() bool {
	return b.Cached == b.LedgerSum
}

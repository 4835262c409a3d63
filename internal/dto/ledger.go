package dto

import "github.com/noah-isme/points-ledger-api/internal/models"

// AwardPointsRequest records a signed point movement. ActivityID wins over ActivityName;
// when neither resolves the entry is stored as a manual adjustment.
type AwardPointsRequest struct {
	StudentID    int64  `json:"studentId" validate:"required,gt=0"`
	Points       int64  `json:"points" validate:"required"`
	ActivityID   *int64 `json:"activityId" validate:"omitempty,gt=0"`
	ActivityName string `json:"activityName" validate:"max=200"`
	Description  string `json:"description" validate:"max=500"`
	Actor        string `json:"-"`
}

// RedeemPrizeRequest exchanges points for one unit of a prize.
type RedeemPrizeRequest struct {
	StudentID int64  `json:"studentId" validate:"required,gt=0"`
	PrizeID   int64  `json:"prizeId" validate:"required,gt=0"`
	Actor     string `json:"-"`
}

// ReconcileRequest asks for a balance check and optionally a repair.
type ReconcileRequest struct {
	Repair bool `json:"repair"`
}

// LedgerResult reports the outcome of an award or redemption. A rejected operation carries
// Success=false with the reason in Code and Message and leaves no trace in the store.
type LedgerResult struct {
	Success        bool                `json:"success"`
	Code           string              `json:"code,omitempty"`
	Message        string              `json:"message"`
	Entry          *models.LedgerEntry `json:"entry,omitempty"`
	Balance        int64               `json:"balance"`
	StockRemaining *int64              `json:"stockRemaining,omitempty"`
}

// BalanceResponse is the cached balance of a student.
type BalanceResponse struct {
	StudentID int64 `json:"studentId"`
	Balance   int64 `json:"balance"`
}

// ReconcileResponse reports the cached and ledger-derived balances.
type ReconcileResponse struct {
	StudentID  int64 `json:"studentId"`
	Cached     int64 `json:"cached"`
	LedgerSum  int64 `json:"ledgerSum"`
	Consistent bool  `json:"consistent"`
	Repaired   bool  `json:"repaired"`
}

package models

import "time"

// Audit action types.
const (
	AuditActionCreateStudent     = "CREATE_STUDENT"
	AuditActionUpdateStudent     = "UPDATE_STUDENT"
	AuditActionDeactivateStudent = "DEACTIVATE_STUDENT"
	AuditActionDuplicateOverride = "DUPLICATE_OVERRIDE"
	AuditActionPointAward        = "POINT_AWARD"
	AuditActionPrizeRedeem       = "PRIZE_REDEEM"
	AuditActionCreateActivity    = "CREATE_ACTIVITY"
	AuditActionUpdateActivity    = "UPDATE_ACTIVITY"
	AuditActionCreatePrize       = "CREATE_PRIZE"
	AuditActionInventoryUpdate   = "INVENTORY_UPDATE"
	AuditActionBalanceReconcile  = "BALANCE_RECONCILE"
	AuditActionSettingUpdate     = "SETTING_UPDATE"
)

// Audited tables.
const (
	TableStudents       = "students"
	TableActivities     = "activities"
	TablePrizeInventory = "prize_inventory"
	TableSystemSettings = "system_settings"
)

// DefaultAuditLimit bounds audit listings when no limit is supplied.
const DefaultAuditLimit = 100

// AuditEntry is an append-only record of who changed what.
type AuditEntry struct {
	ID          int64     `db:"id" json:"id"`
	EventTime   time.Time `db:"event_time" json:"event_time"`
	ActionType  string    `db:"action_type" json:"action_type"`
	Actor       string    `db:"actor" json:"actor"`
	TargetTable string    `db:"target_table" json:"target_table"`
	TargetID    *int64    `db:"target_id" json:"target_id,omitempty"`
	Details     string    `db:"details" json:"details,omitempty"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	ActionType  string
	Actor       string
	TargetTable string
	TargetID    *int64
	Limit       int
}

package models

import "time"

// Known setting keys.
const (
	SettingPointAlertThreshold = "POINT_ALERT_THRESHOLD"
	SettingAlertRecipients     = "ALERT_RECIPIENTS"
)

// Setting is a persisted runtime setting.
type Setting struct {
	Key         string    `db:"setting_key" json:"key"`
	Value       string    `db:"setting_value" json:"value"`
	Description string    `db:"description" json:"description,omitempty"`
	UpdatedBy   string    `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

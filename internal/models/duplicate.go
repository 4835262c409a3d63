package models

import (
	"encoding/json"
	"time"
)

// Duplicate log outcomes.
const (
	DuplicateActionChecked  = "checked"
	DuplicateActionOverride = "override_create"
)

// DuplicateLog records a screening that surfaced candidate duplicates.
type DuplicateLog struct {
	ID            int64           `db:"id" json:"id"`
	EventTime     time.Time       `db:"event_time" json:"event_time"`
	CheckedName   string          `db:"checked_name" json:"checked_name"`
	CheckedPhone  string          `db:"checked_phone" json:"checked_phone,omitempty"`
	CheckedEmail  string          `db:"checked_email" json:"checked_email,omitempty"`
	Matches       json.RawMessage `db:"matches" json:"matches"`
	Actor         string          `db:"actor" json:"actor,omitempty"`
	ActionTaken   string          `db:"action_taken" json:"action_taken"`
	Justification string          `db:"justification" json:"justification,omitempty"`
}

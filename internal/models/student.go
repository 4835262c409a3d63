package models

import "time"

// Student represents a learner enrolled in the rewards programme.
// TotalPoints is a cached sum of the student's ledger entries.
type Student struct {
	ID          int64      `db:"id" json:"id"`
	FullName    string     `db:"full_name" json:"full_name"`
	Nickname    string     `db:"nickname" json:"nickname,omitempty"`
	Phone       string     `db:"phone" json:"phone,omitempty"`
	Email       string     `db:"email" json:"email,omitempty"`
	ParentName  string     `db:"parent_name" json:"parent_name,omitempty"`
	Classroom   string     `db:"classroom" json:"classroom,omitempty"`
	Grade       string     `db:"grade" json:"grade,omitempty"`
	SMSConsent  bool       `db:"sms_consent" json:"sms_consent"`
	Active      bool       `db:"active" json:"active"`
	TotalPoints int64      `db:"total_points" json:"total_points"`
	CreatedBy   string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ModifiedBy  string     `db:"modified_by" json:"modified_by,omitempty"`
	ModifiedAt  *time.Time `db:"modified_at" json:"modified_at,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search          string
	IncludeInactive bool
	All             bool
	Limit           int
}

// DefaultStudentSearchLimit caps search results unless all rows are requested.
const DefaultStudentSearchLimit = 50

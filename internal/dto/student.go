package dto

// CreateStudentRequest enrolls a student. AllowDuplicate with a Justification overrides the
// duplicate screen.
type CreateStudentRequest struct {
	FullName       string `json:"fullName" validate:"required,min=2,max=200,notnumeric"`
	Nickname       string `json:"nickname" validate:"max=100"`
	Phone          string `json:"phone" validate:"omitempty,mxphone"`
	Email          string `json:"email" validate:"omitempty,max=254,email"`
	ParentName     string `json:"parentName" validate:"max=200"`
	Classroom      string `json:"classroom" validate:"max=100"`
	Grade          string `json:"grade" validate:"max=50"`
	SMSConsent     bool   `json:"smsConsent"`
	AllowDuplicate bool   `json:"allowDuplicate"`
	Justification  string `json:"justification" validate:"required_if=AllowDuplicate true,max=500"`
	Actor          string `json:"-"`
}

// UpdateStudentRequest replaces the editable fields of a student.
type UpdateStudentRequest struct {
	FullName   string `json:"fullName" validate:"required,min=2,max=200,notnumeric"`
	Nickname   string `json:"nickname" validate:"max=100"`
	Phone      string `json:"phone" validate:"omitempty,mxphone"`
	Email      string `json:"email" validate:"omitempty,max=254,email"`
	ParentName string `json:"parentName" validate:"max=200"`
	Classroom  string `json:"classroom" validate:"max=100"`
	Grade      string `json:"grade" validate:"max=50"`
	SMSConsent bool   `json:"smsConsent"`
	Actor      string `json:"-"`
}

// DuplicateCheckRequest screens a prospective student without creating it.
type DuplicateCheckRequest struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	MaxResults int    `json:"maxResults" validate:"gte=0,lte=50"`
}

// DuplicateMatch is one candidate returned by the duplicate screen.
type DuplicateMatch struct {
	StudentID  int64   `json:"studentId"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone,omitempty"`
	Email      string  `json:"email,omitempty"`
	Classroom  string  `json:"classroom,omitempty"`
	Confidence int     `json:"confidence"`
	Score      float64 `json:"score"`
}

// CreateStudentResponse carries the new student and any candidates that were overridden.
type CreateStudentResponse struct {
	StudentID  int64            `json:"studentId"`
	Overridden []DuplicateMatch `json:"overridden,omitempty"`
}

// StudentQuery mirrors the supported listing filters.
type StudentQuery struct {
	Search          string `form:"search"`
	IncludeInactive bool   `form:"includeInactive"`
	All             bool   `form:"all"`
}

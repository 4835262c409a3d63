package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
)

// mexicoPhone accepts a 10-digit national number with an optional +52 prefix and common separators.
var mexicoPhone = regexp.MustCompile(`^(?:\+?52\s?)?(?:\(?\d{2,3}\)?[\s-]?)\d{7,8}$`)

type studentRepository interface {
	Search(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id int64, actor string) error
}

type duplicateLogRepository interface {
	Create(ctx context.Context, entry *models.DuplicateLog) error
	MarkOverride(ctx context.Context, id int64, actor, justification string) error
}

type duplicateFinder interface {
	FindDuplicates(ctx context.Context, name, phone, email string, maxResults int) ([]dto.DuplicateMatch, error)
}

// StudentService handles student use-cases.
type StudentService struct {
	repo       studentRepository
	duplicates duplicateFinder
	dupLog     duplicateLogRepository
	audit      *AuditService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, duplicates duplicateFinder, dupLog duplicateLogRepository, audit *AuditService, validate *validator.Validate, logger *zap.Logger) (*StudentService, error) {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := RegisterStudentValidations(validate); err != nil {
		return nil, err
	}
	return &StudentService{repo: repo, duplicates: duplicates, dupLog: dupLog, audit: audit, validator: validate, logger: logger}, nil
}

// RegisterStudentValidations adds the mxphone and notnumeric tags used by the student DTOs.
func RegisterStudentValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("mxphone", func(fl validator.FieldLevel) bool {
		return mexicoPhone.MatchString(strings.TrimSpace(fl.Field().String()))
	}); err != nil {
		return fmt.Errorf("register mxphone validation: %w", err)
	}
	if err := v.RegisterValidation("notnumeric", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, r := range value {
			if !unicode.IsNumber(r) {
				return true
			}
		}
		return value == ""
	}); err != nil {
		return fmt.Errorf("register notnumeric validation: %w", err)
	}
	return nil
}

// List searches students by name or id.
func (s *StudentService) List(ctx context.Context, query dto.StudentQuery) ([]models.Student, error) {
	filter := models.StudentFilter{
		Search:          strings.TrimSpace(query.Search),
		IncludeInactive: query.IncludeInactive,
		All:             query.All,
	}
	if !filter.All {
		filter.Limit = models.DefaultStudentSearchLimit
	}
	students, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	return student, nil
}

// CheckDuplicates screens a prospective student and logs any candidates found.
func (s *StudentService) CheckDuplicates(ctx context.Context, req dto.DuplicateCheckRequest, actor string) ([]dto.DuplicateMatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid duplicate check payload")
	}
	if strings.TrimSpace(req.FullName) == "" && strings.TrimSpace(req.Phone) == "" && strings.TrimSpace(req.Email) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name, phone or email is required")
	}
	matches, err := s.duplicates.FindDuplicates(ctx, req.FullName, req.Phone, req.Email, req.MaxResults)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		s.logScreening(ctx, req.FullName, req.Phone, req.Email, matches, actor)
	}
	return matches, nil
}

// Create validates and registers a student. When the duplicate screen finds candidates the
// request is refused with DUPLICATE_CANDIDATES and the candidates, unless the caller set
// AllowDuplicate with a justification, in which case the override is logged and audited.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, []dto.DuplicateMatch, error) {
	trimStudentFields(&req.FullName, &req.Nickname, &req.Phone, &req.Email, &req.ParentName, &req.Classroom, &req.Grade)
	req.Justification = strings.TrimSpace(req.Justification)
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	matches, err := s.duplicates.FindDuplicates(ctx, req.FullName, req.Phone, req.Email, 0)
	if err != nil {
		return nil, nil, err
	}
	var logID int64
	if len(matches) > 0 {
		logID = s.logScreening(ctx, req.FullName, req.Phone, req.Email, matches, req.Actor)
		if !req.AllowDuplicate {
			return nil, matches, appErrors.Clone(appErrors.ErrDuplicateCandidates,
				fmt.Sprintf("%d possible duplicate(s) found; resubmit with allowDuplicate and a justification to override", len(matches)))
		}
	}

	student := &models.Student{
		FullName:   req.FullName,
		Nickname:   req.Nickname,
		Phone:      req.Phone,
		Email:      strings.ToLower(req.Email),
		ParentName: req.ParentName,
		Classroom:  req.Classroom,
		Grade:      req.Grade,
		SMSConsent: req.SMSConsent,
		Active:     true,
		CreatedBy:  req.Actor,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, nil, storeError(err, "failed to create student")
	}
	s.audit.Record(ctx, models.AuditActionCreateStudent, req.Actor, models.TableStudents, &student.ID,
		fmt.Sprintf("created student %q", student.FullName))

	if len(matches) > 0 {
		if logID > 0 {
			if err := s.dupLog.MarkOverride(ctx, logID, req.Actor, req.Justification); err != nil {
				s.logger.Warn("duplicate log override failed", zap.Int64("log_id", logID), zap.Error(err))
			}
		}
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, fmt.Sprintf("%d", m.StudentID))
		}
		s.audit.Record(ctx, models.AuditActionDuplicateOverride, req.Actor, models.TableStudents, &student.ID,
			fmt.Sprintf("created despite candidates [%s]: %s", strings.Join(ids, ","), req.Justification))
		s.logger.Info("duplicate screen overridden",
			zap.Int64("student_id", student.ID),
			zap.Int("candidates", len(matches)),
			zap.String("actor", req.Actor),
		)
	}
	return student, matches, nil
}

// logScreening stores a duplicate screening with its candidates and returns the log id, or 0
// when the write failed.
func (s *StudentService) logScreening(ctx context.Context, name, phone, email string, matches []dto.DuplicateMatch, actor string) int64 {
	if s.dupLog == nil {
		return 0
	}
	payload, err := json.Marshal(matches)
	if err != nil {
		s.logger.Warn("encode duplicate matches failed", zap.Error(err))
		return 0
	}
	entry := &models.DuplicateLog{
		CheckedName:  strings.TrimSpace(name),
		CheckedPhone: strings.TrimSpace(phone),
		CheckedEmail: strings.TrimSpace(email),
		Matches:      payload,
		Actor:        actor,
		ActionTaken:  models.DuplicateActionChecked,
	}
	if err := s.dupLog.Create(ctx, entry); err != nil {
		s.logger.Warn("duplicate log write failed", zap.Error(err))
		return 0
	}
	return entry.ID
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id int64, req dto.UpdateStudentRequest) (*models.Student, error) {
	trimStudentFields(&req.FullName, &req.Nickname, &req.Phone, &req.Email, &req.ParentName, &req.Classroom, &req.Grade)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}

	student.FullName = req.FullName
	student.Nickname = req.Nickname
	student.Phone = req.Phone
	student.Email = strings.ToLower(req.Email)
	student.ParentName = req.ParentName
	student.Classroom = req.Classroom
	student.Grade = req.Grade
	student.SMSConsent = req.SMSConsent
	student.ModifiedBy = req.Actor

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, lookupError(err, "student not found", "failed to update student")
	}
	s.audit.Record(ctx, models.AuditActionUpdateStudent, req.Actor, models.TableStudents, &student.ID,
		fmt.Sprintf("updated student %q", student.FullName))
	return student, nil
}

// Deactivate marks a student inactive. Ledger history is kept.
func (s *StudentService) Deactivate(ctx context.Context, id int64, actor string) error {
	if err := s.repo.Deactivate(ctx, id, actor); err != nil {
		return lookupError(err, "student not found", "failed to deactivate student")
	}
	s.audit.Record(ctx, models.AuditActionDeactivateStudent, actor, models.TableStudents, &id, "student deactivated")
	return nil
}

func trimStudentFields(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

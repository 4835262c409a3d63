package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

const studentColumns = `id, full_name, COALESCE(nickname, '') AS nickname, COALESCE(phone, '') AS phone,
        COALESCE(email, '') AS email, COALESCE(parent_name, '') AS parent_name, COALESCE(classroom, '') AS classroom,
        COALESCE(grade, '') AS grade, sms_consent, active, total_points, COALESCE(created_by, '') AS created_by,
        created_at, COALESCE(modified_by, '') AS modified_by, modified_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Search returns students whose name or id matches the filter, newest id first.
func (r *StudentRepository) Search(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if !filter.IncludeInactive {
		conditions = append(conditions, "active = TRUE")
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR CAST(id AS TEXT) ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+term+"%")
	}

	query := fmt.Sprintf("SELECT %s FROM students WHERE %s ORDER BY full_name ASC, id ASC", studentColumns, strings.Join(conditions, " AND "))
	if !filter.All {
		limit := filter.Limit
		if limit <= 0 || limit > models.DefaultStudentSearchLimit {
			limit = models.DefaultStudentSearchLimit
		}
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	return students, nil
}

// ListActiveForMatching returns every active student ordered by id for duplicate screening.
func (r *StudentRepository) ListActiveForMatching(ctx context.Context) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE active = TRUE ORDER BY id ASC", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students for matching: %w", err)
	}
	return students, nil
}

// FindByID fetches a student by ID regardless of active state.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record with a zero balance.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	student.Active = true
	student.TotalPoints = 0
	const query = `INSERT INTO students (full_name, nickname, phone, email, parent_name, classroom, grade, sms_consent, active, total_points, created_by, created_at)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, TRUE, 0, $9, $10)
        RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		student.FullName, student.Nickname, student.Phone, student.Email, student.ParentName,
		student.Classroom, student.Grade, student.SMSConsent, student.CreatedBy, student.CreatedAt,
	).Scan(&student.ID); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies profile fields. The cached balance is never written here.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.ModifiedAt = &now
	const query = `UPDATE students SET full_name = $1, nickname = NULLIF($2, ''), phone = NULLIF($3, ''), email = NULLIF($4, ''),
        parent_name = NULLIF($5, ''), classroom = NULLIF($6, ''), grade = NULLIF($7, ''), sms_consent = $8,
        modified_by = $9, modified_at = $10 WHERE id = $11`
	res, err := r.db.ExecContext(ctx, query,
		student.FullName, student.Nickname, student.Phone, student.Email, student.ParentName,
		student.Classroom, student.Grade, student.SMSConsent, student.ModifiedBy, now, student.ID,
	)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate marks a student as inactive.
func (r *StudentRepository) Deactivate(ctx context.Context, id int64, actor string) error {
	const query = `UPDATE students SET active = FALSE, modified_by = $2, modified_at = $3 WHERE id = $1 AND active = TRUE`
	res, err := r.db.ExecContext(ctx, query, id, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate student rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

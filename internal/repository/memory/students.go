package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

// StudentRepository is the in-memory student repository.
type StudentRepository struct {
	s *Store
}

// Search mirrors the postgres search: name or id match, ordered by name then id.
func (r *StudentRepository) Search(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	term := strings.TrimSpace(filter.Search)
	out := sortedStudents(r.s.st.students, func(st models.Student) bool {
		return (filter.IncludeInactive || st.Active) && matchesSearch(st, term)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	if !filter.All {
		limit := filter.Limit
		if limit <= 0 || limit > models.DefaultStudentSearchLimit {
			limit = models.DefaultStudentSearchLimit
		}
		if len(out) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

// ListActiveForMatching returns active students ordered by id.
func (r *StudentRepository) ListActiveForMatching(ctx context.Context) ([]models.Student, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return sortedStudents(r.s.st.students, func(st models.Student) bool { return st.Active }), nil
}

// FindByID returns sql.ErrNoRows for unknown ids.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.st.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

// Create inserts an active student with a zero balance.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.nextStudent++
	student.ID = r.s.st.nextStudent
	student.Active = true
	student.TotalPoints = 0
	if student.CreatedAt.IsZero() {
		student.CreatedAt = r.s.now()
	}
	r.s.st.students[student.ID] = *student
	return nil
}

// Update copies profile fields only; the cached balance and active flag are left alone.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.st.students[student.ID]
	if !ok {
		return sql.ErrNoRows
	}
	now := r.s.now()
	current.FullName = student.FullName
	current.Nickname = student.Nickname
	current.Phone = student.Phone
	current.Email = student.Email
	current.ParentName = student.ParentName
	current.Classroom = student.Classroom
	current.Grade = student.Grade
	current.SMSConsent = student.SMSConsent
	current.ModifiedBy = student.ModifiedBy
	current.ModifiedAt = &now
	r.s.st.students[student.ID] = current
	student.ModifiedAt = &now
	return nil
}

// Deactivate returns sql.ErrNoRows when the student is unknown or already inactive.
func (r *StudentRepository) Deactivate(ctx context.Context, id int64, actor string) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.st.students[id]
	if !ok || !current.Active {
		return sql.ErrNoRows
	}
	now := r.s.now()
	current.Active = false
	current.ModifiedBy = actor
	current.ModifiedAt = &now
	r.s.st.students[id] = current
	return nil
}

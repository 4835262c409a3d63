package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

// AuditRepository is the in-memory audit trail. Entries are append only.
type AuditRepository struct {
	s *Store
}

// Create appends an audit entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry.EventTime.IsZero() {
		entry.EventTime = r.s.now()
	}
	r.s.st.nextAudit++
	entry.ID = r.s.st.nextAudit
	r.s.st.audit = append(r.s.st.audit, *entry)
	return nil
}

// List returns the newest matching entries.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = models.DefaultAuditLimit
	}
	out := make([]models.AuditEntry, 0)
	for i := len(r.s.st.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.s.st.audit[i]
		if filter.ActionType != "" && e.ActionType != filter.ActionType {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.TargetTable != "" && e.TargetTable != filter.TargetTable {
			continue
		}
		if filter.TargetID != nil && (e.TargetID == nil || *e.TargetID != *filter.TargetID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// DuplicateLogRepository is the in-memory duplicate screening log.
type DuplicateLogRepository struct {
	s *Store
}

// Create stores a screening result.
func (r *DuplicateLogRepository) Create(ctx context.Context, entry *models.DuplicateLog) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry.EventTime.IsZero() {
		entry.EventTime = r.s.now()
	}
	if len(entry.Matches) == 0 {
		entry.Matches = json.RawMessage("[]")
	}
	r.s.st.nextDuplicate++
	entry.ID = r.s.st.nextDuplicate
	r.s.st.duplicates[entry.ID] = *entry
	return nil
}

// MarkOverride records a staff override on a screening.
func (r *DuplicateLogRepository) MarkOverride(ctx context.Context, id int64, actor, justification string) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry, ok := r.s.st.duplicates[id]
	if !ok {
		return sql.ErrNoRows
	}
	entry.ActionTaken = models.DuplicateActionOverride
	entry.Actor = actor
	entry.Justification = justification
	r.s.st.duplicates[id] = entry
	return nil
}

// Get returns a logged screening.
func (r *DuplicateLogRepository) Get(ctx context.Context, id int64) (*models.DuplicateLog, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entry, ok := r.s.st.duplicates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &entry, nil
}

// SettingsRepository is the in-memory settings table.
type SettingsRepository struct {
	s *Store
}

// List returns settings ordered by key.
func (r *SettingsRepository) List(ctx context.Context) ([]models.Setting, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Setting, 0, len(r.s.st.settings))
	for _, setting := range r.s.st.settings {
		out = append(out, setting)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get returns sql.ErrNoRows for unknown keys.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	setting, ok := r.s.st.settings[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &setting, nil
}

// Upsert inserts or replaces a setting, keeping the stored description when none is given.
func (r *SettingsRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if setting.Description == "" {
		setting.Description = r.s.st.settings[setting.Key].Description
	}
	setting.UpdatedAt = r.s.now()
	r.s.st.settings[setting.Key] = *setting
	return nil
}

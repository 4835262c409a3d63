package memory

import (
	"context"
	"database/sql"
	"sort"

	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/internal/repository"
)

// ActivityRepository is the in-memory activity catalog.
type ActivityRepository struct {
	s *Store
}

// List returns activities ordered by name.
func (r *ActivityRepository) List(ctx context.Context, includeInactive bool) ([]models.Activity, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Activity, 0, len(r.s.st.activities))
	for _, a := range r.s.st.activities {
		if includeInactive || a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindByID returns sql.ErrNoRows for unknown ids.
func (r *ActivityRepository) FindByID(ctx context.Context, id int64) (*models.Activity, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.st.activities[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

// FindActiveByName looks up an active activity by exact name.
func (r *ActivityRepository) FindActiveByName(ctx context.Context, name string) (*models.Activity, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.st.activities {
		if a.Name == name && a.Active {
			found := a
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

// Create enforces the unique activity name.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.st.activities {
		if a.Name == activity.Name {
			return uniqueViolation("activities_name_key")
		}
	}
	r.s.st.nextActivity++
	activity.ID = r.s.st.nextActivity
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = r.s.now()
	}
	r.s.st.activities[activity.ID] = *activity
	return nil
}

// Update replaces an activity, keeping names unique.
func (r *ActivityRepository) Update(ctx context.Context, activity *models.Activity) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.st.activities[activity.ID]
	if !ok {
		return sql.ErrNoRows
	}
	for id, a := range r.s.st.activities {
		if id != activity.ID && a.Name == activity.Name {
			return uniqueViolation("activities_name_key")
		}
	}
	activity.CreatedAt = current.CreatedAt
	r.s.st.activities[activity.ID] = *activity
	return nil
}

// PrizeRepository is the in-memory prize inventory.
type PrizeRepository struct {
	s *Store
}

// List returns prizes ordered by cost then name.
func (r *PrizeRepository) List(ctx context.Context, includeInactive bool) ([]models.Prize, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Prize, 0, len(r.s.st.prizes))
	for _, p := range r.s.st.prizes {
		if includeInactive || p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointCost != out[j].PointCost {
			return out[i].PointCost < out[j].PointCost
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// FindByID returns sql.ErrNoRows for unknown ids.
func (r *PrizeRepository) FindByID(ctx context.Context, id int64) (*models.Prize, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.st.prizes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

// Create enforces the unique prize name.
func (r *PrizeRepository) Create(ctx context.Context, prize *models.Prize) error {
	if err := alive(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.prizes {
		if p.Name == prize.Name {
			return uniqueViolation("prize_inventory_name_key")
		}
	}
	now := r.s.now()
	r.s.st.nextPrize++
	prize.ID = r.s.st.nextPrize
	prize.CreatedAt = now
	prize.UpdatedAt = now
	r.s.st.prizes[prize.ID] = *prize
	return nil
}

// AdjustStock applies delta unless the result would be negative.
func (r *PrizeRepository) AdjustStock(ctx context.Context, id int64, delta int64) (int64, error) {
	if err := alive(ctx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.prizes[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if p.StockCount+delta < 0 {
		return 0, repository.ErrStockExhausted
	}
	p.StockCount += delta
	p.UpdatedAt = r.s.now()
	r.s.st.prizes[id] = p
	return p.StockCount, nil
}

package memory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/internal/repository"
)

// LedgerRepository is the in-memory ledger. Every write holds the store lock for its whole
// duration and applies staged changes only once all steps succeed.
type LedgerRepository struct {
	s *Store
}

// RecordAward writes the ledger row, balance delta and POINT_AWARD audit atomically.
func (r *LedgerRepository) RecordAward(ctx context.Context, rec repository.AwardRecord) (*repository.LedgerOutcome, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if err := r.s.fault(StepLedgerInsert); err != nil {
		return nil, err
	}
	entry := models.LedgerEntry{
		ID:           r.s.st.nextLedger + 1,
		StudentID:    rec.StudentID,
		Points:       rec.Points,
		ActivityID:   rec.ActivityID,
		ActivityType: rec.ActivityType,
		Description:  rec.Description,
		RecordedBy:   rec.Actor,
		CreatedAt:    now,
	}

	student, err := r.stageBalance(rec.StudentID, rec.Points, rec.Actor)
	if err != nil {
		return nil, err
	}

	if err := r.s.fault(StepAuditInsert); err != nil {
		return nil, errors.Join(repository.ErrAuditWrite, err)
	}
	studentID := rec.StudentID
	audit := models.AuditEntry{
		ID:          r.s.st.nextAudit + 1,
		EventTime:   now,
		ActionType:  models.AuditActionPointAward,
		Actor:       rec.Actor,
		TargetTable: models.TableStudents,
		TargetID:    &studentID,
		Details:     repository.AwardAuditDetails(entry, rec.ActivityName),
	}
	if err := alive(ctx); err != nil {
		return nil, err
	}

	r.commit(entry, student, audit)
	return &repository.LedgerOutcome{Entry: entry, Balance: student.TotalPoints}, nil
}

// RecordRedemption decrements stock, writes the negative ledger row, debits the balance and
// writes the PRIZE_REDEEM audit atomically.
func (r *LedgerRepository) RecordRedemption(ctx context.Context, rec repository.RedemptionRecord) (*repository.LedgerOutcome, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if err := r.s.fault(StepStockUpdate); err != nil {
		return nil, err
	}
	prize, ok := r.s.st.prizes[rec.PrizeID]
	if !ok || !prize.Active {
		return nil, repository.ErrPrizeInactive
	}
	if prize.StockCount <= 0 {
		return nil, repository.ErrStockExhausted
	}
	prize.StockCount--
	prize.UpdatedAt = now

	if err := r.s.fault(StepLedgerInsert); err != nil {
		return nil, err
	}
	prizeID := rec.PrizeID
	entry := models.LedgerEntry{
		ID:            r.s.st.nextLedger + 1,
		StudentID:     rec.StudentID,
		Points:        -prize.PointCost,
		PrizeID:       &prizeID,
		ActivityType:  models.LedgerTypeRedemption,
		Description:   repository.RedemptionDescription(prize.Name),
		RecordedBy:    rec.Actor,
		CreatedAt:     now,
		ReferenceName: prize.Name,
	}

	student, err := r.stageBalance(rec.StudentID, -prize.PointCost, rec.Actor)
	if err != nil {
		return nil, err
	}

	if err := r.s.fault(StepAuditInsert); err != nil {
		return nil, errors.Join(repository.ErrAuditWrite, err)
	}
	studentID := rec.StudentID
	audit := models.AuditEntry{
		ID:          r.s.st.nextAudit + 1,
		EventTime:   now,
		ActionType:  models.AuditActionPrizeRedeem,
		Actor:       rec.Actor,
		TargetTable: models.TableStudents,
		TargetID:    &studentID,
		Details:     repository.RedemptionAuditDetails(entry, prize.Name, prize.StockCount),
	}
	if err := alive(ctx); err != nil {
		return nil, err
	}

	r.s.st.prizes[prize.ID] = prize
	r.commit(entry, student, audit)
	return &repository.LedgerOutcome{Entry: entry, Balance: student.TotalPoints, StockRemaining: prize.StockCount, PrizeName: prize.Name}, nil
}

// stageBalance applies the same guard as the conditional postgres update without writing.
func (r *LedgerRepository) stageBalance(studentID, delta int64, actor string) (models.Student, error) {
	if err := r.s.fault(StepBalanceUpdate); err != nil {
		return models.Student{}, err
	}
	student, ok := r.s.st.students[studentID]
	if !ok {
		return models.Student{}, sql.ErrNoRows
	}
	if !student.Active {
		return models.Student{}, repository.ErrStudentInactive
	}
	if student.TotalPoints+delta < 0 {
		return models.Student{}, repository.ErrBalanceGuard
	}
	now := r.s.now()
	student.TotalPoints += delta
	student.ModifiedBy = actor
	student.ModifiedAt = &now
	return student, nil
}

func (r *LedgerRepository) commit(entry models.LedgerEntry, student models.Student, audit models.AuditEntry) {
	r.s.st.nextLedger = entry.ID
	r.s.st.nextAudit = audit.ID
	r.s.st.ledger = append(r.s.st.ledger, entry)
	r.s.st.students[student.ID] = student
	r.s.st.audit = append(r.s.st.audit, audit)
}

// GetBalance reads the cached total.
func (r *LedgerRepository) GetBalance(ctx context.Context, studentID int64) (int64, error) {
	if err := alive(ctx); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.st.students[studentID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return st.TotalPoints, nil
}

// ListHistory returns ledger entries newest first with resolved reference names.
func (r *LedgerRepository) ListHistory(ctx context.Context, studentID int64) ([]models.LedgerEntry, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.LedgerEntry, 0)
	for i := len(r.s.st.ledger) - 1; i >= 0; i-- {
		entry := r.s.st.ledger[i]
		if entry.StudentID != studentID {
			continue
		}
		entry.ReferenceName = r.referenceName(entry)
		out = append(out, entry)
	}
	return out, nil
}

func (r *LedgerRepository) referenceName(entry models.LedgerEntry) string {
	if entry.ActivityID != nil {
		if a, ok := r.s.st.activities[*entry.ActivityID]; ok {
			return a.Name
		}
	}
	if entry.PrizeID != nil {
		if p, ok := r.s.st.prizes[*entry.PrizeID]; ok {
			return p.Name
		}
	}
	return models.UnknownActivity
}

func (r *LedgerRepository) ledgerSum(studentID int64) int64 {
	var sum int64
	for _, entry := range r.s.st.ledger {
		if entry.StudentID == studentID {
			sum += entry.Points
		}
	}
	return sum
}

// BalanceSnapshot compares the cached total with the ledger sum.
func (r *LedgerRepository) BalanceSnapshot(ctx context.Context, studentID int64) (*models.Balance, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.st.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.Balance{StudentID: studentID, Cached: st.TotalPoints, LedgerSum: r.ledgerSum(studentID)}, nil
}

// RepairBalance resets the cached total to the ledger sum and audits the change.
func (r *LedgerRepository) RepairBalance(ctx context.Context, studentID int64, actor string) (*models.Balance, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.st.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	balance := models.Balance{StudentID: studentID, Cached: st.TotalPoints, LedgerSum: r.ledgerSum(studentID)}
	if balance.Consistent() {
		return &balance, nil
	}
	now := r.s.now()
	id := studentID
	r.s.st.nextAudit++
	r.s.st.audit = append(r.s.st.audit, models.AuditEntry{
		ID:          r.s.st.nextAudit,
		EventTime:   now,
		ActionType:  models.AuditActionBalanceReconcile,
		Actor:       actor,
		TargetTable: models.TableStudents,
		TargetID:    &id,
		Details:     repository.ReconcileAuditDetails(balance),
	})
	st.TotalPoints = balance.LedgerSum
	st.ModifiedBy = actor
	st.ModifiedAt = &now
	r.s.st.students[studentID] = st
	balance.Cached = balance.LedgerSum
	return &balance, nil
}

// Corrupt overwrites a cached balance without touching the ledger. It exists so tests can
// exercise reconciliation.
func (s *Store) Corrupt(studentID, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.st.students[studentID]; ok {
		st.TotalPoints = total
		s.st.students[studentID] = st
	}
}

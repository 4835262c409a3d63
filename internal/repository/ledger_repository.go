package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

var (
	// ErrStockExhausted reports that the conditional stock decrement matched no row.
	ErrStockExhausted = errors.New("prize stock exhausted")
	// ErrBalanceGuard reports that the conditional balance update would have left a negative total.
	ErrBalanceGuard = errors.New("balance would become negative")
	// ErrPrizeInactive reports a redemption against a missing or deactivated prize.
	ErrPrizeInactive = errors.New("prize inactive")
	// ErrStudentInactive reports a ledger write against a deactivated student.
	ErrStudentInactive = errors.New("student inactive")
	// ErrAuditWrite marks a failed audit insert inside a ledger transaction.
	ErrAuditWrite = errors.New("audit write failed")
)

// AwardRecord describes a signed point movement to write atomically.
type AwardRecord struct {
	StudentID    int64
	Points       int64
	ActivityID   *int64
	ActivityName string
	ActivityType string
	Description  string
	Actor        string
}

// RedemptionRecord describes a prize redemption to write atomically.
type RedemptionRecord struct {
	StudentID int64
	PrizeID   int64
	Actor     string
}

// LedgerOutcome is the committed state of a ledger write.
type LedgerOutcome struct {
	Entry          models.LedgerEntry
	Balance        int64
	StockRemaining int64
	PrizeName      string
}

// LedgerRepository is the only writer of activity_log and students.total_points.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// RecordAward inserts the ledger row, applies the delta to the cached balance and writes the
// POINT_AWARD audit entry in one transaction.
func (r *LedgerRepository) RecordAward(ctx context.Context, rec AwardRecord) (out *LedgerOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin award tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	entry := models.LedgerEntry{
		StudentID:    rec.StudentID,
		Points:       rec.Points,
		ActivityID:   rec.ActivityID,
		ActivityType: rec.ActivityType,
		Description:  rec.Description,
		RecordedBy:   rec.Actor,
		CreatedAt:    now,
	}
	if err = insertLedgerEntry(ctx, tx, &entry); err != nil {
		return nil, err
	}

	balance, err := applyBalanceDelta(ctx, tx, rec.StudentID, rec.Points, rec.Actor, now)
	if err != nil {
		return nil, err
	}

	audit := models.AuditEntry{
		EventTime:   now,
		ActionType:  models.AuditActionPointAward,
		Actor:       rec.Actor,
		TargetTable: models.TableStudents,
		TargetID:    &rec.StudentID,
		Details:     AwardAuditDetails(entry, rec.ActivityName),
	}
	if err = insertAuditEntry(ctx, tx, &audit); err != nil {
		return nil, errors.Join(ErrAuditWrite, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit award tx: %w", err)
	}
	return &LedgerOutcome{Entry: entry, Balance: balance}, nil
}

// RecordRedemption decrements stock, inserts the negative ledger row, debits the cached balance
// and writes the PRIZE_REDEEM audit entry in one transaction. The prize row is always locked
// before the student row.
func (r *LedgerRepository) RecordRedemption(ctx context.Context, rec RedemptionRecord) (out *LedgerOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin redemption tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE prize_inventory SET stock_count = stock_count - 1, updated_at = $2
        WHERE id = $1 AND active = TRUE AND stock_count > 0`, rec.PrizeID, now)
	if err != nil {
		return nil, fmt.Errorf("decrement prize stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("decrement prize stock rows affected: %w", err)
	}
	if affected == 0 {
		err = stockGuardFailure(ctx, tx, rec.PrizeID)
		return nil, err
	}

	var prize struct {
		Name       string `db:"name"`
		PointCost  int64  `db:"point_cost"`
		StockCount int64  `db:"stock_count"`
	}
	if err = tx.GetContext(ctx, &prize, `SELECT name, point_cost, stock_count FROM prize_inventory WHERE id = $1`, rec.PrizeID); err != nil {
		return nil, fmt.Errorf("load prize: %w", err)
	}

	prizeID := rec.PrizeID
	entry := models.LedgerEntry{
		StudentID:     rec.StudentID,
		Points:        -prize.PointCost,
		PrizeID:       &prizeID,
		ActivityType:  models.LedgerTypeRedemption,
		Description:   RedemptionDescription(prize.Name),
		RecordedBy:    rec.Actor,
		CreatedAt:     now,
		ReferenceName: prize.Name,
	}
	if err = insertLedgerEntry(ctx, tx, &entry); err != nil {
		return nil, err
	}

	balance, err := applyBalanceDelta(ctx, tx, rec.StudentID, -prize.PointCost, rec.Actor, now)
	if err != nil {
		return nil, err
	}

	audit := models.AuditEntry{
		EventTime:   now,
		ActionType:  models.AuditActionPrizeRedeem,
		Actor:       rec.Actor,
		TargetTable: models.TableStudents,
		TargetID:    &rec.StudentID,
		Details:     RedemptionAuditDetails(entry, prize.Name, prize.StockCount),
	}
	if err = insertAuditEntry(ctx, tx, &audit); err != nil {
		return nil, errors.Join(ErrAuditWrite, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit redemption tx: %w", err)
	}
	return &LedgerOutcome{Entry: entry, Balance: balance, StockRemaining: prize.StockCount, PrizeName: prize.Name}, nil
}

// GetBalance reads the cached total for a student.
func (r *LedgerRepository) GetBalance(ctx context.Context, studentID int64) (int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT total_points FROM students WHERE id = $1`, studentID); err != nil {
		return 0, err
	}
	return total, nil
}

// ListHistory returns a student's ledger entries, most recent first.
func (r *LedgerRepository) ListHistory(ctx context.Context, studentID int64) ([]models.LedgerEntry, error) {
	const query = `SELECT l.id, l.student_id, l.points, l.activity_id, l.prize_id, l.activity_type,
        COALESCE(l.description, '') AS description, l.recorded_by, l.created_at,
        COALESCE(a.name, p.name, 'Unknown Activity') AS reference_name
        FROM activity_log l
        LEFT JOIN activities a ON a.id = l.activity_id
        LEFT JOIN prize_inventory p ON p.id = l.prize_id
        WHERE l.student_id = $1
        ORDER BY l.created_at DESC, l.id DESC`
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list ledger history: %w", err)
	}
	return entries, nil
}

// BalanceSnapshot compares the cached total with the ledger sum.
func (r *LedgerRepository) BalanceSnapshot(ctx context.Context, studentID int64) (*models.Balance, error) {
	const query = `SELECT s.id AS student_id, s.total_points AS cached, COALESCE(SUM(l.points), 0) AS ledger_sum
        FROM students s LEFT JOIN activity_log l ON l.student_id = s.id
        WHERE s.id = $1 GROUP BY s.id, s.total_points`
	var balance models.Balance
	if err := r.db.GetContext(ctx, &balance, query, studentID); err != nil {
		return nil, err
	}
	return &balance, nil
}

// RepairBalance resets the cached total to the ledger sum and records a BALANCE_RECONCILE audit entry.
// A consistent balance is returned untouched.
func (r *LedgerRepository) RepairBalance(ctx context.Context, studentID int64, actor string) (out *models.Balance, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	balance := models.Balance{StudentID: studentID}
	if err = tx.GetContext(ctx, &balance.Cached, `SELECT total_points FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		return nil, err
	}
	if err = tx.GetContext(ctx, &balance.LedgerSum, `SELECT COALESCE(SUM(points), 0) FROM activity_log WHERE student_id = $1`, studentID); err != nil {
		return nil, fmt.Errorf("sum ledger: %w", err)
	}
	if balance.Consistent() {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit reconcile tx: %w", err)
		}
		return &balance, nil
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE students SET total_points = $1, modified_by = $2, modified_at = $3 WHERE id = $4`,
		balance.LedgerSum, actor, now, studentID); err != nil {
		return nil, fmt.Errorf("repair balance: %w", err)
	}
	audit := models.AuditEntry{
		EventTime:   now,
		ActionType:  models.AuditActionBalanceReconcile,
		Actor:       actor,
		TargetTable: models.TableStudents,
		TargetID:    &studentID,
		Details:     ReconcileAuditDetails(balance),
	}
	if err = insertAuditEntry(ctx, tx, &audit); err != nil {
		return nil, errors.Join(ErrAuditWrite, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reconcile tx: %w", err)
	}
	balance.Cached = balance.LedgerSum
	return &balance, nil
}

// stockGuardFailure tells an exhausted prize apart from one that is gone or deactivated when the
// guarded decrement matched no row.
func stockGuardFailure(ctx context.Context, tx *sqlx.Tx, prizeID int64) error {
	var active bool
	err := tx.GetContext(ctx, &active, `SELECT active FROM prize_inventory WHERE id = $1`, prizeID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrPrizeInactive
	case err != nil:
		return fmt.Errorf("check prize state: %w", err)
	case !active:
		return ErrPrizeInactive
	}
	return ErrStockExhausted
}

func insertLedgerEntry(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	const query = `INSERT INTO activity_log (student_id, points, activity_id, prize_id, activity_type, description, recorded_by, created_at)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8) RETURNING id`
	if err := tx.QueryRowxContext(ctx, query, entry.StudentID, entry.Points, entry.ActivityID, entry.PrizeID,
		entry.ActivityType, entry.Description, entry.RecordedBy, entry.CreatedAt).Scan(&entry.ID); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// applyBalanceDelta is the authoritative overdraft guard: the update only matches when the
// student is active and the new total stays non-negative.
func applyBalanceDelta(ctx context.Context, tx *sqlx.Tx, studentID, delta int64, actor string, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE students SET total_points = total_points + $1, modified_by = $2, modified_at = $3
        WHERE id = $4 AND active = TRUE AND total_points + $1 >= 0`, delta, actor, now, studentID)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update balance rows affected: %w", err)
	}
	if affected == 0 {
		var active bool
		if err := tx.GetContext(ctx, &active, `SELECT active FROM students WHERE id = $1`, studentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, sql.ErrNoRows
			}
			return 0, fmt.Errorf("check student: %w", err)
		}
		if !active {
			return 0, ErrStudentInactive
		}
		return 0, ErrBalanceGuard
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance, `SELECT total_points FROM students WHERE id = $1`, studentID); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// RedemptionDescription is the ledger description written for a prize redemption.
func RedemptionDescription(prizeName string) string {
	return "Redemption: " + prizeName
}

// AwardAuditDetails renders the POINT_AWARD audit details.
func AwardAuditDetails(entry models.LedgerEntry, activityName string) string {
	reason := activityName
	if reason == "" {
		reason = entry.Description
	}
	if reason == "" {
		reason = "manual adjustment"
	}
	return fmt.Sprintf("%+d points for %q; ledger entry %d", entry.Points, reason, entry.ID)
}

// RedemptionAuditDetails renders the PRIZE_REDEEM audit details.
func RedemptionAuditDetails(entry models.LedgerEntry, prizeName string, stockRemaining int64) string {
	return fmt.Sprintf("redeemed %q for %d points; stock remaining %d; ledger entry %d", prizeName, -entry.Points, stockRemaining, entry.ID)
}

// ReconcileAuditDetails renders the BALANCE_RECONCILE audit details.
func ReconcileAuditDetails(balance models.Balance) string {
	return fmt.Sprintf("cached total %d reset to ledger sum %d", balance.Cached, balance.LedgerSum)
}

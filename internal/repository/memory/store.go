// Package memory is a process-local store implementing the same repository contracts and
// write guards as the postgres repositories. Ledger writes are staged and applied only after
// every step succeeds, so a failure leaves no partial state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

// Step names a point inside a ledger write where a fault can be injected.
type Step string

// Injectable ledger steps.
const (
	StepStockUpdate   Step = "stock_update"
	StepLedgerInsert  Step = "ledger_insert"
	StepBalanceUpdate Step = "balance_update"
	StepAuditInsert   Step = "audit_insert"
)

type state struct {
	students   map[int64]models.Student
	activities map[int64]models.Activity
	prizes     map[int64]models.Prize
	ledger     []models.LedgerEntry
	audit      []models.AuditEntry
	duplicates map[int64]models.DuplicateLog
	settings   map[string]models.Setting

	nextStudent   int64
	nextActivity  int64
	nextPrize     int64
	nextLedger    int64
	nextAudit     int64
	nextDuplicate int64
}

// Store is safe for concurrent use. A single mutex serialises writers, which gives the
// same outcome as postgres row locks for the guarded updates.
type Store struct {
	mu     sync.RWMutex
	st     state
	faults map[Step]error
	now    func() time.Time
}

// New returns an empty store seeded with the default settings.
func New() *Store {
	s := &Store{
		st: state{
			students:   map[int64]models.Student{},
			activities: map[int64]models.Activity{},
			prizes:     map[int64]models.Prize{},
			duplicates: map[int64]models.DuplicateLog{},
			settings:   map[string]models.Setting{},
		},
		faults: map[Step]error{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	now := s.now()
	s.st.settings[models.SettingPointAlertThreshold] = models.Setting{
		Key: models.SettingPointAlertThreshold, Value: "500",
		Description: "Awards at or above this value notify administrators", UpdatedAt: now,
	}
	s.st.settings[models.SettingAlertRecipients] = models.Setting{
		Key: models.SettingAlertRecipients, Value: "",
		Description: "Comma separated alert e-mail recipients", UpdatedAt: now,
	}
	return s
}

// FailAt makes the next ledger write fail with err when it reaches step.
func (s *Store) FailAt(step Step, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[step] = err
}

// fault consumes an injected fault. Callers hold the write lock.
func (s *Store) fault(step Step) error {
	err, ok := s.faults[step]
	if !ok {
		return nil
	}
	delete(s.faults, step)
	return fmt.Errorf("%s: %w", step, err)
}

// Students returns the student repository view.
func (s *Store) Students() *StudentRepository { return &StudentRepository{s: s} }

// Activities returns the activity repository view.
func (s *Store) Activities() *ActivityRepository { return &ActivityRepository{s: s} }

// Prizes returns the prize repository view.
func (s *Store) Prizes() *PrizeRepository { return &PrizeRepository{s: s} }

// Ledger returns the ledger repository view.
func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{s: s} }

// Audit returns the audit repository view.
func (s *Store) Audit() *AuditRepository { return &AuditRepository{s: s} }

// DuplicateLog returns the duplicate log repository view.
func (s *Store) DuplicateLog() *DuplicateLogRepository { return &DuplicateLogRepository{s: s} }

// Settings returns the settings repository view.
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{s: s} }

// uniqueViolation mirrors the error postgres raises for a duplicate unique key.
func uniqueViolation(constraint string) error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint", Constraint: constraint}
}

func matchesSearch(student models.Student, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(student.FullName), term) ||
		strings.Contains(strconv.FormatInt(student.ID, 10), term)
}

func sortedStudents(in map[int64]models.Student, keep func(models.Student) bool) []models.Student {
	out := make([]models.Student, 0, len(in))
	for _, st := range in {
		if keep(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func alive(ctx context.Context) error {
	return ctx.Err()
}

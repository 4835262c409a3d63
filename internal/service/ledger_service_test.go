package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/internal/repository/memory"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
	"github.com/noah-isme/points-ledger-api/pkg/notify"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type ledgerFixture struct {
	store    *memory.Store
	svc      *LedgerService
	notifier *recordingNotifier
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store := memory.New()
	notifier := &recordingNotifier{}
	settings := StaticAlertSettings{Threshold: 500, Recipients: []string{"admin@school.mx"}}
	svc := NewLedgerService(store.Ledger(), store.Students(), store.Activities(), store.Prizes(),
		settings, notifier, nil, LedgerConfig{StoreTimeout: time.Second}, nil, nil)
	return &ledgerFixture{store: store, svc: svc, notifier: notifier}
}

func (f *ledgerFixture) student(t *testing.T, name string, points int64) int64 {
	t.Helper()
	st := &models.Student{FullName: name}
	require.NoError(t, f.store.Students().Create(context.Background(), st))
	if points > 0 {
		res, err := f.svc.AwardPoints(context.Background(), dto.AwardPointsRequest{StudentID: st.ID, Points: points, Actor: "seed"})
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
	}
	return st.ID
}

func (f *ledgerFixture) prize(t *testing.T, name string, cost, stock int64) int64 {
	t.Helper()
	p := &models.Prize{Name: name, PointCost: cost, StockCount: stock, Active: true}
	require.NoError(t, f.store.Prizes().Create(context.Background(), p))
	return p.ID
}

func (f *ledgerFixture) stock(t *testing.T, id int64) int64 {
	t.Helper()
	p, err := f.store.Prizes().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockCount
}

func (f *ledgerFixture) assertConsistent(t *testing.T, studentID int64) *dto.ReconcileResponse {
	t.Helper()
	resp, err := f.svc.Reconcile(context.Background(), studentID, false, "test")
	require.NoError(t, err)
	assert.True(t, resp.Consistent, "cached %d != ledger %d", resp.Cached, resp.LedgerSum)
	assert.GreaterOrEqual(t, resp.Cached, int64(0))
	return resp
}

func TestAwardPointsRecordsEntryAndAudit(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	activity := &models.Activity{Name: "Homework", DefaultPoints: 10, Active: true}
	require.NoError(t, f.store.Activities().Create(ctx, activity))
	id := f.student(t, "Ana Torres", 0)

	res, err := f.svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: id, Points: 25, ActivityID: &activity.ID, Actor: "coach1"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, int64(25), res.Balance)
	require.NotNil(t, res.Entry)
	assert.Equal(t, models.LedgerTypeAward, res.Entry.ActivityType)
	assert.Equal(t, "Homework", res.Entry.ReferenceName)

	balance, err := f.svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	audit, err := f.store.Audit().List(ctx, models.AuditFilter{ActionType: models.AuditActionPointAward})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "coach1", audit[0].Actor)
	f.assertConsistent(t, id)
}

func TestAwardPointsUnknownActivityNameIsManual(t *testing.T) {
	f := newLedgerFixture(t)
	id := f.student(t, "Ana Torres", 0)

	res, err := f.svc.AwardPoints(context.Background(), dto.AwardPointsRequest{StudentID: id, Points: 5, ActivityName: "Chess club"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, models.LedgerTypeManual, res.Entry.ActivityType)
	assert.Nil(t, res.Entry.ActivityID)
	assert.Equal(t, defaultActor, res.Entry.RecordedBy)
}

func TestAwardPointsRejections(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 30)
	inactive := f.student(t, "Luis Perez", 0)
	require.NoError(t, f.store.Students().Deactivate(ctx, inactive, "admin"))
	missingActivity := int64(99)

	cases := []struct {
		name string
		req  dto.AwardPointsRequest
		code string
	}{
		{"unknown student", dto.AwardPointsRequest{StudentID: 404, Points: 5}, appErrors.ErrNotFound.Code},
		{"inactive student", dto.AwardPointsRequest{StudentID: inactive, Points: 5}, appErrors.ErrNotFound.Code},
		{"unknown activity", dto.AwardPointsRequest{StudentID: id, Points: 5, ActivityID: &missingActivity}, appErrors.ErrNotFound.Code},
		{"overdraft", dto.AwardPointsRequest{StudentID: id, Points: -31}, appErrors.ErrInsufficientBalance.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.AwardPoints(ctx, tc.req)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tc.code, res.Code)
		})
	}

	balance, err := f.svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)

	res, err := f.svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: id, Points: -30})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.Balance)
}

func TestAwardPointsValidation(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.svc.AwardPoints(context.Background(), dto.AwardPointsRequest{StudentID: 1, Points: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.CodeOf(err))
}

func TestHighValueAwardNotifies(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 0)

	for _, points := range []int64{499, -10, 500, 800} {
		res, err := f.svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: id, Points: points})
		require.NoError(t, err)
		require.True(t, res.Success)
	}
	assert.Equal(t, []notify.Kind{notify.KindHighValueAward, notify.KindHighValueAward}, f.notifier.kinds())
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Equal(t, []string{"admin@school.mx"}, f.notifier.sent[0].Recipients)
	assert.False(t, f.notifier.sent[0].Bypass)
}

func TestRedeemPrize(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 100)
	pen := f.prize(t, "Pen", 40, 2)

	res, err := f.svc.RedeemPrize(ctx, dto.RedeemPrizeRequest{StudentID: id, PrizeID: pen, Actor: "front_desk"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, int64(60), res.Balance)
	require.NotNil(t, res.StockRemaining)
	assert.Equal(t, int64(1), *res.StockRemaining)
	assert.Equal(t, int64(-40), res.Entry.Points)
	assert.Equal(t, "Redemption: Pen", res.Entry.Description)

	history, err := f.svc.GetLedgerHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.LedgerTypeRedemption, history[0].ActivityType)
	assert.Equal(t, "Pen", history[0].ReferenceName)
	f.assertConsistent(t, id)
}

func TestRedeemPrizeRejections(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	rich := f.student(t, "Ana Torres", 100)
	poor := f.student(t, "Luis Perez", 10)
	empty := f.prize(t, "Sticker", 5, 0)
	pen := f.prize(t, "Pen", 40, 2)

	cases := []struct {
		name string
		req  dto.RedeemPrizeRequest
		code string
	}{
		{"unknown prize", dto.RedeemPrizeRequest{StudentID: rich, PrizeID: 404}, appErrors.ErrNotFound.Code},
		{"unknown student", dto.RedeemPrizeRequest{StudentID: 404, PrizeID: pen}, appErrors.ErrNotFound.Code},
		{"out of stock", dto.RedeemPrizeRequest{StudentID: rich, PrizeID: empty}, appErrors.ErrOutOfStock.Code},
		{"insufficient balance", dto.RedeemPrizeRequest{StudentID: poor, PrizeID: pen}, appErrors.ErrInsufficientBalance.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.RedeemPrize(ctx, tc.req)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tc.code, res.Code)
		})
	}
	assert.Equal(t, int64(2), f.stock(t, pen))
	assert.Empty(t, f.notifier.kinds())
}

func TestRedemptionIsAtomicUnderInjectedFailure(t *testing.T) {
	for _, step := range []memory.Step{memory.StepStockUpdate, memory.StepLedgerInsert, memory.StepBalanceUpdate} {
		t.Run(string(step), func(t *testing.T) {
			f := newLedgerFixture(t)
			ctx := context.Background()
			id := f.student(t, "Ana Torres", 100)
			pen := f.prize(t, "Pen", 40, 2)

			f.store.FailAt(step, errors.New("disk on fire"))
			res, err := f.svc.RedeemPrize(ctx, dto.RedeemPrizeRequest{StudentID: id, PrizeID: pen})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, appErrors.ErrInternal.Code, appErrors.CodeOf(err))

			history, err := f.svc.GetLedgerHistory(ctx, id)
			require.NoError(t, err)
			assert.Len(t, history, 1)
			assert.Equal(t, int64(2), f.stock(t, pen))
			resp := f.assertConsistent(t, id)
			assert.Equal(t, int64(100), resp.Cached)
			assert.Equal(t, []notify.Kind{notify.KindSystemError}, f.notifier.kinds())
		})
	}
}

func TestAwardAuditFailureRollsBack(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 10)

	f.store.FailAt(memory.StepAuditInsert, errors.New("audit table locked"))
	_, err := f.svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: id, Points: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAuditWriteFailed.Code, appErrors.CodeOf(err))

	balance, err := f.svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
	f.assertConsistent(t, id)
}

func TestStoreTimeoutIsUnavailable(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 10)

	f.store.FailAt(memory.StepLedgerInsert, context.DeadlineExceeded)
	_, err := f.svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: id, Points: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.svc.GetBalance(cancelled, id)
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)
}

func TestConcurrentRedemptionOfLastUnit(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	prize := f.prize(t, "Bike", 50, 1)
	const contenders = 8
	students := make([]int64, contenders)
	for i := range students {
		students[i] = f.student(t, "Student", 100)
	}

	results := make([]*dto.LedgerResult, contenders)
	var wg sync.WaitGroup
	for i, id := range students {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			res, err := f.svc.RedeemPrize(ctx, dto.RedeemPrizeRequest{StudentID: id, PrizeID: prize})
			assert.NoError(t, err)
			results[i] = res
		}(i, id)
	}
	wg.Wait()

	won := 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.Success {
			won++
			continue
		}
		assert.Equal(t, appErrors.ErrOutOfStock.Code, res.Code)
	}
	assert.Equal(t, 1, won)
	assert.Zero(t, f.stock(t, prize))
	for _, id := range students {
		f.assertConsistent(t, id)
	}
}

func TestConcurrentOverdraft(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 100)
	prize := f.prize(t, "Book", 60, 10)

	const attempts = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.RedeemPrize(ctx, dto.RedeemPrizeRequest{StudentID: id, PrizeID: prize})
			if !assert.NoError(t, err) {
				return
			}
			if res.Success {
				mu.Lock()
				won++
				mu.Unlock()
				return
			}
			assert.Equal(t, appErrors.ErrInsufficientBalance.Code, res.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, int64(9), f.stock(t, prize))
	resp := f.assertConsistent(t, id)
	assert.Equal(t, int64(40), resp.Cached)
}

// TestLedgerInvariantsHoldOverRandomSequences drives random awards and redemptions, including
// rejected ones, and checks balances and stock after every step.
func TestLedgerInvariantsHoldOverRandomSequences(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	students := []int64{f.student(t, "Ana", 0), f.student(t, "Luis", 0), f.student(t, "Sofia", 0)}
	type stocked struct {
		id      int64
		initial int64
	}
	prizes := []stocked{{f.prize(t, "Pen", 15, 4), 4}, {f.prize(t, "Cap", 60, 2), 2}, {f.prize(t, "Ball", 5, 0), 0}}
	redeemed := map[int64]int64{}

	for step := 0; step < 300; step++ {
		id := students[rng.Intn(len(students))]
		if rng.Intn(2) == 0 {
			points := int64(rng.Intn(80) - 30)
			if points == 0 {
				points = 1
			}
			res, err := f.svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: id, Points: points})
			require.NoError(t, err)
			if !res.Success {
				assert.Equal(t, appErrors.ErrInsufficientBalance.Code, res.Code)
			}
		} else {
			p := prizes[rng.Intn(len(prizes))]
			res, err := f.svc.RedeemPrize(ctx, dto.RedeemPrizeRequest{StudentID: id, PrizeID: p.id})
			require.NoError(t, err)
			if res.Success {
				redeemed[p.id]++
			} else {
				assert.Contains(t, []string{appErrors.ErrOutOfStock.Code, appErrors.ErrInsufficientBalance.Code}, res.Code)
			}
		}

		for _, sid := range students {
			f.assertConsistent(t, sid)
		}
		for _, p := range prizes {
			stock := f.stock(t, p.id)
			assert.GreaterOrEqual(t, stock, int64(0))
			assert.Equal(t, p.initial, stock+redeemed[p.id])
		}
	}
}

func TestReadPathsAreIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 70)

	auditBefore, err := f.store.Audit().List(ctx, models.AuditFilter{})
	require.NoError(t, err)

	b1, err := f.svc.GetBalance(ctx, id)
	require.NoError(t, err)
	h1, err := f.svc.GetLedgerHistory(ctx, id)
	require.NoError(t, err)
	b2, err := f.svc.GetBalance(ctx, id)
	require.NoError(t, err)
	h2, err := f.svc.GetLedgerHistory(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, b1, b2)
	assert.Equal(t, h1, h2)
	auditAfter, err := f.store.Audit().List(ctx, models.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, auditAfter, len(auditBefore))

	_, err = f.svc.GetLedgerHistory(ctx, 404)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = f.svc.GetBalance(ctx, 404)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReconcileRepairsCorruptedCache(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 50)
	f.store.Corrupt(id, 80)

	resp, err := f.svc.Reconcile(ctx, id, false, "auditor")
	require.NoError(t, err)
	assert.False(t, resp.Consistent)
	assert.False(t, resp.Repaired)

	resp, err = f.svc.Reconcile(ctx, id, true, "auditor")
	require.NoError(t, err)
	assert.True(t, resp.Consistent)
	assert.True(t, resp.Repaired)
	assert.Equal(t, int64(50), resp.Cached)

	entries, err := f.store.Audit().List(ctx, models.AuditFilter{ActionType: models.AuditActionBalanceReconcile})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "auditor", entries[0].Actor)
}

type blockingSettingsRepo struct{}

func (blockingSettingsRepo) List(ctx context.Context) ([]models.Setting, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingSettingsRepo) Get(ctx context.Context, key string) (*models.Setting, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingSettingsRepo) Upsert(ctx context.Context, setting *models.Setting) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSlowSettingsStoreIsBoundedByStoreTimeout(t *testing.T) {
	store := memory.New()
	notifier := &recordingNotifier{}
	settings := NewSettingsService(blockingSettingsRepo{}, nil, nil,
		SettingsDefaults{AlertThreshold: 500, AdminEmail: "admin@school.mx"}, 0, nil, nil)
	svc := NewLedgerService(store.Ledger(), store.Students(), store.Activities(), store.Prizes(),
		settings, notifier, nil, LedgerConfig{StoreTimeout: 100 * time.Millisecond}, nil, nil)

	st := &models.Student{FullName: "Ana Torres"}
	require.NoError(t, store.Students().Create(context.Background(), st))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	res, err := svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: st.ID, Points: 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, notifier.kinds())

	start = time.Now()
	res, err = svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: st.ID, Points: 600})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
	require.Equal(t, []notify.Kind{notify.KindHighValueAward}, notifier.kinds())
	assert.Equal(t, []string{"admin@school.mx"}, notifier.sent[0].Recipients)

	store.FailAt(memory.StepLedgerInsert, errors.New("disk full"))
	start = time.Now()
	_, err = svc.AwardPoints(ctx, dto.AwardPointsRequest{StudentID: st.ID, Points: 5})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, notifier.kinds(), 2)
	assert.Equal(t, notify.KindSystemError, notifier.sent[1].Kind)
	assert.Equal(t, []string{"admin@school.mx"}, notifier.sent[1].Recipients)
}

// stalePrizes answers lookups with a prize that was active when it was read.
type stalePrizes struct {
	prize models.Prize
}

func (s stalePrizes) FindByID(context.Context, int64) (*models.Prize, error) {
	p := s.prize
	return &p, nil
}

func TestRedeemPrizeDeactivatedAfterCheckIsNotFound(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	id := f.student(t, "Ana Torres", 100)
	retired := &models.Prize{Name: "Old Poster", PointCost: 5, StockCount: 3, Active: false}
	require.NoError(t, f.store.Prizes().Create(ctx, retired))

	stale := *retired
	stale.Active = true
	svc := NewLedgerService(f.store.Ledger(), f.store.Students(), f.store.Activities(), stalePrizes{prize: stale},
		StaticAlertSettings{Threshold: 500}, f.notifier, nil, LedgerConfig{StoreTimeout: time.Second}, nil, nil)

	res, err := svc.RedeemPrize(ctx, dto.RedeemPrizeRequest{StudentID: id, PrizeID: retired.ID})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, appErrors.ErrNotFound.Code, res.Code)
	assert.Equal(t, int64(3), f.stock(t, retired.ID))
	f.assertConsistent(t, id)
}

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Notification
	err  error
	gate chan struct{}
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(ctx context.Context, n Notification) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeLog) observe(_ Kind, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *outcomeLog) has(outcome string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, got := range o.outcomes {
		if got == outcome {
			return true
		}
	}
	return false
}

func TestDispatcherSuppressesWithinCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	sender := &recordingSender{}
	outcomes := &outcomeLog{}
	d := NewDispatcher(sender, NewCooldown(10*time.Minute, clock.Now), DispatcherConfig{Observer: outcomes.observe})
	d.Start(context.Background())
	defer d.Stop()

	d.Notify(context.Background(), Notification{Kind: KindHighValueAward, Subject: "first"})
	d.Notify(context.Background(), Notification{Kind: KindSystemError, Subject: "second"})
	d.Notify(context.Background(), Notification{Kind: KindReport, Subject: "report", Bypass: true})

	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, outcomes.has(OutcomeSuppressed))

	clock.Advance(11 * time.Minute)
	d.Notify(context.Background(), Notification{Kind: KindSystemError, Subject: "later"})
	require.Eventually(t, func() bool { return sender.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherFailureIsNotRetried(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	outcomes := &outcomeLog{}
	d := NewDispatcher(sender, nil, DispatcherConfig{Observer: outcomes.observe})
	d.Start(context.Background())

	d.Notify(context.Background(), Notification{Kind: KindSystemError, Subject: "db down"})
	require.Eventually(t, func() bool { return outcomes.has(OutcomeFailed) }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	d.Stop()
	assert.Equal(t, 1, sender.count())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	outcomes := &outcomeLog{}
	d := NewDispatcher(sender, nil, DispatcherConfig{Workers: 1, BufferSize: 1, Observer: outcomes.observe})
	d.Start(context.Background())

	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), Notification{Kind: KindReport, Bypass: true})
	}
	assert.True(t, outcomes.has(OutcomeDropped))
	close(sender.gate)
	d.Stop()
}

func TestDispatcherNotifyAfterStopDoesNotPanic(t *testing.T) {
	outcomes := &outcomeLog{}
	d := NewDispatcher(&recordingSender{}, nil, DispatcherConfig{Observer: outcomes.observe})
	d.Notify(context.Background(), Notification{Kind: KindSystemError})
	assert.True(t, outcomes.has(OutcomeDropped))
}

package alert

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/ports"
)

func newTestScheduler(h *harness, j *fakeJourney, battery ports.BatteryGauge, interval time.Duration) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Interval:          interval,
		FreshFixTimeout:   10 * time.Millisecond,
		LowBatteryPercent: 20,
		LowBatteryEvery:   time.Hour,
	}, h.dispatcher, j, h.positions, battery, quietLogger())
}

func TestScheduler_FiresImmediatelyThenPeriodically(t *testing.T) {
	t.Parallel()

	sms := &fakeChannel{name: "sms"}
	h := newHarness(contactsOf("+911"), nil, sms)
	h.positions.last = freshFix()
	j := &fakeJourney{}
	s := newTestScheduler(h, j, nil, time.Hour)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return len(sms.messages()) == 1 }, time.Second, time.Millisecond)
	s.Stop()
	assert.Equal(t, 1, j.markCount())
	assert.False(t, s.Running())

	fast := newTestScheduler(h, j, nil, 10*time.Millisecond)
	require.NoError(t, fast.Start(context.Background()))
	require.Eventually(t, func() bool { return len(sms.messages()) >= 4 }, time.Second, time.Millisecond)
	fast.Stop()

	after := len(sms.messages())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, len(sms.messages()), "no firings after stop")
	for _, m := range sms.messages() {
		assert.Contains(t, m.text, "Journey update from Asha")
	}
}

func TestScheduler_NeverOverlapsCycles(t *testing.T) {
	t.Parallel()

	sms := &fakeChannel{name: "sms", block: make(chan struct{}), entered: make(chan struct{}, 1)}
	h := newHarness(contactsOf("+911"), nil, sms)
	h.positions.last = freshFix()
	s := newTestScheduler(h, &fakeJourney{}, nil, time.Millisecond)

	require.NoError(t, s.Start(context.Background()))
	for i := 0; i < 5; i++ {
		<-sms.entered
		time.Sleep(5 * time.Millisecond)
		sms.block <- struct{}{}
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	// Release a send that may already be in flight.
	select {
	case <-sms.entered:
		sms.block <- struct{}{}
	case <-stopped:
	}
	<-stopped

	sms.mu.Lock()
	defer sms.mu.Unlock()
	assert.Equal(t, 1, sms.maxFlight)
}

func TestScheduler_StopLetsIssuedSendComplete(t *testing.T) {
	t.Parallel()

	sms := &fakeChannel{name: "sms", block: make(chan struct{}), entered: make(chan struct{}, 1)}
	h := newHarness(contactsOf("+911"), nil, sms)
	h.positions.last = freshFix()
	s := newTestScheduler(h, &fakeJourney{}, nil, time.Hour)

	require.NoError(t, s.Start(context.Background()))
	<-sms.entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("stop returned while a send was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(sms.block)
	<-stopped
	msgs := sms.messages()
	require.Len(t, msgs, 1)
	assert.NoError(t, msgs[0].ctxErr, "issued sends run on a detached context")
}

func TestScheduler_SkipsWithoutContactsOrPosition(t *testing.T) {
	t.Parallel()

	sms := &fakeChannel{name: "sms"}
	h := newHarness(contactsOf(), nil, sms)
	h.positions.last = freshFix()
	j := &fakeJourney{}
	s := newTestScheduler(h, j, nil, 5*time.Millisecond)
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	assert.Empty(t, sms.messages())
	assert.Zero(t, j.markCount())

	h2 := newHarness(contactsOf("+911"), nil, sms)
	s2 := newTestScheduler(h2, j, nil, 5*time.Millisecond)
	require.NoError(t, s2.Start(context.Background()))
	require.Eventually(t, func() bool {
		h2.positions.mu.Lock()
		defer h2.positions.mu.Unlock()
		return h2.positions.freshCalls >= 2
	}, time.Second, time.Millisecond)
	s2.Stop()
	assert.Empty(t, sms.messages(), "no position means no message")
}

func TestScheduler_LowBatteryIsRateLimited(t *testing.T) {
	t.Parallel()

	sms := &fakeChannel{name: "sms"}
	h := newHarness(contactsOf("+911"), fakeBattery{level: 12}, sms)
	h.positions.last = freshFix()
	s := newTestScheduler(h, &fakeJourney{}, fakeBattery{level: 12}, 2*time.Millisecond)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return len(sms.messages()) >= 6 }, time.Second, time.Millisecond)
	s.Stop()

	low := 0
	for _, m := range sms.messages() {
		if strings.HasPrefix(m.text, "Low battery") {
			low++
		}
	}
	assert.Equal(t, 1, low)
}

func TestScheduler_StartTwice(t *testing.T) {
	t.Parallel()

	h := newHarness(contactsOf("+911"), nil, &fakeChannel{name: "sms"})
	h.positions.last = freshFix()
	s := newTestScheduler(h, &fakeJourney{}, nil, time.Hour)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), apperr.ErrConflict)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	h := newHarness(contactsOf("+911"), nil, &fakeChannel{name: "sms"})
	s := newTestScheduler(h, &fakeJourney{}, nil, time.Hour)
	s.Stop()
	assert.False(t, s.Running())
}

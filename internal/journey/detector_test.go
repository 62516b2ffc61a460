package journey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/trailguard/internal/models"
)

func newDetector(e *env) *Detector {
	return NewDetector(e.machine, e.positions, DetectorConfig{
		PollInterval:      30 * time.Second,
		SpeedThresholdKph: 10,
		StopCooldown:      5 * time.Minute,
	}, quietLogger())
}

func TestDetector_StartsAndStopsAfterCooldown(t *testing.T) {
	t.Parallel()

	e := newEnv(someContacts())
	d := newDetector(e)
	require.Equal(t, 10, d.ConfirmTicks())

	readings := []float64{25, 25, 25, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}
	ctx := context.Background()
	for i, kph := range readings {
		e.positions.setSpeed(kph)
		d.Tick(ctx)

		switch {
		case i < len(readings)-1:
			require.Equal(t, models.PhaseActive, e.machine.Phase(), "tick %d", i+1)
		default:
			assert.Equal(t, models.PhaseIdle, e.machine.Phase(), "tick %d", i+1)
		}
	}
	assert.Equal(t, 1, e.runner.starts)
	assert.Equal(t, 1, e.runner.stops)
	assert.Equal(t, 1, e.arrival.count())
}

func TestDetector_MovingReadingDisarmsConfirmation(t *testing.T) {
	t.Parallel()

	e := newEnv(someContacts())
	d := newDetector(e)
	ctx := context.Background()

	e.positions.setSpeed(30)
	d.Tick(ctx)
	for i := 0; i < 9; i++ {
		e.positions.setSpeed(3)
		d.Tick(ctx)
	}
	e.positions.setSpeed(15)
	d.Tick(ctx)
	for i := 0; i < 9; i++ {
		e.positions.setSpeed(3)
		d.Tick(ctx)
	}
	assert.Equal(t, models.PhaseActive, e.machine.Phase())

	e.positions.setSpeed(3)
	d.Tick(ctx)
	assert.Equal(t, models.PhaseIdle, e.machine.Phase())
}

func TestDetector_MissingReadingsNeitherCountNorReset(t *testing.T) {
	t.Parallel()

	e := newEnv(someContacts())
	d := NewDetector(e.machine, e.positions, DetectorConfig{
		PollInterval: 30 * time.Second, SpeedThresholdKph: 10, StopCooldown: 90 * time.Second,
	}, quietLogger())
	ctx := context.Background()

	e.positions.setSpeed(20)
	d.Tick(ctx)
	e.positions.setSpeed(2)
	d.Tick(ctx)
	e.positions.setSpeed(2)
	d.Tick(ctx)

	e.positions.mu.Lock()
	e.positions.last.Speed = nil
	e.positions.mu.Unlock()
	d.Tick(ctx)
	e.positions.enabled = false
	d.Tick(ctx)
	assert.Equal(t, models.PhaseActive, e.machine.Phase())

	e.positions.enabled = true
	e.positions.setSpeed(2)
	d.Tick(ctx)
	assert.Equal(t, models.PhaseIdle, e.machine.Phase())
}

func TestDetector_RepeatedFixIsNotANewReading(t *testing.T) {
	t.Parallel()

	e := newEnv(someContacts())
	d := NewDetector(e.machine, e.positions, DetectorConfig{
		PollInterval: 30 * time.Second, SpeedThresholdKph: 10, StopCooldown: 90 * time.Second,
	}, quietLogger())
	ctx := context.Background()

	e.positions.setSpeed(20)
	d.Tick(ctx)
	require.Equal(t, models.PhaseActive, e.machine.Phase())

	// The device stops reporting after one slow fix.
	e.positions.setSpeed(5)
	for i := 0; i < 10; i++ {
		d.Tick(ctx)
	}
	assert.Equal(t, models.PhaseActive, e.machine.Phase())

	e.positions.setSpeed(5)
	d.Tick(ctx)
	e.positions.setSpeed(5)
	d.Tick(ctx)
	assert.Equal(t, models.PhaseIdle, e.machine.Phase())
}

func TestDetector_StartFailureIsLoggedNotFatal(t *testing.T) {
	t.Parallel()

	e := newEnv(fakeContacts{})
	d := newDetector(e)
	e.positions.setSpeed(40)
	d.Tick(context.Background())
	d.Tick(context.Background())
	assert.Equal(t, models.PhaseIdle, e.machine.Phase())
}

func TestDetector_LeavesManualJourneysAlone(t *testing.T) {
	t.Parallel()

	e := newEnv(someContacts())
	d := NewDetector(e.machine, e.positions, DetectorConfig{
		PollInterval: time.Second, SpeedThresholdKph: 10, StopCooldown: time.Second,
	}, quietLogger())

	_, err := e.machine.Start(context.Background(), models.TriggerManual)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		e.positions.setSpeed(0)
		d.Tick(context.Background())
	}
	assert.Equal(t, models.PhaseActive, e.machine.Phase())
}

func TestDetector_EqualToThresholdDoesNotStart(t *testing.T) {
	t.Parallel()

	e := newEnv(someContacts())
	d := newDetector(e)
	e.positions.setSpeed(10)
	d.Tick(context.Background())
	assert.Equal(t, models.PhaseIdle, e.machine.Phase())
}

func TestDetector_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	e := newEnv(someContacts())
	d := NewDetector(e.machine, e.positions, DetectorConfig{
		PollInterval: 5 * time.Millisecond, SpeedThresholdKph: 10, StopCooldown: time.Second,
	}, quietLogger())
	e.positions.setSpeed(50)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return e.machine.Phase() == models.PhaseActive }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

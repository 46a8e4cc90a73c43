package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sp500-autopilot/internal/model"
)

func newTestController(maxCycles int) *Controller {
	return NewController(model.CycleConfig{
		Enabled:            true,
		TargetScore:        70,
		MaxCycles:          maxCycles,
		DelayBetweenCycles: 30,
	})
}

func TestStart_FromIdle(t *testing.T) {
	c := newTestController(3)
	now := time.Date(2024, 7, 5, 14, 15, 0, 0, time.UTC)

	gen, err := c.Start(now)
	require.NoError(t, err)

	st := c.State()
	assert.Equal(t, model.CycleRunning, st.Phase)
	assert.Equal(t, 0, st.CurrentCycle)
	assert.Equal(t, now, st.StartTime)

	// First cycle is due immediately.
	g, due := c.CycleDue(now)
	assert.True(t, due)
	assert.Equal(t, gen, g)
}

func TestStart_RejectedWhileRunningOrDisabled(t *testing.T) {
	c := newTestController(3)
	now := time.Now()

	_, err := c.Start(now)
	require.NoError(t, err)
	_, err = c.Start(now)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	d := NewController(model.CycleConfig{Enabled: false})
	_, err = d.Start(now)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestExhaustion_AfterMaxSubThresholdCycles(t *testing.T) {
	c := newTestController(3)
	now := time.Date(2024, 7, 5, 14, 15, 0, 0, time.UTC)

	gen, err := c.Start(now)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		g, due := c.CycleDue(now)
		require.True(t, due, "cycle %d should be due", i+1)
		c.OnCycleResult(g, 50+float64(i), true, now)
		require.Equal(t, gen, g)
		now = now.Add(31 * time.Minute)
	}

	st := c.State()
	assert.Equal(t, model.CycleExhausted, st.Phase)
	assert.Equal(t, 3, st.CurrentCycle)
	assert.Equal(t, 52.0, st.LastScore)

	// No further cycles scheduled.
	_, due := c.CycleDue(now.Add(24 * time.Hour))
	assert.False(t, due)
}

func TestSuccess_AtTargetScore(t *testing.T) {
	c := newTestController(5)
	now := time.Now()

	gen, err := c.Start(now)
	require.NoError(t, err)

	_, due := c.CycleDue(now)
	require.True(t, due)
	c.OnCycleResult(gen, 70, true, now) // exactly at target counts

	assert.Equal(t, model.CycleSucceeded, c.State().Phase)
	assert.False(t, c.Running())
}

func TestDelayBetweenCycles(t *testing.T) {
	c := newTestController(5)
	now := time.Date(2024, 7, 5, 14, 15, 0, 0, time.UTC)

	gen, err := c.Start(now)
	require.NoError(t, err)

	_, due := c.CycleDue(now)
	require.True(t, due)

	// No second cycle while the first is in flight.
	_, due = c.CycleDue(now.Add(time.Minute))
	assert.False(t, due)

	c.OnCycleResult(gen, 40, true, now.Add(10*time.Minute))

	// Next cycle waits for the configured delay from completion.
	_, due = c.CycleDue(now.Add(20 * time.Minute))
	assert.False(t, due)
	_, due = c.CycleDue(now.Add(41 * time.Minute))
	assert.True(t, due)
}

func TestStop_DiscardsLateResult(t *testing.T) {
	c := newTestController(3)
	now := time.Now()

	gen, err := c.Start(now)
	require.NoError(t, err)
	_, due := c.CycleDue(now)
	require.True(t, due)

	require.NoError(t, c.Stop())
	assert.Equal(t, model.CycleStopped, c.State().Phase)

	// The analysis call was outstanding when Stop arrived; its result must not
	// change state.
	c.OnCycleResult(gen, 99, true, now.Add(time.Minute))
	st := c.State()
	assert.Equal(t, model.CycleStopped, st.Phase)
	assert.Equal(t, 0, st.CurrentCycle)
	assert.Equal(t, 0.0, st.LastScore)
}

func TestStop_OnlyValidFromRunning(t *testing.T) {
	c := newTestController(3)
	assert.ErrorIs(t, c.Stop(), ErrNotRunning)
}

func TestCollaboratorFailure_CountsAsCompletedCycle(t *testing.T) {
	c := newTestController(2)
	now := time.Now()

	_, err := c.Start(now)
	require.NoError(t, err)

	g, _ := c.CycleDue(now)
	c.OnCycleResult(g, 0, false, now) // backend error: last score unchanged
	st := c.State()
	assert.Equal(t, 1, st.CurrentCycle)
	assert.Equal(t, 0.0, st.LastScore)
	assert.Equal(t, model.CycleRunning, st.Phase)

	g, due := c.CycleDue(now.Add(31 * time.Minute))
	require.True(t, due)
	c.OnCycleResult(g, 0, false, now.Add(31*time.Minute))
	assert.Equal(t, model.CycleExhausted, c.State().Phase)
}

func TestRearm_FromTerminalStates(t *testing.T) {
	c := newTestController(1)
	now := time.Now()

	gen, err := c.Start(now)
	require.NoError(t, err)
	g, _ := c.CycleDue(now)
	c.OnCycleResult(g, 10, true, now)
	require.Equal(t, model.CycleExhausted, c.State().Phase)

	gen2, err := c.Start(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Greater(t, gen2, gen)

	st := c.State()
	assert.Equal(t, model.CycleRunning, st.Phase)
	assert.Equal(t, 0, st.CurrentCycle)
	assert.Equal(t, 0.0, st.LastScore)
}

func TestConfigure_RejectedWhileRunning(t *testing.T) {
	c := newTestController(3)
	_, err := c.Start(time.Now())
	require.NoError(t, err)

	err = c.Configure(model.CycleConfig{Enabled: true, TargetScore: 80, MaxCycles: 2, DelayBetweenCycles: 5})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sp500-autopilot/internal/model"
)

func testDefaults() State {
	return State{
		Schedules: []model.ScheduleEntry{
			{Name: model.TriggerBulkAnalysis, Enabled: false, TimeOfDay: "09:30"},
			{Name: model.TriggerFinalistAnalysis, Enabled: false, TimeOfDay: "14:30"},
		},
		Trading: model.TradingConfig{
			AutoBuyTime:  "09:30",
			AutoSellTime: "15:45",
			Currency:     "USD",
		},
		Threshold: model.CycleConfig{TargetScore: 70, MaxCycles: 5, DelayBetweenCycles: 30},
	}
}

func TestNewManager_SeedsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	m, err := NewManager(path, testDefaults())
	require.NoError(t, err)
	assert.Len(t, m.Schedules(), 2)
	assert.Equal(t, "USD", m.Trading().Currency)

	// A second manager on the same file sees the persisted state, not defaults.
	require.NoError(t, m.UpdateSchedule(model.TriggerBulkAnalysis, true, "10:00"))

	m2, err := NewManager(path, testDefaults())
	require.NoError(t, err)
	entries := m2.Schedules()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Enabled)
	assert.Equal(t, "10:00", entries[0].TimeOfDay)
}

func TestUpdateSchedule_RejectsMalformedTime(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "s.json"), testDefaults())
	require.NoError(t, err)

	err = m.UpdateSchedule(model.TriggerBulkAnalysis, true, "9h30")
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	err = m.UpdateSchedule(model.TriggerBulkAnalysis, true, "24:30")
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	// Parses, but is not zero-padded so it would never match the evaluator.
	err = m.UpdateSchedule(model.TriggerBulkAnalysis, true, "9:30")
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	// State untouched after rejection.
	assert.Equal(t, "09:30", m.Schedules()[0].TimeOfDay)
}

func TestUpdateTrading_ValidatesTimes(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "s.json"), testDefaults())
	require.NoError(t, err)

	cfg := m.Trading()
	cfg.AutoBuyTime = "bogus"
	assert.ErrorIs(t, m.UpdateTrading(cfg), ErrInvalidTimeOfDay)

	cfg.AutoBuyTime = "10:15"
	cfg.InvestmentPercent = 50
	require.NoError(t, m.UpdateTrading(cfg))
	assert.Equal(t, 50.0, m.Trading().InvestmentPercent)
}

func TestUpdateThreshold_Bounds(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "s.json"), testDefaults())
	require.NoError(t, err)

	assert.Error(t, m.UpdateThreshold(model.CycleConfig{TargetScore: 0, MaxCycles: 5}))
	assert.Error(t, m.UpdateThreshold(model.CycleConfig{TargetScore: 150, MaxCycles: 5}))
	assert.Error(t, m.UpdateThreshold(model.CycleConfig{TargetScore: 70, MaxCycles: 0}))

	require.NoError(t, m.UpdateThreshold(model.CycleConfig{
		Enabled: true, TargetScore: 80, MaxCycles: 3, DelayBetweenCycles: 15,
	}))
	assert.Equal(t, 80.0, m.Threshold().TargetScore)
}

package settings

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sp500-autopilot/internal/model"
)

// ErrInvalidTimeOfDay rejects malformed HH:MM values at configuration-write
// time, so they never reach the schedule evaluator.
var ErrInvalidTimeOfDay = errors.New("invalid time of day, want HH:MM")

// Manager owns the persisted coordinator settings with concurrency safety.
// Collaborators get copies, never the underlying state.
type Manager struct {
	mu       sync.Mutex
	state    *State
	filePath string
}

// NewManager creates a Manager, loading or initializing state from disk.
func NewManager(filePath string, defaults State) (*Manager, error) {
	state, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}

	// Initialize if fresh state
	if len(state.Schedules) == 0 {
		state.Schedules = defaults.Schedules
		state.Trading = defaults.Trading
		state.Threshold = defaults.Threshold
	}

	for _, e := range state.Schedules {
		if err := validateTimeOfDay(e.TimeOfDay); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.Name, err)
		}
	}

	m := &Manager{state: state, filePath: filePath}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// Schedules returns a copy of the persisted schedule entries.
func (m *Manager) Schedules() []model.ScheduleEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ScheduleEntry(nil), m.state.Schedules...)
}

// Trading returns a read-only snapshot of the trading configuration.
func (m *Manager) Trading() model.TradingConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Trading
}

// Threshold returns the threshold cycle seed values.
func (m *Manager) Threshold() model.CycleConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Threshold
}

// UpdateSchedule applies and persists a schedule configuration change.
func (m *Manager) UpdateSchedule(name model.TriggerType, enabled bool, timeOfDay string) error {
	if err := validateTimeOfDay(timeOfDay); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.state.Schedules {
		if m.state.Schedules[i].Name == name {
			m.state.Schedules[i].Enabled = enabled
			m.state.Schedules[i].TimeOfDay = timeOfDay
			if err := m.save(); err != nil {
				log.Error().Err(err).Msg("failed to save settings after schedule update")
			}
			return nil
		}
	}
	return fmt.Errorf("unknown schedule entry %q", name)
}

// UpdateTrading validates and persists a trading configuration change.
func (m *Manager) UpdateTrading(cfg model.TradingConfig) error {
	if err := validateTimeOfDay(cfg.AutoBuyTime); err != nil {
		return fmt.Errorf("auto_buy_time: %w", err)
	}
	if err := validateTimeOfDay(cfg.AutoSellTime); err != nil {
		return fmt.Errorf("auto_sell_time: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Trading = cfg
	if err := m.save(); err != nil {
		log.Error().Err(err).Msg("failed to save settings after trading update")
	}
	return nil
}

// UpdateThreshold persists new threshold cycle seed values.
func (m *Manager) UpdateThreshold(cfg model.CycleConfig) error {
	if cfg.TargetScore <= 0 || cfg.TargetScore > 100 {
		return fmt.Errorf("target_score must be in (0, 100], got %.1f", cfg.TargetScore)
	}
	if cfg.MaxCycles <= 0 {
		return fmt.Errorf("max_cycles must be positive, got %d", cfg.MaxCycles)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Threshold = cfg
	if err := m.save(); err != nil {
		log.Error().Err(err).Msg("failed to save settings after threshold update")
	}
	return nil
}

func (m *Manager) save() error {
	return SaveState(m.filePath, m.state)
}

func validateTimeOfDay(v string) error {
	// The evaluator matches zero-padded HH:MM by string equality, so "9:30"
	// must be rejected even though time.Parse accepts it.
	parsed, err := time.Parse("15:04", v)
	if err != nil || parsed.Format("15:04") != v {
		return fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, v)
	}
	return nil
}

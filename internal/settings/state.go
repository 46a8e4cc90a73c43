package settings

import (
	"encoding/json"
	"os"
	"time"

	"sp500-autopilot/internal/model"
)

// State is everything the coordinator persists between runs: schedule entries,
// the broker-facing trading configuration, and the threshold cycle seed.
type State struct {
	Schedules []model.ScheduleEntry `json:"schedules"`
	Trading   model.TradingConfig   `json:"trading"`
	Threshold model.CycleConfig     `json:"threshold"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// LoadState reads the state from a JSON file. Returns a zero state if the file
// doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState writes the state to a JSON file.
func SaveState(filePath string, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

package model

import "time"

// CyclePhase is the threshold controller's state machine phase.
type CyclePhase string

const (
	CycleIdle      CyclePhase = "IDLE"
	CycleRunning   CyclePhase = "RUNNING"
	CycleSucceeded CyclePhase = "SUCCEEDED"
	CycleExhausted CyclePhase = "EXHAUSTED"
	CycleStopped   CyclePhase = "STOPPED"
)

// Terminal reports whether no further cycles can run without a new Start.
func (p CyclePhase) Terminal() bool {
	return p == CycleSucceeded || p == CycleExhausted || p == CycleStopped
}

// CycleConfig seeds the threshold controller. Persisted with the settings.
type CycleConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	TargetScore        float64 `json:"target_score" yaml:"target_score"`
	MaxCycles          int     `json:"max_cycles" yaml:"max_cycles"`
	DelayBetweenCycles int     `json:"delay_between_cycles" yaml:"delay_between_cycles"` // minutes
}

// CycleState is a read-only snapshot of the controller, exposed for status
// reporting. Invariant: CurrentCycle <= MaxCycles.
type CycleState struct {
	Phase        CyclePhase
	Enabled      bool
	Running      bool
	CurrentCycle int
	MaxCycles    int
	TargetScore  float64
	LastScore    float64
	StartTime    time.Time
	NextCycleAt  time.Time
}

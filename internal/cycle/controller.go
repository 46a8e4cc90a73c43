package cycle

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"sp500-autopilot/internal/model"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("threshold cycle already running")
	// ErrNotRunning is returned by Stop outside the Running phase.
	ErrNotRunning = errors.New("threshold cycle not running")
	// ErrDisabled is returned by Start when threshold mode is switched off.
	ErrDisabled = errors.New("threshold mode disabled")
)

// Controller is the bounded retry state machine: it repeatedly triggers
// re-analysis until the target score is reached or the cycle budget is
// exhausted. Single-owner: only the controller mutates its state; the
// coordinator reads snapshots and issues commands.
type Controller struct {
	cfg model.CycleConfig

	phase         model.CyclePhase
	currentCycle  int
	lastScore     float64
	startTime     time.Time
	nextCycleAt   time.Time
	cycleInFlight bool

	// generation invalidates late-arriving results: a result stamped with an
	// older generation than the current one is discarded, not applied.
	generation int
}

// NewController seeds the controller from persisted configuration.
func NewController(cfg model.CycleConfig) *Controller {
	if cfg.TargetScore <= 0 {
		cfg.TargetScore = 70
	}
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = 5
	}
	if cfg.DelayBetweenCycles <= 0 {
		cfg.DelayBetweenCycles = 30
	}
	return &Controller{cfg: cfg, phase: model.CycleIdle}
}

// Configure applies a settings change. Allowed only outside Running.
func (c *Controller) Configure(cfg model.CycleConfig) error {
	if c.phase == model.CycleRunning {
		return ErrAlreadyRunning
	}
	c.cfg = cfg
	return nil
}

// Running reports whether a threshold run is in progress.
func (c *Controller) Running() bool { return c.phase == model.CycleRunning }

// Start arms the machine. Valid from Idle or any terminal phase (terminal
// phases re-arm); returns the generation the first cycle must carry.
func (c *Controller) Start(now time.Time) (int, error) {
	if !c.cfg.Enabled {
		return 0, ErrDisabled
	}
	if c.phase == model.CycleRunning {
		return 0, ErrAlreadyRunning
	}

	c.generation++
	c.phase = model.CycleRunning
	c.currentCycle = 0
	c.lastScore = 0
	c.startTime = now
	c.nextCycleAt = now // first cycle due immediately
	c.cycleInFlight = false

	log.Info().
		Float64("target_score", c.cfg.TargetScore).
		Int("max_cycles", c.cfg.MaxCycles).
		Int("delay_min", c.cfg.DelayBetweenCycles).
		Msg("threshold run started")
	return c.generation, nil
}

// Stop cancels the run and any pending cycle. A result arriving after Stop
// carries a stale generation and is discarded.
func (c *Controller) Stop() error {
	if c.phase != model.CycleRunning {
		return ErrNotRunning
	}
	c.generation++
	c.phase = model.CycleStopped
	c.cycleInFlight = false
	c.nextCycleAt = time.Time{}
	log.Info().Int("cycle", c.currentCycle).Msg("threshold run stopped")
	return nil
}

// CycleDue reports whether the coordinator should launch the next analysis
// cycle, and stamps it in flight when so. Returns the generation the result
// must carry back.
func (c *Controller) CycleDue(now time.Time) (int, bool) {
	if c.phase != model.CycleRunning || c.cycleInFlight || now.Before(c.nextCycleAt) {
		return 0, false
	}
	c.cycleInFlight = true
	return c.generation, true
}

// OnCycleResult applies a completed analysis cycle. ok=false means the
// collaborator call failed: the cycle still counts, last score is unchanged,
// and the machine proceeds to the next cycle or exhaustion exactly as on a
// low-score result. Results with a stale generation are ignored.
func (c *Controller) OnCycleResult(gen int, score float64, ok bool, now time.Time) {
	if gen != c.generation || c.phase != model.CycleRunning {
		log.Debug().Int("gen", gen).Msg("discarding stale cycle result")
		return
	}

	c.cycleInFlight = false
	c.currentCycle++
	if ok {
		c.lastScore = score
	}

	switch {
	case ok && c.lastScore >= c.cfg.TargetScore:
		c.phase = model.CycleSucceeded
		c.nextCycleAt = time.Time{}
		log.Info().
			Int("cycle", c.currentCycle).
			Float64("score", c.lastScore).
			Msg("threshold reached")
	case c.currentCycle >= c.cfg.MaxCycles:
		c.phase = model.CycleExhausted
		c.nextCycleAt = time.Time{}
		log.Info().
			Int("max_cycles", c.cfg.MaxCycles).
			Float64("best_score", c.lastScore).
			Msg("cycle budget exhausted, no recommendation reached the threshold")
	default:
		c.nextCycleAt = now.Add(time.Duration(c.cfg.DelayBetweenCycles) * time.Minute)
		log.Info().
			Int("cycle", c.currentCycle).
			Int("of", c.cfg.MaxCycles).
			Float64("score", score).
			Time("next_cycle_at", c.nextCycleAt).
			Msg("threshold not reached, next cycle scheduled")
	}
}

// State returns a read-only snapshot for status reporting.
func (c *Controller) State() model.CycleState {
	return model.CycleState{
		Phase:        c.phase,
		Enabled:      c.cfg.Enabled,
		Running:      c.phase == model.CycleRunning,
		CurrentCycle: c.currentCycle,
		MaxCycles:    c.cfg.MaxCycles,
		TargetScore:  c.cfg.TargetScore,
		LastScore:    c.lastScore,
		StartTime:    c.startTime,
		NextCycleAt:  c.nextCycleAt,
	}
}

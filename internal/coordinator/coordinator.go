package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"sp500-autopilot/internal/analysis"
	"sp500-autopilot/internal/broker"
	"sp500-autopilot/internal/calendar"
	"sp500-autopilot/internal/cycle"
	"sp500-autopilot/internal/gate"
	"sp500-autopilot/internal/model"
	"sp500-autopilot/internal/notifier"
	"sp500-autopilot/internal/recorder"
	"sp500-autopilot/internal/schedule"
	"sp500-autopilot/internal/settings"
)

// Notifier is the outbound message surface the coordinator uses.
type Notifier interface {
	Send(text string) error
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Threshold run pipeline stages. A run drives the backend through bulk analysis
// then finalist analysis before a cycle result can be applied.
const (
	stageNone = iota
	stageBulk
	stageFinalist
)

// Coordinator is the composition root: it owns the tick, dispatches fire events
// to the collaborators, drives the threshold pipeline, and answers commands.
// Registry, controller, and gate state are mutated only under c.mu.
type Coordinator struct {
	mu sync.Mutex

	clock      func() time.Time
	registry   *schedule.Registry
	controller *cycle.Controller
	gate       *gate.Gate
	settings   *settings.Manager
	analysis   analysis.Service
	broker     broker.Adapter
	notifier   Notifier
	recorder   recorder.Recorder
	ctx        context.Context

	// broker snapshot, refreshed each tick
	brokerConnected    bool
	autoTradingEnabled bool

	// per-action in-flight flags; commands are never stacked
	bulkInFlight     bool
	finalistInFlight bool

	// threshold run pipeline
	cycleStage int
	cycleGen   int

	// a scheduled finalist run whose completion feeds the gate
	finalistAwaitingGate bool

	// one idle poll right after a start command is tolerated before the run
	// is declared dead
	idleSeen bool

	// messages composed under the lock, flushed after it is released
	outbox []string

	// admitted symbol parked until the configured buy time
	pendingBuySymbol string
	waitState        model.TradingWaitState

	lastDecision *gate.Decision
	marketStatus model.MarketStatus
}

// Snapshot is the coordinator's state for status display.
type Snapshot struct {
	Market             model.MarketStatus
	Cycle              model.CycleState
	Schedules          []model.ScheduleEntry
	Wait               model.TradingWaitState
	BrokerConnected    bool
	AutoTradingEnabled bool
	LastDecision       *gate.Decision
}

// New wires the coordinator. The clock is injected so ticks are deterministic
// under test.
func New(
	ctx context.Context,
	clock func() time.Time,
	sm *settings.Manager,
	an analysis.Service,
	br broker.Adapter,
	nt Notifier,
	rec recorder.Recorder,
) *Coordinator {
	c := &Coordinator{
		clock:      clock,
		registry:   schedule.NewRegistry(sm.Schedules(), calendar.Eastern),
		controller: cycle.NewController(sm.Threshold()),
		gate:       gate.NewGate(sm.Threshold().TargetScore),
		settings:   sm,
		analysis:   an,
		broker:     br,
		notifier:   nt,
		recorder:   rec,
		ctx:        ctx,
	}

	// Guards run before the daily latch, so a blocked fire does not consume
	// the entry's day.
	c.registry.SetGuard(model.TriggerAutoBuy, func(now time.Time) bool {
		return calendar.IsOpen(now) && !c.autoTradingEnabled
	})
	c.registry.SetGuard(model.TriggerAutoThreshold, func(now time.Time) bool {
		return !c.controller.Running()
	})
	return c
}

// RegisterJobs attaches the minute tick and the analysis poll to the cron.
func (c *Coordinator) RegisterJobs(cr *cron.Cron) error {
	if _, err := cr.AddFunc("0 * * * * *", c.Tick); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	if _, err := cr.AddFunc("*/15 * * * * *", c.Poll); err != nil {
		return fmt.Errorf("register poll: %w", err)
	}
	return nil
}

// Bootstrap pushes the persisted trading configuration to the broker adapter
// and takes the first status snapshot.
func (c *Coordinator) Bootstrap() {
	if err := c.broker.UpdateConfig(c.ctx, c.settings.Trading()); err != nil {
		log.Warn().Err(err).Msg("push trading config to broker")
	}
	c.refreshBroker()
}

// Tick runs once per minute: one clock read, reused for the calendar verdict,
// the registry evaluation, and the cycle check.
func (c *Coordinator) Tick() {
	now := c.clock()
	c.refreshBroker()
	c.tick(now)
	c.flushOutbox()
}

func (c *Coordinator) tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.marketStatus = calendar.Status(now)

	for _, evt := range c.registry.Evaluate(now) {
		c.recordFire(evt)
		c.dispatch(now, evt)
	}

	if gen, due := c.controller.CycleDue(now); due {
		c.launchCycle(gen, now)
	}

	c.deriveWaitState(now)
}

// Poll tracks analysis progress between ticks and advances the threshold
// pipeline or the gate handoff when a phase completes.
func (c *Coordinator) Poll() {
	now := c.clock()
	c.poll(now)
	c.flushOutbox()
}

func (c *Coordinator) poll(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bulkInFlight && !c.finalistInFlight {
		return
	}

	st, err := c.analysis.Status(c.ctx)
	if err != nil {
		log.Warn().Err(err).Msg("poll analysis status")
		return
	}
	if st.Phase != analysis.PhaseIdle {
		c.idleSeen = false
	}

	switch st.Phase {
	case analysis.PhaseCompleted500:
		c.bulkInFlight = false
		if c.cycleStage == stageBulk {
			if err := c.analysis.StartFinalistAnalysis(c.ctx); err != nil {
				log.Error().Err(err).Msg("start finalist analysis for cycle")
				c.failCycle(now)
				return
			}
			c.cycleStage = stageFinalist
			c.finalistInFlight = true
		}

	case analysis.PhaseCompleted10:
		c.finalistInFlight = false
		rec, err := c.analysis.LatestRecommendation(c.ctx)
		if err != nil {
			log.Warn().Err(err).Msg("fetch final recommendation")
		}

		switch {
		case c.cycleStage == stageFinalist:
			c.cycleStage = stageNone
			if err != nil || rec == nil {
				c.controller.OnCycleResult(c.cycleGen, 0, false, now)
			} else {
				c.controller.OnCycleResult(c.cycleGen, rec.Score, true, now)
			}
			state := c.controller.State()
			c.recordCycle(state)
			c.trySend(notifier.FormatCycleReport(state, c.settings.Threshold(), now))
			if state.Phase == model.CycleSucceeded && rec != nil {
				c.admitAndSend(now, rec)
			}
		case c.finalistAwaitingGate:
			c.finalistAwaitingGate = false
			if err == nil && rec != nil && !c.controller.Running() {
				c.admitAndSend(now, rec)
			}
		}

	case analysis.PhaseIdle:
		// The backend may still report idle on the first poll after a start
		// command; only a repeated observation means the run is dead.
		if !c.idleSeen {
			c.idleSeen = true
			return
		}
		c.idleSeen = false
		c.bulkInFlight = false
		c.finalistInFlight = false
		c.finalistAwaitingGate = false
		if c.cycleStage != stageNone {
			c.failCycle(now)
		}
	}
}

func (c *Coordinator) dispatch(now time.Time, evt model.FireEvent) {
	log.Info().
		Str("trigger", string(evt.Trigger)).
		Str("time_of_day", evt.TimeOfDay).
		Msg("schedule trigger fired")

	switch evt.Trigger {
	case model.TriggerBulkAnalysis:
		if c.bulkInFlight {
			log.Warn().Msg("bulk analysis already in flight, skipping")
			return
		}
		if err := c.analysis.StartBulkAnalysis(c.ctx); err != nil {
			log.Error().Err(err).Msg("start bulk analysis")
			c.trySend(fmt.Sprintf("❌ Bulk analysis failed to start: %v", err))
			return
		}
		c.bulkInFlight = true
		c.trySend(notifier.FormatFireEvent(evt))

	case model.TriggerFinalistAnalysis:
		if c.finalistInFlight {
			log.Warn().Msg("finalist analysis already in flight, skipping")
			return
		}
		if err := c.analysis.StartFinalistAnalysis(c.ctx); err != nil {
			log.Error().Err(err).Msg("start finalist analysis")
			c.trySend(fmt.Sprintf("❌ Finalist analysis failed to start: %v", err))
			return
		}
		c.finalistInFlight = true
		c.finalistAwaitingGate = true
		c.trySend(notifier.FormatFireEvent(evt))

	case model.TriggerAutoBuy:
		c.executeAutoBuy(now)

	case model.TriggerAutoThreshold:
		if _, err := c.controller.Start(now); err != nil {
			log.Warn().Err(err).Msg("scheduled threshold start refused")
			return
		}
		c.trySend(notifier.FormatFireEvent(evt))
	}
}

// launchCycle starts one threshold analysis cycle: bulk first, the Poll
// advances to finalist when the backend reports completed_500.
func (c *Coordinator) launchCycle(gen int, now time.Time) {
	if c.bulkInFlight || c.finalistInFlight {
		// An earlier run is still on the backend; count this cycle as failed
		// rather than stacking commands.
		c.controller.OnCycleResult(gen, 0, false, now)
		return
	}
	if err := c.analysis.StartBulkAnalysis(c.ctx); err != nil {
		log.Error().Err(err).Msg("start bulk analysis for cycle")
		c.controller.OnCycleResult(gen, 0, false, now)
		return
	}
	c.cycleGen = gen
	c.cycleStage = stageBulk
	c.bulkInFlight = true
}

// failCycle aborts the in-flight pipeline and applies a failed cycle result.
func (c *Coordinator) failCycle(now time.Time) {
	gen := c.cycleGen
	c.cycleStage = stageNone
	c.controller.OnCycleResult(gen, 0, false, now)
	state := c.controller.State()
	c.recordCycle(state)
}

// admitAndSend runs the gate on a fresh recommendation and, on admission,
// either starts auto trading immediately or parks the symbol until the
// configured buy time.
func (c *Coordinator) admitAndSend(now time.Time, rec *model.RecommendationRecord) {
	d := c.gate.Admit(*rec, c.brokerConnected)
	c.lastDecision = &d
	c.recordDecision(d)
	c.trySend(notifier.FormatDecision(d))
	if !d.Admitted {
		log.Info().
			Str("symbol", d.Symbol).
			Str("reason", d.Reason).
			Str("detail", d.Detail).
			Msg("recommendation rejected")
		return
	}

	trading := c.settings.Trading()
	if beforeTimeOfDay(now, trading.AutoBuyTime) {
		c.pendingBuySymbol = rec.Symbol
		c.waitState = model.TradingWaitState{IsWaiting: true, WaitingUntil: trading.AutoBuyTime}
		log.Info().
			Str("symbol", rec.Symbol).
			Str("until", trading.AutoBuyTime).
			Msg("admitted before buy time, waiting")
		c.trySend(fmt.Sprintf("⏳ %s admitted, waiting for buy time %s", rec.Symbol, trading.AutoBuyTime))
		return
	}
	c.startAutoTrade(rec.Symbol)
}

// executeAutoBuy fires the parked symbol at the configured buy time.
func (c *Coordinator) executeAutoBuy(now time.Time) {
	if c.pendingBuySymbol == "" {
		log.Debug().Msg("auto-buy fired with no pending symbol")
		return
	}
	symbol := c.pendingBuySymbol
	c.pendingBuySymbol = ""
	c.waitState = model.TradingWaitState{}
	c.startAutoTrade(symbol)
}

func (c *Coordinator) startAutoTrade(symbol string) {
	if err := c.broker.StartAutoTrade(c.ctx, symbol); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("start auto trade")
		c.trySend(fmt.Sprintf("❌ Auto trade start failed for %s: %v", symbol, err))
		return
	}
	c.autoTradingEnabled = true
	c.recordOrder(recorder.OrderRecord{Symbol: symbol, Side: broker.SideBuy, Kind: "auto"})
	log.Info().Str("symbol", symbol).Msg("auto trading started")
	c.trySend(fmt.Sprintf("🚀 Auto trading started for <b>%s</b>", symbol))
}

func (c *Coordinator) refreshBroker() {
	st, err := c.broker.Status(c.ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("broker status")
		c.brokerConnected = false
		return
	}
	c.brokerConnected = st.Connected
	c.autoTradingEnabled = st.AutoTradingEnabled
}

// deriveWaitState recomputes the waiting flag each tick so a passed buy time
// never leaves a stale wait.
func (c *Coordinator) deriveWaitState(now time.Time) {
	if c.pendingBuySymbol == "" {
		c.waitState = model.TradingWaitState{}
		return
	}
	until := c.settings.Trading().AutoBuyTime
	c.waitState = model.TradingWaitState{
		IsWaiting:    beforeTimeOfDay(now, until),
		WaitingUntil: until,
	}
}

// Status returns a read-only snapshot for display.
func (c *Coordinator) Status() Snapshot {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Market:             calendar.Status(now),
		Cycle:              c.controller.State(),
		Schedules:          c.registry.Entries(),
		Wait:               c.waitState,
		BrokerConnected:    c.brokerConnected,
		AutoTradingEnabled: c.autoTradingEnabled,
		LastDecision:       c.lastDecision,
	}
}

func (c *Coordinator) recordFire(evt model.FireEvent) {
	if err := c.recorder.RecordFire(&recorder.FireRecord{
		Trigger:   string(evt.Trigger),
		TimeOfDay: evt.TimeOfDay,
		Date:      evt.Date,
	}); err != nil {
		log.Error().Err(err).Msg("record fire")
	}
}

func (c *Coordinator) recordDecision(d gate.Decision) {
	if err := c.recorder.RecordDecision(&recorder.DecisionRecord{
		Symbol:   d.Symbol,
		Score:    d.Score,
		Category: d.Category,
		Admitted: d.Admitted,
		Reason:   d.Reason,
	}); err != nil {
		log.Error().Err(err).Msg("record decision")
	}
}

func (c *Coordinator) recordCycle(st model.CycleState) {
	if err := c.recorder.RecordCycle(&recorder.CycleRecord{
		Cycle:     st.CurrentCycle,
		MaxCycles: st.MaxCycles,
		Score:     st.LastScore,
		Target:    st.TargetScore,
		Phase:     string(st.Phase),
	}); err != nil {
		log.Error().Err(err).Msg("record cycle")
	}
}

func (c *Coordinator) recordOrder(o recorder.OrderRecord) {
	if err := c.recorder.RecordOrder(&o); err != nil {
		log.Error().Err(err).Msg("record order")
	}
}

// trySend queues a message composed under the lock. Tick and Poll flush the
// queue after releasing it, so a slow Telegram send cannot stall the next tick
// or the command handler.
func (c *Coordinator) trySend(text string) {
	c.outbox = append(c.outbox, text)
}

func (c *Coordinator) flushOutbox() {
	c.mu.Lock()
	pending := c.outbox
	c.outbox = nil
	c.mu.Unlock()

	for _, text := range pending {
		if err := c.notifier.SendWithRetry(c.ctx, text, 3); err != nil {
			log.Error().Err(err).Msg("send notification")
		}
	}
}

// beforeTimeOfDay reports whether now's exchange-local HH:MM is strictly
// before the given time of day. String comparison is exact for zero-padded
// HH:MM values.
func beforeTimeOfDay(now time.Time, hhmm string) bool {
	return now.In(calendar.Eastern).Format("15:04") < hhmm
}

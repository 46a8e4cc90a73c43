package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sp500-autopilot/internal/analysis"
	"sp500-autopilot/internal/broker"
	"sp500-autopilot/internal/calendar"
	"sp500-autopilot/internal/model"
	"sp500-autopilot/internal/recorder"
	"sp500-autopilot/internal/settings"
)

type fakeAnalysis struct {
	status         analysis.SystemStatus
	rec            *model.RecommendationRecord
	bulkStarts     int
	finalistStarts int
	stops          int
}

func (f *fakeAnalysis) StartBulkAnalysis(context.Context) error {
	f.bulkStarts++
	return nil
}

func (f *fakeAnalysis) StartFinalistAnalysis(context.Context) error {
	f.finalistStarts++
	return nil
}

func (f *fakeAnalysis) StopAnalysis(context.Context) error {
	f.stops++
	return nil
}

func (f *fakeAnalysis) Status(context.Context) (analysis.SystemStatus, error) {
	return f.status, nil
}

func (f *fakeAnalysis) LatestRecommendation(context.Context) (*model.RecommendationRecord, error) {
	return f.rec, nil
}

type fakeBroker struct {
	status     broker.Status
	autoStarts []string
	autoStops  int
	orders     []string
}

func (f *fakeBroker) Status(context.Context) (broker.Status, error) { return f.status, nil }

func (f *fakeBroker) StartAutoTrade(_ context.Context, symbol string) error {
	f.autoStarts = append(f.autoStarts, symbol)
	return nil
}

func (f *fakeBroker) StopAutoTrade(context.Context) error {
	f.autoStops++
	return nil
}

func (f *fakeBroker) PlaceOrder(_ context.Context, symbol string, qty float64, side string) error {
	f.orders = append(f.orders, symbol)
	return nil
}

func (f *fakeBroker) UpdateConfig(context.Context, model.TradingConfig) error { return nil }

func (f *fakeBroker) Portfolio(context.Context) ([]broker.Position, error) { return nil, nil }

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Send(text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) SendWithRetry(_ context.Context, text string, _ int) error {
	return f.Send(text)
}

type fixture struct {
	coord    *Coordinator
	analysis *fakeAnalysis
	broker   *fakeBroker
	notifier *fakeNotifier
	now      time.Time
}

// eastern builds an exchange-local timestamp on Tuesday 2024-07-09, a regular
// trading day.
func eastern(hour, min int) time.Time {
	return time.Date(2024, 7, 9, hour, min, 0, 0, calendar.Eastern)
}

func newFixture(t *testing.T, defaults settings.State) *fixture {
	t.Helper()
	sm, err := settings.NewManager(filepath.Join(t.TempDir(), "settings.json"), defaults)
	require.NoError(t, err)

	f := &fixture{
		analysis: &fakeAnalysis{status: analysis.SystemStatus{Phase: analysis.PhaseRunning500}},
		broker:   &fakeBroker{status: broker.Status{Connected: true}},
		notifier: &fakeNotifier{},
	}
	f.coord = New(
		context.Background(),
		func() time.Time { return f.now },
		sm,
		f.analysis,
		f.broker,
		f.notifier,
		recorder.NewNoopRecorder(),
	)
	return f
}

func baseState() settings.State {
	return settings.State{
		Schedules: []model.ScheduleEntry{
			{Name: model.TriggerBulkAnalysis, Enabled: false, TimeOfDay: "09:31"},
			{Name: model.TriggerFinalistAnalysis, Enabled: false, TimeOfDay: "14:30"},
			{Name: model.TriggerAutoBuy, Enabled: false, TimeOfDay: "09:30"},
			{Name: model.TriggerAutoThreshold, Enabled: false, TimeOfDay: "14:15"},
		},
		Trading: model.TradingConfig{
			AutoBuyTime:  "09:30",
			AutoSellTime: "15:45",
			Currency:     "USD",
		},
		Threshold: model.CycleConfig{
			Enabled:            true,
			TargetScore:        70,
			MaxCycles:          2,
			DelayBetweenCycles: 30,
		},
	}
}

func TestTick_ScheduledBulkFiresOncePerDay(t *testing.T) {
	st := baseState()
	st.Schedules[0].Enabled = true
	f := newFixture(t, st)

	f.now = eastern(9, 31)
	f.coord.Tick()
	assert.Equal(t, 1, f.analysis.bulkStarts)

	// Same minute: latched.
	f.coord.Tick()
	assert.Equal(t, 1, f.analysis.bulkStarts)

	// Run completes, freeing the in-flight flag.
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted500}
	f.coord.Poll()

	// Next day, same minute: fires again.
	f.now = f.now.AddDate(0, 0, 1)
	f.coord.Tick()
	assert.Equal(t, 2, f.analysis.bulkStarts)
}

func TestThresholdPipeline_SucceedsAndStartsTrading(t *testing.T) {
	f := newFixture(t, baseState())

	assert.Equal(t, "🔄 Threshold run started", f.coord.HandleCommand("/startcycle"))

	// First cycle due on the next tick: bulk launches.
	f.now = eastern(14, 16)
	f.coord.Tick()
	assert.Equal(t, 1, f.analysis.bulkStarts)

	// Bulk completes: pipeline advances to finalist.
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted500}
	f.coord.Poll()
	assert.Equal(t, 1, f.analysis.finalistStarts)

	// Finalist completes above target: cycle succeeds, trade starts now
	// (past the 09:30 buy time).
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted10}
	f.analysis.rec = &model.RecommendationRecord{
		Symbol: "AAPL", Score: 85.5, Category: model.CategoryStrongBuy,
		AnalysisTimestamp: "2024-07-09T14:20:00",
	}
	f.coord.Poll()

	snap := f.coord.Status()
	assert.Equal(t, model.CycleSucceeded, snap.Cycle.Phase)
	assert.Equal(t, []string{"AAPL"}, f.broker.autoStarts)
}

func TestThresholdPipeline_ExhaustsOnLowScores(t *testing.T) {
	f := newFixture(t, baseState())
	f.coord.HandleCommand("/startcycle")

	f.now = eastern(10, 0)
	f.analysis.rec = &model.RecommendationRecord{
		Symbol: "XYZ", Score: 40, Category: model.CategoryBuy,
		AnalysisTimestamp: "2024-07-09T09:50:00",
	}

	for i := 0; i < 2; i++ {
		f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseRunning500}
		f.coord.Tick()
		f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted500}
		f.coord.Poll()
		f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted10}
		f.coord.Poll()
		// Past the delay so the next cycle is due.
		f.now = f.now.Add(31 * time.Minute)
	}

	snap := f.coord.Status()
	assert.Equal(t, model.CycleExhausted, snap.Cycle.Phase)
	assert.Equal(t, 2, snap.Cycle.CurrentCycle)
	assert.Empty(t, f.broker.autoStarts)
}

func TestScheduledFinalist_AdmitsAndWaitsForBuyTime(t *testing.T) {
	st := baseState()
	st.Schedules[1].Enabled = true // finalist at 14:30
	st.Schedules[2].Enabled = true // auto-buy
	st.Schedules[2].TimeOfDay = "15:00"
	st.Trading.AutoBuyTime = "15:00"
	f := newFixture(t, st)

	f.now = eastern(14, 30)
	f.coord.Tick()
	assert.Equal(t, 1, f.analysis.finalistStarts)

	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted10}
	f.analysis.rec = &model.RecommendationRecord{
		Symbol: "MSFT", Score: 78, Category: model.CategoryBuy,
		AnalysisTimestamp: "2024-07-09T14:25:00",
	}
	f.now = eastern(14, 31)
	f.coord.Poll()

	// Admitted before buy time: parked, not sent.
	assert.Empty(t, f.broker.autoStarts)
	snap := f.coord.Status()
	assert.True(t, snap.Wait.IsWaiting)
	assert.Equal(t, "15:00", snap.Wait.WaitingUntil)

	// Buy time arrives on an open market: the parked symbol goes out.
	f.now = eastern(15, 0)
	f.coord.Tick()
	assert.Equal(t, []string{"MSFT"}, f.broker.autoStarts)
	assert.False(t, f.coord.Status().Wait.IsWaiting)
}

func TestScheduledFinalist_DuplicateNotResent(t *testing.T) {
	st := baseState()
	st.Schedules[1].Enabled = true
	f := newFixture(t, st)

	rec := &model.RecommendationRecord{
		Symbol: "NVDA", Score: 90, Category: model.CategoryStrongBuy,
		AnalysisTimestamp: "2024-07-09T14:25:00",
	}

	f.now = eastern(14, 30)
	f.coord.Tick()
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted10}
	f.analysis.rec = rec
	f.coord.Poll()
	require.Equal(t, []string{"NVDA"}, f.broker.autoStarts)

	// The same analysis run resurfaces the next day: identity key unchanged,
	// so the gate refuses a second send.
	f.now = f.now.AddDate(0, 0, 1)
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseRunning10}
	f.coord.Tick()
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted10}
	f.coord.Poll()
	assert.Equal(t, []string{"NVDA"}, f.broker.autoStarts)
}

func TestAutoBuyGuard_ClosedMarketDoesNotConsumeDay(t *testing.T) {
	st := baseState()
	st.Schedules[2].Enabled = true
	st.Schedules[2].TimeOfDay = "09:15" // before the open
	f := newFixture(t, st)

	f.coord.mu.Lock()
	f.coord.pendingBuySymbol = "AMZN"
	f.coord.mu.Unlock()

	f.now = eastern(9, 15)
	f.coord.Tick()
	assert.Empty(t, f.broker.autoStarts, "market closed, guard blocks the fire")

	// The latch was not consumed: moving the entry to an open minute still
	// fires today.
	f.coord.HandleCommand("/time auto-buy 10:00")
	f.now = eastern(10, 0)
	f.coord.Tick()
	assert.Equal(t, []string{"AMZN"}, f.broker.autoStarts)
}

func TestHandleCommand_ScheduleManagement(t *testing.T) {
	f := newFixture(t, baseState())

	reply := f.coord.HandleCommand("/enable bulk-analysis")
	assert.Contains(t, reply, "bulk-analysis enabled")

	reply = f.coord.HandleCommand("/time bulk-analysis 10:45")
	assert.Contains(t, reply, "10:45")

	reply = f.coord.HandleCommand("/time bulk-analysis 25:00")
	assert.Contains(t, reply, "failed")

	reply = f.coord.HandleCommand("/enable no-such-entry")
	assert.Contains(t, reply, "Unknown")

	reply = f.coord.HandleCommand("/bogus")
	assert.Contains(t, reply, "Available commands")
}

func TestHandleCommand_StopCycleDiscardsLateResult(t *testing.T) {
	f := newFixture(t, baseState())
	f.coord.HandleCommand("/startcycle")

	f.now = eastern(13, 0)
	f.coord.Tick()
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted500}
	f.coord.Poll()

	assert.Equal(t, "⏹ Threshold run stopped", f.coord.HandleCommand("/stopcycle"))

	// The finalist result lands after the stop: discarded, no trade.
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseCompleted10}
	f.analysis.rec = &model.RecommendationRecord{
		Symbol: "TSLA", Score: 95, Category: model.CategoryStrongBuy,
		AnalysisTimestamp: "2024-07-09T13:05:00",
	}
	f.coord.Poll()

	snap := f.coord.Status()
	assert.Equal(t, model.CycleStopped, snap.Cycle.Phase)
	assert.Empty(t, f.broker.autoStarts)
}

func TestHandleCommand_Order(t *testing.T) {
	f := newFixture(t, baseState())

	reply := f.coord.HandleCommand("/order spy 2 buy")
	assert.Contains(t, reply, "SPY")
	assert.Equal(t, []string{"SPY"}, f.broker.orders)

	assert.Contains(t, f.coord.HandleCommand("/order spy nope buy"), "Invalid quantity")
	assert.Contains(t, f.coord.HandleCommand("/order spy 2 hold"), "Invalid side")
}

// reentrantNotifier invokes the command handler from inside Send. If a tick
// still held the coordinator lock while sending, this would deadlock.
type reentrantNotifier struct {
	coord   *Coordinator
	replies []string
}

func (n *reentrantNotifier) Send(text string) error {
	n.replies = append(n.replies, n.coord.HandleCommand("/schedules"))
	return nil
}

func (n *reentrantNotifier) SendWithRetry(_ context.Context, text string, _ int) error {
	return n.Send(text)
}

func TestTick_SendsOutsideCriticalSection(t *testing.T) {
	st := baseState()
	st.Schedules[0].Enabled = true
	f := newFixture(t, st)
	rn := &reentrantNotifier{coord: f.coord}
	f.coord.notifier = rn

	f.now = eastern(9, 31)
	f.coord.Tick()

	require.Len(t, rn.replies, 1)
	assert.Contains(t, rn.replies[0], "bulk-analysis")
}

func TestPoll_ToleratesOneIdleObservation(t *testing.T) {
	f := newFixture(t, baseState())
	f.coord.HandleCommand("/startcycle")

	f.now = eastern(13, 0)
	f.coord.Tick()
	require.Equal(t, 1, f.analysis.bulkStarts)

	// The backend has not flipped out of idle yet: one read is not a failure.
	f.analysis.status = analysis.SystemStatus{Phase: analysis.PhaseIdle}
	f.coord.Poll()
	snap := f.coord.Status()
	assert.Equal(t, model.CycleRunning, snap.Cycle.Phase)
	assert.Equal(t, 0, snap.Cycle.CurrentCycle)

	// A second consecutive idle means the run really died: the cycle counts
	// as a failed one.
	f.coord.Poll()
	snap = f.coord.Status()
	assert.Equal(t, 1, snap.Cycle.CurrentCycle)
	assert.Equal(t, model.CycleRunning, snap.Cycle.Phase)
}

func TestStopTrade_ClearsPendingBuy(t *testing.T) {
	f := newFixture(t, baseState())

	f.coord.mu.Lock()
	f.coord.pendingBuySymbol = "AAPL"
	f.coord.autoTradingEnabled = true
	f.coord.mu.Unlock()

	reply := f.coord.HandleCommand("/stoptrade")
	assert.Equal(t, "⏹ Auto trading stopped", reply)
	assert.Equal(t, 1, f.broker.autoStops)

	snap := f.coord.Status()
	assert.False(t, snap.AutoTradingEnabled)
	assert.False(t, snap.Wait.IsWaiting)
}

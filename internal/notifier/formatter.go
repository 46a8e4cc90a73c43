package notifier

import (
	"fmt"
	"strings"
	"time"

	"sp500-autopilot/internal/broker"
	"sp500-autopilot/internal/gate"
	"sp500-autopilot/internal/model"
)

// FormatMarketStatus formats the market calendar verdict for display.
func FormatMarketStatus(st model.MarketStatus) string {
	var b strings.Builder
	b.WriteString("🏛 <b>Market Status</b>\n\n")
	if st.Open {
		b.WriteString("Market: OPEN ✅\n")
	} else {
		b.WriteString(fmt.Sprintf("Market: CLOSED ❌ (%s)\n", st.Reason))
	}
	b.WriteString(fmt.Sprintf("Eastern time: %s\n", st.LocalTime.Format("2006-01-02 15:04")))
	return b.String()
}

// FormatFireEvent announces a schedule trigger firing.
func FormatFireEvent(evt model.FireEvent) string {
	return fmt.Sprintf("⏰ <b>Trigger fired</b>\n\n%s at %s (%s)", evt.Trigger, evt.TimeOfDay, evt.Date)
}

// FormatDecision formats a gate verdict on a recommendation.
func FormatDecision(d gate.Decision) string {
	var b strings.Builder
	if d.Admitted {
		b.WriteString("✅ <b>Recommendation admitted</b>\n\n")
	} else {
		b.WriteString("🚫 <b>Recommendation rejected</b>\n\n")
	}
	b.WriteString(fmt.Sprintf("Symbol: %s\n", d.Symbol))
	b.WriteString(fmt.Sprintf("Score: %.1f\n", d.Score))
	b.WriteString(fmt.Sprintf("Category: %s\n", d.Category))
	if !d.Admitted {
		b.WriteString(fmt.Sprintf("Reason: %s\n", d.Reason))
		if d.Detail != "" {
			b.WriteString(fmt.Sprintf("Detail: %s\n", d.Detail))
		}
	}
	return b.String()
}

// FormatCycleReport formats the threshold cycle state after a cycle completes.
// The caller passes its tick time so the header matches the injected clock.
func FormatCycleReport(st model.CycleState, cfg model.CycleConfig, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔄 <b>Threshold Cycle</b> | %s\n\n", now.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Phase: %s\n", st.Phase))
	b.WriteString(fmt.Sprintf("Cycle: %d/%d\n", st.CurrentCycle, cfg.MaxCycles))
	b.WriteString(fmt.Sprintf("Last score: %.1f (target %.1f)\n", st.LastScore, cfg.TargetScore))
	switch st.Phase {
	case model.CycleSucceeded:
		b.WriteString("\nTarget reached, handing off to trading 🎯")
	case model.CycleExhausted:
		b.WriteString("\nAll cycles used without reaching target")
	case model.CycleRunning:
		if !st.NextCycleAt.IsZero() {
			b.WriteString(fmt.Sprintf("\nNext cycle at %s", st.NextCycleAt.Format("15:04")))
		}
	}
	return b.String()
}

// FormatSchedules lists all schedule entries and their state.
func FormatSchedules(entries []model.ScheduleEntry) string {
	var b strings.Builder
	b.WriteString("📋 <b>Schedules</b>\n\n")
	for _, e := range entries {
		mark := "❌"
		if e.Enabled {
			mark = "✅"
		}
		b.WriteString(fmt.Sprintf("%s %s at %s", mark, e.Name, e.TimeOfDay))
		if e.LastFiredDate != "" {
			b.WriteString(fmt.Sprintf(" (last fired %s)", e.LastFiredDate))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatPortfolio lists the broker account's current positions.
func FormatPortfolio(positions []broker.Position) string {
	if len(positions) == 0 {
		return "📦 <b>Portfolio</b>\n\nNo open positions"
	}
	var b strings.Builder
	b.WriteString("📦 <b>Portfolio</b>\n\n")
	for _, p := range positions {
		b.WriteString(fmt.Sprintf("%s: %.2f @ %.2f (P/L %+.2f)\n",
			p.Symbol, p.Qty, p.AvgEntry, p.UnrealizedPL))
	}
	return b.String()
}

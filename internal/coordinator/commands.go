package coordinator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"sp500-autopilot/internal/broker"
	"sp500-autopilot/internal/calendar"
	"sp500-autopilot/internal/model"
	"sp500-autopilot/internal/notifier"
	"sp500-autopilot/internal/recorder"
)

const helpText = `Available commands:
/status - full coordinator status
/market - market open/closed verdict
/cycle - threshold cycle state
/schedules - schedule entries
/enable <name> - enable a schedule entry
/disable <name> - disable a schedule entry
/time <name> <HH:MM> - change an entry's fire time
/startcycle - start a threshold run now
/stopcycle - cancel the threshold run
/stoptrade - stop auto trading at the broker
/order <symbol> <qty> <buy|sell> - place a manual market order
/portfolio - current broker positions`

// HandleCommand processes one Telegram command and returns the reply text.
func (c *Coordinator) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}

	switch fields[0] {
	case "/status":
		return c.formatStatus()

	case "/market":
		return notifier.FormatMarketStatus(calendar.Status(c.clock()))

	case "/cycle":
		now := c.clock()
		c.mu.Lock()
		defer c.mu.Unlock()
		return notifier.FormatCycleReport(c.controller.State(), c.settings.Threshold(), now)

	case "/schedules":
		c.mu.Lock()
		defer c.mu.Unlock()
		return notifier.FormatSchedules(c.registry.Entries())

	case "/enable", "/disable":
		if len(fields) != 2 {
			return fmt.Sprintf("Usage: %s <name>", fields[0])
		}
		return c.setScheduleEnabled(model.TriggerType(fields[1]), fields[0] == "/enable")

	case "/time":
		if len(fields) != 3 {
			return "Usage: /time <name> <HH:MM>"
		}
		return c.setScheduleTime(model.TriggerType(fields[1]), fields[2])

	case "/startcycle":
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, err := c.controller.Start(c.clock()); err != nil {
			return fmt.Sprintf("Cannot start: %v", err)
		}
		return "🔄 Threshold run started"

	case "/stopcycle":
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.controller.Stop(); err != nil {
			return fmt.Sprintf("Cannot stop: %v", err)
		}
		c.cycleStage = stageNone
		return "⏹ Threshold run stopped"

	case "/stoptrade":
		return c.stopTrading()

	case "/order":
		if len(fields) != 4 {
			return "Usage: /order <symbol> <qty> <buy|sell>"
		}
		return c.placeOrder(fields[1], fields[2], fields[3])

	case "/portfolio":
		positions, err := c.broker.Portfolio(c.ctx)
		if err != nil {
			return fmt.Sprintf("Portfolio fetch failed: %v", err)
		}
		return notifier.FormatPortfolio(positions)

	default:
		return helpText
	}
}

func (c *Coordinator) formatStatus() string {
	snap := c.Status()

	var b strings.Builder
	b.WriteString(notifier.FormatMarketStatus(snap.Market))
	b.WriteString("\n")
	if snap.BrokerConnected {
		b.WriteString("Broker: connected ✅\n")
	} else {
		b.WriteString("Broker: disconnected ❌\n")
	}
	b.WriteString(fmt.Sprintf("Auto trading: %v\n", snap.AutoTradingEnabled))
	if snap.Wait.IsWaiting {
		b.WriteString(fmt.Sprintf("Waiting for buy time %s\n", snap.Wait.WaitingUntil))
	}
	b.WriteString("\n")
	if snap.LastDecision != nil {
		b.WriteString(notifier.FormatDecision(*snap.LastDecision))
		b.WriteString("\n")
	}
	b.WriteString(notifier.FormatSchedules(snap.Schedules))
	b.WriteString("\n")
	b.WriteString(notifier.FormatCycleReport(snap.Cycle, c.settings.Threshold(), c.clock()))
	return b.String()
}

// setScheduleEnabled flips one entry in both the live registry and the
// persisted settings, keeping the entry's current time.
func (c *Coordinator) setScheduleEnabled(name model.TriggerType, enabled bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var timeOfDay string
	for _, e := range c.registry.Entries() {
		if e.Name == name {
			timeOfDay = e.TimeOfDay
			break
		}
	}
	if timeOfDay == "" {
		return fmt.Sprintf("Unknown schedule entry %q", name)
	}
	if err := c.registry.Update(name, enabled, timeOfDay); err != nil {
		return fmt.Sprintf("Update failed: %v", err)
	}
	if err := c.settings.UpdateSchedule(name, enabled, timeOfDay); err != nil {
		log.Error().Err(err).Msg("persist schedule update")
	}
	if enabled {
		return fmt.Sprintf("✅ %s enabled at %s", name, timeOfDay)
	}
	return fmt.Sprintf("❌ %s disabled", name)
}

func (c *Coordinator) setScheduleTime(name model.TriggerType, timeOfDay string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var enabled bool
	found := false
	for _, e := range c.registry.Entries() {
		if e.Name == name {
			enabled = e.Enabled
			found = true
			break
		}
	}
	if !found {
		return fmt.Sprintf("Unknown schedule entry %q", name)
	}
	if err := c.registry.Update(name, enabled, timeOfDay); err != nil {
		return fmt.Sprintf("Update failed: %v", err)
	}
	if err := c.settings.UpdateSchedule(name, enabled, timeOfDay); err != nil {
		log.Error().Err(err).Msg("persist schedule update")
	}
	return fmt.Sprintf("⏰ %s now fires at %s", name, timeOfDay)
}

func (c *Coordinator) stopTrading() string {
	if err := c.broker.StopAutoTrade(c.ctx); err != nil {
		return fmt.Sprintf("Stop failed: %v", err)
	}

	c.mu.Lock()
	c.autoTradingEnabled = false
	c.pendingBuySymbol = ""
	c.waitState = model.TradingWaitState{}
	c.mu.Unlock()
	return "⏹ Auto trading stopped"
}

func (c *Coordinator) placeOrder(symbol, qtyArg, side string) string {
	qty, err := strconv.ParseFloat(qtyArg, 64)
	if err != nil || qty <= 0 {
		return fmt.Sprintf("Invalid quantity %q", qtyArg)
	}
	if side != broker.SideBuy && side != broker.SideSell {
		return fmt.Sprintf("Invalid side %q, want buy or sell", side)
	}
	symbol = strings.ToUpper(symbol)

	if err := c.broker.PlaceOrder(c.ctx, symbol, qty, side); err != nil {
		return fmt.Sprintf("Order failed: %v", err)
	}

	c.mu.Lock()
	c.recordOrder(recorder.OrderRecord{Symbol: symbol, Qty: qty, Side: side, Kind: "manual"})
	c.mu.Unlock()
	return fmt.Sprintf("✅ %s order placed: %s x %.2f", side, symbol, qty)
}

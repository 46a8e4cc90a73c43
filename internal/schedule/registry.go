package schedule

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"sp500-autopilot/internal/model"
)

// Guard decides at fire time whether a due entry may actually fire. Guards run
// before the once-per-day latch is set, so a blocked fire does not consume the
// entry's day.
type Guard func(now time.Time) bool

// Registry owns the schedule entries and their last-fired latches. It is the
// only writer of LastFiredDate; callers evaluate and read.
type Registry struct {
	entries []model.ScheduleEntry
	guards  map[model.TriggerType]Guard
	loc     *time.Location
}

// NewRegistry seeds the registry from persisted entries. Times are interpreted
// in loc (the exchange's local zone).
func NewRegistry(entries []model.ScheduleEntry, loc *time.Location) *Registry {
	return &Registry{
		entries: append([]model.ScheduleEntry(nil), entries...),
		guards:  make(map[model.TriggerType]Guard),
		loc:     loc,
	}
}

// SetGuard attaches a fire-time predicate to an entry.
func (r *Registry) SetGuard(name model.TriggerType, g Guard) {
	r.guards[name] = g
}

// Evaluate fires every enabled entry whose HH:MM equals now's local minute and
// whose latch is not already set for today. The minute-wide window plus the
// daily latch keeps sub-minute evaluation from double-firing.
func (r *Registry) Evaluate(now time.Time) []model.FireEvent {
	local := now.In(r.loc)
	hhmm := local.Format("15:04")
	today := local.Format("2006-01-02")

	var events []model.FireEvent
	for i := range r.entries {
		e := &r.entries[i]
		if !e.Enabled || e.TimeOfDay != hhmm || e.LastFiredDate == today {
			continue
		}
		if g, ok := r.guards[e.Name]; ok && !g(now) {
			log.Debug().Str("trigger", string(e.Name)).Msg("fire blocked by guard")
			continue
		}
		e.LastFiredDate = today
		events = append(events, model.FireEvent{
			Trigger:   e.Name,
			TimeOfDay: e.TimeOfDay,
			Date:      today,
		})
	}
	return events
}

// Update applies a configuration change to one entry. The latch is left
// untouched so disabling and re-enabling within a day cannot double-fire.
func (r *Registry) Update(name model.TriggerType, enabled bool, timeOfDay string) error {
	// Evaluate matches against Format("15:04"), so a value that parses but is
	// not zero-padded would never fire. Require an exact round-trip.
	if parsed, err := time.Parse("15:04", timeOfDay); err != nil || parsed.Format("15:04") != timeOfDay {
		return fmt.Errorf("invalid time of day %q, want zero-padded HH:MM", timeOfDay)
	}
	for i := range r.entries {
		if r.entries[i].Name == name {
			r.entries[i].Enabled = enabled
			r.entries[i].TimeOfDay = timeOfDay
			return nil
		}
	}
	return fmt.Errorf("unknown schedule entry %q", name)
}

// Entries returns a copy of the current entries for status display and
// persistence.
func (r *Registry) Entries() []model.ScheduleEntry {
	return append([]model.ScheduleEntry(nil), r.entries...)
}

package model

// TriggerType identifies an autonomous action.
type TriggerType string

const (
	TriggerBulkAnalysis     TriggerType = "bulk-analysis"
	TriggerFinalistAnalysis TriggerType = "finalist-analysis"
	TriggerAutoBuy          TriggerType = "auto-buy"
	TriggerAutoThreshold    TriggerType = "auto-threshold"
)

// ScheduleEntry is one configurable autonomous trigger. LastFiredDate latches the
// once-per-day guarantee and is keyed by entry identity plus date, not by
// enabled/disabled transitions.
type ScheduleEntry struct {
	Name          TriggerType `json:"name" yaml:"name"`
	Enabled       bool        `json:"enabled" yaml:"enabled"`
	TimeOfDay     string      `json:"time_of_day" yaml:"time_of_day"` // HH:MM, exchange-local
	LastFiredDate string      `json:"last_fired_date,omitempty" yaml:"-"`
}

// FireEvent is emitted when an enabled entry's time matches the current minute.
type FireEvent struct {
	Trigger   TriggerType
	TimeOfDay string
	Date      string // YYYY-MM-DD
}

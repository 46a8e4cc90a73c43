package recorder

// FireRecord captures one schedule trigger firing.
type FireRecord struct {
	Trigger   string
	TimeOfDay string
	Date      string
}

// DecisionRecord captures one gate decision on a recommendation.
type DecisionRecord struct {
	Symbol   string
	Score    float64
	Category string
	Admitted bool
	Reason   string
}

// CycleRecord captures the outcome of one threshold analysis cycle.
type CycleRecord struct {
	Cycle     int
	MaxCycles int
	Score     float64
	Target    float64
	Phase     string
}

// OrderRecord captures one order command sent to the broker.
type OrderRecord struct {
	Symbol string
	Qty    float64
	Side   string
	Kind   string // "auto" or "manual"
}

// Recorder persists coordinator events for later inspection.
type Recorder interface {
	RecordFire(evt *FireRecord) error
	RecordDecision(evt *DecisionRecord) error
	RecordCycle(evt *CycleRecord) error
	RecordOrder(evt *OrderRecord) error
	Close() error
}

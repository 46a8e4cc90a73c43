package gate

import (
	"fmt"

	"sp500-autopilot/internal/model"
)

// Rejection reasons, in rule order.
const (
	ReasonDuplicate    = "duplicate recommendation"
	ReasonBelowTarget  = "below threshold"
	ReasonCategory     = "category not tradable"
	ReasonDisconnected = "broker disconnected"
)

// Decision is the gate's verdict on one recommendation. The first failing rule
// is the reason; Detail carries the specifics for logging.
type Decision struct {
	Admitted bool
	Reason   string
	Detail   string
	Symbol   string
	Score    float64
	Category string
}

var tradableCategories = map[string]bool{
	model.CategoryBuy:       true,
	model.CategoryStrongBuy: true,
	model.CategoryWeakBuy:   true,
}

// Gate decides eligibility for automatic trade submission. It remembers only
// the single most recently admitted identity key: a minimal at-most-once latch,
// not a deduplication log.
type Gate struct {
	targetScore  float64
	lastAdmitted string
}

// NewGate creates a gate with the configured score threshold.
func NewGate(targetScore float64) *Gate {
	if targetScore <= 0 {
		targetScore = 70
	}
	return &Gate{targetScore: targetScore}
}

// SetTargetScore applies a threshold configuration change.
func (g *Gate) SetTargetScore(score float64) {
	if score > 0 {
		g.targetScore = score
	}
}

// Admit evaluates the rules in order and, on admission, records the identity
// key so the same recommendation is never admitted twice, even if resubmitted
// with a higher score under the same key. Rejection changes no state.
func (g *Gate) Admit(rec model.RecommendationRecord, brokerConnected bool) Decision {
	d := Decision{Symbol: rec.Symbol, Score: rec.Score, Category: rec.Category}

	key := rec.IdentityKey()
	if key == g.lastAdmitted {
		d.Reason = ReasonDuplicate
		d.Detail = key
		return d
	}
	if rec.Score < g.targetScore {
		d.Reason = ReasonBelowTarget
		d.Detail = fmt.Sprintf("%.1f < %.1f", rec.Score, g.targetScore)
		return d
	}
	if !tradableCategories[rec.Category] {
		d.Reason = ReasonCategory
		d.Detail = rec.Category
		return d
	}
	if !brokerConnected {
		d.Reason = ReasonDisconnected
		return d
	}

	g.lastAdmitted = key
	d.Admitted = true
	return d
}

package model

import "fmt"

// Recommendation categories the backend may return.
const (
	CategoryBuy       = "BUY"
	CategoryStrongBuy = "STRONG_BUY"
	CategoryWeakBuy   = "WEAK_BUY"
	CategorySell      = "SELL"
	CategoryHold      = "HOLD"
)

// RecommendationRecord is the analysis backend's final pick. Transient: consumed
// once by the gate, never stored.
type RecommendationRecord struct {
	Symbol            string  `json:"symbol"`
	Score             float64 `json:"score"`
	Category          string  `json:"recommendation"`
	AnalysisTimestamp string  `json:"analysis_timestamp"`
}

// IdentityKey derives the at-most-once processing key from symbol and analysis
// timestamp, matching how the backend identifies a distinct analysis run.
func (r RecommendationRecord) IdentityKey() string {
	return fmt.Sprintf("%s_%s", r.Symbol, r.AnalysisTimestamp)
}

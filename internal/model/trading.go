package model

// TradingConfig is the broker-facing configuration. The coordinator owns it; the
// broker adapter receives a read-only snapshot.
type TradingConfig struct {
	AutoBuyTime       string  `json:"auto_buy_time" yaml:"auto_buy_time"`   // HH:MM, exchange-local
	AutoSellTime      string  `json:"auto_sell_time" yaml:"auto_sell_time"` // HH:MM, exchange-local
	InvestmentPercent float64 `json:"investment_percent" yaml:"investment_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent" yaml:"take_profit_percent"`
	StopLossPercent   float64 `json:"stop_loss_percent" yaml:"stop_loss_percent"`
	InitialAmount     float64 `json:"initial_amount" yaml:"initial_amount"`
	Currency          string  `json:"currency" yaml:"currency"`
}

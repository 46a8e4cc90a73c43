package model

import "time"

// MarketStatus is the computed state of the US equity market at a point in time.
type MarketStatus struct {
	Open      bool
	Reason    string // "open", "weekend", "holiday", "after-hours"
	LocalTime time.Time
}

// TradingWaitState is derived each tick: auto trading has been requested but the
// configured buy time has not been reached yet.
type TradingWaitState struct {
	IsWaiting    bool
	WaitingUntil string // HH:MM, exchange-local
}

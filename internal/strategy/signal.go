package strategy

import (
	"time"

	"woox-trader/pkg/exchange"
)

// Signal is a qualified directional trading signal emitted at timeframe close.
// KlineLow/KlineHigh carry the closing timeframe kline's extremes, which the
// reconciliation engine uses for trigger price placement.
type Signal struct {
	ID               string
	TimeframeGroupID string
	Symbol           string
	Side             exchange.Side
	KlineLow         float64
	KlineHigh        float64
	RSI              float64
	CreatedAt        time.Time
}

package reconciliation

import (
	"woox-trader/internal/order"
	"woox-trader/pkg/exchange"
)

// entryTriggerPrice places the entry trigger outside the signal kline's
// range: below the low for a BUY, above the high for a SELL.
func entryTriggerPrice(side exchange.Side, low, high, offset float64) float64 {
	if side == exchange.SideBuy {
		return low - offset
	}
	return high + offset
}

// stopTriggerPrice prices the protective stop off the actual fill price when
// the exchange reported one, falling back to the entry trigger price. The
// offset moves against the position: below for a long, above for a short.
func stopTriggerPrice(o *order.Order, offset float64) float64 {
	basis := o.Entry.TriggerTradePrice
	if basis == 0 {
		basis = o.Entry.TriggerPrice
	}
	if o.Side() == exchange.SideBuy {
		return basis - offset
	}
	return basis + offset
}

package order

import (
	"time"

	"woox-trader/pkg/exchange"
)

// AlgoOrder is the local mirror of one exchange algo order. One row exists per
// exchange order id; both entry orders and protective stops are AlgoOrders.
type AlgoOrder struct {
	OrderID               int64
	Symbol                string
	Type                  exchange.OrderType
	AlgoType              exchange.AlgoType
	Side                  exchange.Side
	Quantity              float64
	ReduceOnly            bool
	IsTriggered           bool
	TriggerPrice          float64
	TriggerTradePrice     float64
	TriggerStatus         string
	TriggerTime           float64
	Status                exchange.Status
	OrderTag              string
	TradeID               int64
	CreateTime            float64
	UpdatedTime           float64
	TotalExecutedQuantity float64
	AverageExecutedPrice  float64
	RealizedPnl           float64
	CreatedAt             time.Time
}

// NewAlgoOrderFromRef builds the local mirror of a freshly created exchange order.
func NewAlgoOrderFromRef(ref exchange.OrderRef, reduceOnly bool) *AlgoOrder {
	a := &AlgoOrder{
		OrderID:      ref.OrderID,
		Symbol:       ref.Symbol,
		Type:         ref.Type,
		AlgoType:     ref.AlgoType,
		Side:         ref.Side,
		Quantity:     ref.Quantity,
		ReduceOnly:   reduceOnly,
		TriggerPrice: ref.TriggerPrice,
		Status:       ref.Status,
		OrderTag:     ref.Tag,
		CreateTime:   ref.CreatedTime,
		UpdatedTime:  ref.UpdatedTime,
		CreatedAt:    time.Now(),
	}
	if a.Type == "" {
		a.Type = exchange.OrderTypeMarket
	}
	if a.AlgoType == "" {
		a.AlgoType = exchange.AlgoTypeStop
	}
	if a.Status == "" {
		a.Status = exchange.StatusNew
	}
	return a
}

// ApplyEvent copies the mutable fields of a status event onto the mirror.
// The event's status is expected to be normalized by the caller; field
// updates are applied even when the status itself is unchanged so amendments
// pushed by the exchange are not lost.
func (a *AlgoOrder) ApplyEvent(ev exchange.OrderStatusEvent) {
	a.Status = ev.Status
	a.IsTriggered = ev.IsTriggered
	if ev.Side != "" {
		a.Side = ev.Side
	}
	if ev.Symbol != "" {
		a.Symbol = ev.Symbol
	}
	a.ReduceOnly = ev.ReduceOnly
	if ev.Quantity != 0 {
		a.Quantity = ev.Quantity
	}
	if ev.TriggerPrice != 0 {
		a.TriggerPrice = ev.TriggerPrice
	}
	if ev.TriggerTradePrice != 0 {
		a.TriggerTradePrice = ev.TriggerTradePrice
	}
	if ev.TriggerStatus != "" {
		a.TriggerStatus = ev.TriggerStatus
	}
	if ev.TriggerTime != 0 {
		a.TriggerTime = ev.TriggerTime
	}
	if ev.TradeID != 0 {
		a.TradeID = ev.TradeID
	}
	if ev.TotalExecutedQuantity != 0 {
		a.TotalExecutedQuantity = ev.TotalExecutedQuantity
	}
	if ev.AverageExecutedPrice != 0 {
		a.AverageExecutedPrice = ev.AverageExecutedPrice
	}
	if ev.RealizedPnl != 0 {
		a.RealizedPnl = ev.RealizedPnl
	}
	if ev.UpdatedTime != 0 {
		a.UpdatedTime = ev.UpdatedTime
	}
}

// IsPendingStop reports whether this mirror is an unfilled protective order.
func (a *AlgoOrder) IsPendingStop() bool {
	return a.ReduceOnly && a.Status == exchange.StatusNew
}

package exchange

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Status normalizes WOO X algo order status values.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusPartialFilled Status = "PARTIAL_FILLED"
	StatusFilled        Status = "FILLED"
	StatusCancelled     Status = "CANCELLED"
	StatusRejected      Status = "REJECTED"
	StatusReplaced      Status = "REPLACED"
)

// OrderType denotes the child order type of an algo order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// AlgoType denotes the algo order family.
type AlgoType string

const (
	AlgoTypeStop AlgoType = "STOP"
	AlgoTypeOCO  AlgoType = "OCO"
)

// OrderRequest captures an algo order intent to be sent to the exchange.
type OrderRequest struct {
	Symbol       string
	Side         Side
	Quantity     float64
	TriggerPrice float64
	Tag          string
}

// AmendRequest carries the mutable fields of a pending algo order.
// Nil fields are left untouched on the exchange side.
type AmendRequest struct {
	Quantity     *float64
	TriggerPrice *float64
}

// OrderRef is the exchange's representation of a created or amended algo order.
type OrderRef struct {
	OrderID      int64
	Symbol       string
	Side         Side
	Type         OrderType
	AlgoType     AlgoType
	Quantity     float64
	ReduceOnly   bool
	TriggerPrice float64
	Status       Status
	Tag          string
	CreatedTime  float64
	UpdatedTime  float64
}

// OrderStatusEvent is an asynchronous order update from the private stream.
// Delivery is at-least-once and possibly out of order; consumers must tolerate
// duplicates.
type OrderStatusEvent struct {
	OrderID               int64
	Symbol                string
	Side                  Side
	ReduceOnly            bool
	Status                Status
	IsTriggered           bool
	TriggerPrice          float64
	TriggerTradePrice     float64
	TriggerStatus         string
	TriggerTime           float64
	Quantity              float64
	TradeID               int64
	TotalExecutedQuantity float64
	AverageExecutedPrice  float64
	RealizedPnl           float64
	CreatedTime           float64
	UpdatedTime           float64
}

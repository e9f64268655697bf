package strategy

// Params holds the per-timeframe-group strategy variables that govern order
// placement and group limits.
type Params struct {
	OrderQuantity           float64 `yaml:"order_quantity" json:"order_quantity"`
	TriggerPriceOffset      float64 `yaml:"trigger_price_offset" json:"trigger_price_offset"`
	StopLossOffset          float64 `yaml:"stop_loss_offset" json:"stop_loss_offset"`
	MaxConsecutiveStops     int     `yaml:"max_consecutive_stops" json:"max_consecutive_stops"`
	MaxActiveOrders         int     `yaml:"max_active_orders" json:"max_active_orders"`
	MinMinutesSinceLastFill float64 `yaml:"min_minutes_since_last_fill" json:"min_minutes_since_last_fill"`
}

// Quantity returns the order size for a new entry.
func (p Params) Quantity() float64 {
	return p.OrderQuantity
}

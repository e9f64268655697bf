package order

import (
	"math"
	"time"

	"woox-trader/internal/strategy"
	"woox-trader/pkg/exchange"
)

// OrderGroup collects same-side orders opened within one timeframe grouping
// and optionally carries one shared protective stop covering the whole
// position. Strategy parameters are snapshotted at creation so later config
// edits do not reinterpret an open group.
type OrderGroup struct {
	ID               string
	TimeframeGroupID string
	Side             exchange.Side
	Orders           []*Order
	Stop             *AlgoOrder
	Params           strategy.Params
	CreatedAt        time.Time
}

func (g *OrderGroup) hasNoOrders() bool { return len(g.Orders) == 0 }

func (g *OrderGroup) IsEmpty() bool { return g.hasNoOrders() }

func (g *OrderGroup) HasStop() bool { return g.Stop != nil }

// Quantity sums the filled, not-yet-stopped-out member quantities, rounded
// to six decimals to keep float sums stable for the stop quantity check.
func (g *OrderGroup) Quantity() float64 {
	if g.hasNoOrders() {
		return 0
	}
	var sum float64
	for _, o := range g.Orders {
		if o.Entry.Status == exchange.StatusFilled {
			sum += o.Quantity()
		}
	}
	return math.Round(sum*1e6) / 1e6
}

func (g *OrderGroup) isPendingRaw() bool {
	if g.hasNoOrders() {
		return false
	}
	for _, o := range g.Orders {
		s := o.Status()
		if s != exchange.StatusNew && s != exchange.StatusCancelled {
			return false
		}
	}
	return true
}

func (g *OrderGroup) IsPending() bool { return !g.IsClosed() && g.isPendingRaw() }

func (g *OrderGroup) isActiveRaw() bool {
	for _, o := range g.Orders {
		if o.Status() == exchange.StatusFilled {
			return true
		}
	}
	return false
}

func (g *OrderGroup) IsActive() bool { return !g.IsClosed() && g.isActiveRaw() }

// hasFilledEntry checks raw entry statuses, ignoring closure masking. The
// active-group lookup filters on it: the newest group with a fill shadows
// older open groups even after that group closes.
func (g *OrderGroup) hasFilledEntry() bool {
	for _, o := range g.Orders {
		if o.Entry.Status == exchange.StatusFilled {
			return true
		}
	}
	return false
}

func (g *OrderGroup) isCancelledRaw() bool {
	if g.hasNoOrders() {
		return false
	}
	for _, o := range g.Orders {
		s := o.Status()
		if s != exchange.StatusCancelled && s != exchange.StatusRejected {
			return false
		}
	}
	return true
}

// IsStoppedOut reports whether the shared stop has reached a terminal state.
// A cancelled or rejected group stop also closes the group; it is never
// re-armed.
func (g *OrderGroup) IsStoppedOut() bool {
	if g.Stop == nil {
		return false
	}
	switch g.Stop.Status {
	case exchange.StatusFilled, exchange.StatusCancelled, exchange.StatusRejected:
		return true
	}
	return false
}

func (g *OrderGroup) allOrdersClosed() bool {
	if g.hasNoOrders() {
		return false
	}
	for _, o := range g.Orders {
		if o.Status() != StatusClosed {
			return false
		}
	}
	return true
}

// IsClosed is terminal. A closed group is never mutated again; a new group
// is created in its place.
func (g *OrderGroup) IsClosed() bool {
	if g.isCancelledRaw() {
		return true
	}
	if g.HasReachedMaxConsecutiveStops() {
		return true
	}
	if g.IsStoppedOut() {
		return true
	}
	return g.allOrdersClosed()
}

func (g *OrderGroup) HasReachedMaxConsecutiveStops() bool {
	if g.hasNoOrders() {
		return false
	}
	count := 0
	for _, o := range g.Orders {
		if o.IsStoppedOut() {
			count++
		}
	}
	return count >= g.Params.MaxConsecutiveStops
}

func (g *OrderGroup) HasReachedMaxOrderLimit() bool {
	if g.hasNoOrders() {
		return false
	}
	count := 0
	for _, o := range g.Orders {
		if o.Status() == exchange.StatusFilled {
			count++
		}
	}
	return count >= g.Params.MaxActiveOrders
}

// HasExceededMinutesSinceLastFill reports whether the cooldown since the most
// recent fill has elapsed. With no filled member there is nothing to cool
// down from, so it reports true.
func (g *OrderGroup) HasExceededMinutesSinceLastFill(now time.Time) bool {
	if g.hasNoOrders() {
		return true
	}
	var last float64
	for _, o := range g.Orders {
		if o.Entry.Status == exchange.StatusFilled && o.Entry.TriggerTime > last {
			last = o.Entry.TriggerTime
		}
	}
	if last == 0 {
		return true
	}
	minutes := (float64(now.Unix()) - last) / 60
	return minutes > g.Params.MinMinutesSinceLastFill
}

// CurrentPendingOrder returns the newest member whose entry is still NEW.
func (g *OrderGroup) CurrentPendingOrder() *Order {
	var found *Order
	for _, o := range g.Orders {
		if o.Entry.Status != exchange.StatusNew {
			continue
		}
		if found == nil || o.CreatedAt.After(found.CreatedAt) {
			found = o
		}
	}
	return found
}

// AddOrder makes the order an exclusive member. A rejected add leaves both
// the group and the order untouched.
func (g *OrderGroup) AddOrder(o *Order) error {
	if o.Group != nil || o.GroupID != "" {
		return ErrOrderAlreadyInGroup
	}
	if o.IsClosed() {
		return ErrClosedOrderIntoGroup
	}
	if g.IsClosed() {
		return ErrGroupClosed
	}
	if o.Side() != g.Side {
		return ErrGroupSideMismatch
	}
	if o.IsPending() && g.CurrentPendingOrder() != nil {
		return ErrPendingOrderAlreadyExists
	}
	o.Group = g
	o.GroupID = g.ID
	g.Orders = append(g.Orders, o)
	return nil
}

// SetStop assigns or clears the shared protective stop. Nil clears without
// validation, used when the group quantity has returned to zero.
func (g *OrderGroup) SetStop(stop *AlgoOrder) error {
	if stop == nil {
		g.Stop = nil
		return nil
	}
	if stop.Side == g.Side {
		return ErrGroupStopSideSameAsGroup
	}
	if !stop.ReduceOnly {
		return ErrGroupStopNotReduceOnly
	}
	if q := g.Quantity(); q != 0 && q != stop.Quantity {
		return ErrGroupStopQuantity
	}
	if g.isPendingRaw() {
		return ErrPendingGroupHasStop
	}
	g.Stop = stop
	return nil
}

package order

import (
	"time"

	"woox-trader/internal/strategy"
	"woox-trader/pkg/exchange"
)

// StatusClosed is a derived status, never reported by the exchange. An order
// reads as closed once it is force-closed, its own stop filled, or the group
// it belongs to was stopped out.
const StatusClosed exchange.Status = "CLOSED"

// Order ties one entry algo order to the signal that produced it and, once
// the entry fills, to its protective stop. Orders are never deleted; closed
// ones stay behind for audit.
type Order struct {
	ID                string
	Entry             *AlgoOrder
	Stop              *AlgoOrder
	Signal            strategy.Signal
	PreviousSignalIDs []string
	GroupID           string
	Group             *OrderGroup
	ForceClose        bool
	Note              string
	CreatedAt         time.Time
}

func (o *Order) OrderID() int64 { return o.Entry.OrderID }

func (o *Order) Side() exchange.Side { return o.Entry.Side }

func (o *Order) TriggerPrice() float64 { return o.Entry.TriggerPrice }

func (o *Order) TriggerTime() float64 { return o.Entry.TriggerTime }

// Status derives from the entry order status, masked by closure.
func (o *Order) Status() exchange.Status {
	if o.IsClosed() {
		return StatusClosed
	}
	return o.Entry.Status
}

func (o *Order) IsPending() bool { return o.Status() == exchange.StatusNew }

func (o *Order) IsActive() bool { return o.Status() == exchange.StatusFilled }

func (o *Order) IsCancelled() bool { return o.Status() == exchange.StatusCancelled }

// IsStoppedOut reports whether this order's own protective stop has filled.
func (o *Order) IsStoppedOut() bool {
	return o.Stop != nil && o.Stop.Status == exchange.StatusFilled
}

func (o *Order) IsClosed() bool {
	if o.ForceClose {
		return true
	}
	if o.IsStoppedOut() {
		return true
	}
	if o.Group == nil {
		return false
	}
	return o.Group.IsStoppedOut()
}

// Quantity degrades to zero once the position is gone.
func (o *Order) Quantity() float64 {
	if o.IsCancelled() || o.IsStoppedOut() {
		return 0
	}
	return o.Entry.Quantity
}

// Validate checks every order invariant. Callers mutate a copy, validate it,
// and commit only on success, so a failed Validate leaves no partial write.
func (o *Order) Validate() error {
	if o.Entry.Side != o.Signal.Side {
		return ErrSignalSideMismatch
	}
	if o.Status() == exchange.StatusNew && o.Stop != nil {
		return ErrPendingOrderHasStop
	}
	if o.Status() == exchange.StatusFilled && o.Stop == nil {
		return ErrFilledOrderMissingStop
	}
	if o.Entry.ReduceOnly {
		return ErrEntryReduceOnly
	}
	if o.Stop != nil {
		if !o.Stop.ReduceOnly {
			return ErrStopNotReduceOnly
		}
		if o.Stop.Side == o.Side() {
			return ErrStopSideEqualsOrderSide
		}
		if o.Stop.OrderID == o.Entry.OrderID {
			return ErrStopEqualsEntry
		}
	}
	return nil
}

// Retarget moves the order onto a newer signal, keeping the old one in the
// history. The entry order itself is amended separately through the gateway.
func (o *Order) Retarget(sig strategy.Signal) error {
	next := *o
	next.PreviousSignalIDs = append(append([]string(nil), o.PreviousSignalIDs...), o.Signal.ID)
	next.Signal = sig
	if err := next.Validate(); err != nil {
		return err
	}
	*o = next
	return nil
}

// AttachStop sets the protective stop reference.
func (o *Order) AttachStop(stop *AlgoOrder) error {
	next := *o
	next.Stop = stop
	if err := next.Validate(); err != nil {
		return err
	}
	o.Stop = stop
	return nil
}

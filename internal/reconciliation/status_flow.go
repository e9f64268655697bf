package reconciliation

import (
	"context"
	"fmt"
	"log"

	"woox-trader/internal/events"
	"woox-trader/internal/order"
	"woox-trader/pkg/exchange"
)

// HandleOrderUpdate runs the status-side reconciliation pass for one
// asynchronous exchange notification. Events are at-least-once and may
// arrive out of order; unknown ids and unchanged statuses are routine and
// return without side effects.
func (e *Engine) HandleOrderUpdate(ctx context.Context, ev exchange.OrderStatusEvent) error {
	if ev.OrderID == 0 {
		return nil
	}

	// The key can shift between resolution and acquisition while the
	// submitting signal pass is still linking the order, so re-resolve
	// under the lock until it is stable.
	key := e.lockKeyForEvent(ctx, ev)
	unlock := e.locks.Lock(key)
	for {
		next := e.lockKeyForEvent(ctx, ev)
		if next == key {
			break
		}
		unlock()
		key = next
		unlock = e.locks.Lock(key)
	}

	remote, err := e.dispatchStatusEvent(ctx, key, ev)
	unlock()

	e.cancelAcrossGroupings(ctx, remote)
	return err
}

func (e *Engine) dispatchStatusEvent(ctx context.Context, grouping string, ev exchange.OrderStatusEvent) ([]remoteCancel, error) {
	status, err := e.applyStatusEvent(ctx, ev)
	if err != nil || status == "" {
		return nil, err
	}

	switch status {
	case exchange.StatusFilled:
		if ev.ReduceOnly {
			return e.handleFilledStop(ctx, grouping, ev.OrderID)
		}
		return e.handleFilledEntry(ctx, grouping, ev.OrderID)
	case exchange.StatusCancelled, exchange.StatusRejected:
		// no cascade; whether a cancelled entry frees its group slot is
		// an open product decision
	}
	return nil, nil
}

// lockKeyForEvent resolves the timeframe grouping the event's order lives
// in, so signal and status passes contend on the same key. Orders submitted
// by this process are routed from the moment the exchange assigned the id;
// recovered orders resolve through their stored group. Only ids this engine
// never touched fall back to a per-side key.
func (e *Engine) lockKeyForEvent(ctx context.Context, ev exchange.OrderStatusEvent) string {
	if key, ok := e.routeFor(ev.OrderID); ok {
		return key
	}
	if g, _ := e.Store.GroupByOrderID(ctx, ev.OrderID); g != nil {
		return g.TimeframeGroupID
	}
	if g, _ := e.Store.GroupByStopOrderID(ctx, ev.OrderID); g != nil {
		return g.TimeframeGroupID
	}
	return "side:" + string(ev.Side)
}

// remoteCancel is a cancel aimed at an order living in another timeframe
// grouping. The cascade that produced it holds only its own grouping's lock,
// so the cancel runs after that lock is released, under the victim's lock,
// with a staleness re-check.
type remoteCancel struct {
	grouping string
	orderID  int64
	label    string
}

func (e *Engine) cancelAcrossGroupings(ctx context.Context, cancels []remoteCancel) {
	for _, rc := range cancels {
		unlock := e.locks.Lock(rc.grouping)
		a, err := e.Store.AlgoOrderByID(ctx, rc.orderID)
		if err == nil && a != nil && a.Status == exchange.StatusNew {
			if err := e.cancelAlgoOrder(ctx, a); err != nil {
				abortOnGatewayError(rc.label+" "+fmt.Sprint(rc.orderID), err)
			}
		}
		unlock()
	}
}

// orderGrouping reports which timeframe grouping an order belongs to, or ""
// for an order with no group link. The sqlite store hydrates GroupID without
// the live pointer, so the id path resolves through the store.
func (e *Engine) orderGrouping(ctx context.Context, o *order.Order) string {
	if o.Group != nil {
		return o.Group.TimeframeGroupID
	}
	if o.GroupID != "" {
		if g, _ := e.Store.GroupByID(ctx, o.GroupID); g != nil {
			return g.TimeframeGroupID
		}
	}
	if key, ok := e.routeFor(o.OrderID()); ok {
		return key
	}
	return ""
}

// normalizeStatus papers over gaps in the exchange's websocket reporting:
// a triggered order can sit at NEW without a later FILLED push, partial
// fills are not modeled as a separate state, and a replace resets to NEW.
func normalizeStatus(ev exchange.OrderStatusEvent) exchange.Status {
	switch {
	case ev.IsTriggered && ev.Status == exchange.StatusNew:
		return exchange.StatusFilled
	case ev.Status == exchange.StatusPartialFilled:
		return exchange.StatusFilled
	case ev.Status == exchange.StatusReplaced:
		return exchange.StatusNew
	}
	return ev.Status
}

// applyStatusEvent persists the event onto the tracked mirror and returns
// the new status when it is an actual transition, or "" when the event is
// untracked or cosmetic. Field updates are written even for cosmetic events
// so exchange-side amendments are not lost.
func (e *Engine) applyStatusEvent(ctx context.Context, ev exchange.OrderStatusEvent) (exchange.Status, error) {
	algo, err := e.Store.AlgoOrderByID(ctx, ev.OrderID)
	if err != nil {
		return "", err
	}
	if algo == nil {
		return "", nil
	}

	prev := algo.Status
	ev.Status = normalizeStatus(ev)
	algo.ApplyEvent(ev)
	if err := e.Store.UpdateAlgoOrder(ctx, algo); err != nil {
		return "", err
	}
	e.publish(events.EventOrderStatus, algo)

	if prev == ev.Status {
		return "", nil
	}
	return ev.Status, nil
}

// handleFilledStop dispatches a filled reduce-only order to either the
// individual-stop or the group-stop procedure.
func (e *Engine) handleFilledStop(ctx context.Context, grouping string, orderID int64) ([]remoteCancel, error) {
	o, err := e.Store.OrderByAlgoOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o != nil {
		return nil, e.individualStopFilled(ctx, o)
	}

	g, err := e.Store.GroupByStopOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, nil
	}
	return e.groupStopFilled(ctx, grouping, g)
}

// individualStopFilled re-sizes or retires the group's shared stop after one
// member's own stop consumed part of the position.
func (e *Engine) individualStopFilled(ctx context.Context, o *order.Order) error {
	g := o.Group
	if g == nil {
		return nil
	}
	if g.HasReachedMaxConsecutiveStops() {
		// group is done; reversal handling is an open product decision
		log.Printf("🛑 group %s hit its consecutive stop limit", g.ID)
		return nil
	}
	if g.HasStop() && (g.IsActive() || g.IsClosed()) {
		return e.updateOrCancelGroupStop(ctx, g)
	}
	return nil
}

// updateOrCancelGroupStop matches the shared stop to the group's remaining
// quantity: amend while something is left, clear and cancel once it hits
// zero.
func (e *Engine) updateOrCancelGroupStop(ctx context.Context, g *order.OrderGroup) error {
	stop := g.Stop
	if qty := g.Quantity(); qty != 0 {
		if err := e.amendQuantity(ctx, stop, qty); err != nil {
			abortOnGatewayError("amend group stop "+fmt.Sprint(stop.OrderID), err)
			return nil
		}
		e.publish(events.EventGroupStopUpdated, g)
		return nil
	}

	if err := g.SetStop(nil); err != nil {
		return err
	}
	if err := e.Store.UpdateGroup(ctx, g); err != nil {
		return err
	}
	if err := e.cancelAlgoOrder(ctx, stop); err != nil {
		abortOnGatewayError("cancel group stop "+fmt.Sprint(stop.OrderID), err)
		return nil
	}
	e.publish(events.EventGroupStopUpdated, g)
	return nil
}

// groupStopFilled cancels every still-pending protective stop on the same
// side across all groups; the position they were protecting is gone. Stops
// in other groupings come back as remoteCancels for the caller to run under
// their own locks.
func (e *Engine) groupStopFilled(ctx context.Context, grouping string, g *order.OrderGroup) ([]remoteCancel, error) {
	side := g.Stop.Side
	orders, err := e.Store.PendingStopOrdersForSide(ctx, side)
	if err != nil {
		return nil, err
	}

	var remote []remoteCancel
	for _, o := range orders {
		if og := e.orderGrouping(ctx, o); og != "" && og != grouping {
			remote = append(remote, remoteCancel{grouping: og, orderID: o.Stop.OrderID, label: "cancel orphaned stop"})
			continue
		}
		if err := e.cancelAlgoOrder(ctx, o.Stop); err != nil {
			abortOnGatewayError("cancel orphaned stop "+fmt.Sprint(o.Stop.OrderID), err)
		}
	}
	e.publish(events.EventGroupClosed, g)
	return remote, nil
}

// handleFilledEntry reacts to a position-opening fill: pending entries on
// the opposite side are stale, the group's own pending shared stop is
// superseded, and the fresh position needs its protective stop. Opposite
// entries in other groupings come back as remoteCancels.
func (e *Engine) handleFilledEntry(ctx context.Context, grouping string, orderID int64) ([]remoteCancel, error) {
	o, err := e.Store.OrderByAlgoOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, nil
	}

	opposite := o.Side().Opposite()
	pending, err := e.Store.PendingEntryOrdersForSide(ctx, opposite)
	if err != nil {
		return nil, err
	}

	var remote []remoteCancel
	for _, p := range pending {
		if pg := e.orderGrouping(ctx, p); pg != "" && pg != grouping {
			remote = append(remote, remoteCancel{grouping: pg, orderID: p.OrderID(), label: "cancel opposite entry"})
			continue
		}
		if err := e.cancelAlgoOrder(ctx, p.Entry); err != nil {
			abortOnGatewayError("cancel opposite entry "+fmt.Sprint(p.OrderID()), err)
		}
	}

	if g := o.Group; g != nil && g.Stop != nil && g.Stop.Status == exchange.StatusNew {
		if err := e.cancelAlgoOrder(ctx, g.Stop); err != nil {
			abortOnGatewayError("cancel pending group stop "+fmt.Sprint(g.Stop.OrderID), err)
		}
	}

	return remote, e.createStopForOrder(ctx, o)
}

// createStopForOrder submits the individual protective stop for a just
// filled entry and attaches it.
func (e *Engine) createStopForOrder(ctx context.Context, o *order.Order) error {
	g := o.Group
	if g == nil {
		log.Printf("⚠️ filled order %s has no group, skipping protective stop", o.ID)
		return nil
	}

	side := o.Side().Opposite()
	a, err := e.submitAlgoOrder(ctx, g.TimeframeGroupID, exchange.OrderRequest{
		Symbol:       o.Entry.Symbol,
		Side:         side,
		Quantity:     o.Quantity(),
		TriggerPrice: stopTriggerPrice(o, g.Params.StopLossOffset),
		Tag:          fmt.Sprintf("stop-for-%d", o.OrderID()),
	}, true)
	if err != nil {
		abortOnGatewayError("submit protective stop", err)
		return nil
	}

	if err := o.AttachStop(a); err != nil {
		log.Printf("⚠️ order %s rejected stop %d: %v", o.ID, a.OrderID, err)
		return nil
	}
	return e.Store.UpdateOrder(ctx, o)
}

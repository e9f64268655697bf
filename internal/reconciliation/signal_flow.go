package reconciliation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"woox-trader/internal/events"
	"woox-trader/internal/order"
	"woox-trader/internal/strategy"
	"woox-trader/pkg/exchange"
)

// HandleNewSignal runs the signal-side reconciliation pass. It resolves or
// creates the group for the signal's side, and either updates that group's
// single pending entry or submits a new one. When the signal's group is not
// active but an opposing group is, the signal also prices that group's shared
// protective stop before placing its own entry.
//
// Gateway failures abort the step that needed them and are already recorded
// for audit; they never propagate out. A returned error is a LogicError or a
// store failure.
func (e *Engine) HandleNewSignal(ctx context.Context, tfGroupID string, sig strategy.Signal, params strategy.Params) error {
	unlock := e.locks.Lock(tfGroupID)
	defer unlock()

	group, err := e.resolveGroup(ctx, tfGroupID, sig.Side, params)
	if err != nil {
		return err
	}

	if !groupAllowsOrders(group) {
		log.Printf("🚫 group %s not accepting orders (cooldown or order limit)", group.ID)
		return nil
	}

	if group.IsActive() {
		return e.createOrUpdateEntry(ctx, group, sig, params)
	}

	// The signal's own group is dormant. If an opposing group holds the
	// position right now, this signal doubles as its exit level: create or
	// re-price that group's shared stop before arming the new entry.
	active, err := e.Store.CurrentActiveGroup(ctx, tfGroupID)
	if err != nil {
		return err
	}

	var stop *order.AlgoOrder
	stopCreated := false
	if active != nil && active.ID != group.ID {
		stop, stopCreated, err = e.createOrUpdateGroupStop(ctx, active, sig, params)
		if err != nil {
			return err
		}
	}

	if err := e.createOrUpdateEntry(ctx, group, sig, params); err != nil {
		return err
	}

	if stopCreated && stop != nil {
		if err := active.SetStop(stop); err != nil {
			log.Printf("⚠️ group %s rejected stop %d: %v", active.ID, stop.OrderID, err)
			return nil
		}
		if err := e.Store.UpdateGroup(ctx, active); err != nil {
			return err
		}
		e.publish(events.EventGroupStopUpdated, active)
	}
	return nil
}

// resolveGroup returns the latest group for the side, creating a fresh one
// when none exists or the latest is closed. Params are snapshotted onto the
// new group; later config edits do not reinterpret an open group.
func (e *Engine) resolveGroup(ctx context.Context, tfGroupID string, side exchange.Side, params strategy.Params) (*order.OrderGroup, error) {
	group, err := e.Store.LatestGroupForSide(ctx, tfGroupID, side)
	if err != nil {
		return nil, err
	}
	if group != nil && !group.IsClosed() {
		return group, nil
	}

	group = &order.OrderGroup{
		ID:               uuid.NewString(),
		TimeframeGroupID: tfGroupID,
		Side:             side,
		Params:           params,
		CreatedAt:        time.Now(),
	}
	if err := e.Store.SaveGroup(ctx, group); err != nil {
		return nil, err
	}
	e.publish(events.EventGroupOpened, group)
	log.Printf("📂 opened %s group %s in %s", side, group.ID, tfGroupID)
	return group, nil
}

func groupAllowsOrders(g *order.OrderGroup) bool {
	if !g.HasExceededMinutesSinceLastFill(time.Now()) {
		return false
	}
	return !g.HasReachedMaxOrderLimit()
}

// createOrUpdateEntry amends the group's pending entry to the signal's
// trigger level, or submits a new entry and adds it as a member.
func (e *Engine) createOrUpdateEntry(ctx context.Context, g *order.OrderGroup, sig strategy.Signal, params strategy.Params) error {
	trigger := entryTriggerPrice(sig.Side, sig.KlineLow, sig.KlineHigh, params.TriggerPriceOffset)

	if pending := g.CurrentPendingOrder(); pending != nil {
		if pending.TriggerPrice() != trigger {
			if err := e.amendTriggerPrice(ctx, pending.Entry, trigger); err != nil {
				abortOnGatewayError("amend entry "+fmt.Sprint(pending.OrderID()), err)
				return nil
			}
		}
		if err := pending.Retarget(sig); err != nil {
			log.Printf("⚠️ retarget of order %s rejected: %v", pending.ID, err)
			return nil
		}
		return e.Store.UpdateOrder(ctx, pending)
	}

	a, err := e.submitAlgoOrder(ctx, g.TimeframeGroupID, exchange.OrderRequest{
		Symbol:       sig.Symbol,
		Side:         sig.Side,
		Quantity:     params.Quantity(),
		TriggerPrice: trigger,
		Tag:          fmt.Sprintf("group-%s-order", g.ID),
	}, false)
	if err != nil {
		abortOnGatewayError("submit entry", err)
		return nil
	}

	o := &order.Order{
		ID:        uuid.NewString(),
		Entry:     a,
		Signal:    sig,
		CreatedAt: time.Now(),
	}
	if err := o.Validate(); err != nil {
		log.Printf("⚠️ new order for signal %s rejected: %v", sig.ID, err)
		return nil
	}
	if err := g.AddOrder(o); err != nil {
		// entry exists on the exchange but has no local member now; the
		// audit report surfaces it
		log.Printf("⚠️ group %s rejected order %s (exchange order %d left unattached): %v",
			g.ID, o.ID, a.OrderID, err)
		return nil
	}
	if err := e.Store.SaveOrder(ctx, o); err != nil {
		return err
	}
	return e.Store.UpdateGroup(ctx, g)
}

// createOrUpdateGroupStop prices the opposing active group's shared stop at
// the signal's entry trigger level. Returns the stop and whether it was
// newly submitted; an existing stop is re-priced in place and not returned
// as created.
func (e *Engine) createOrUpdateGroupStop(ctx context.Context, g *order.OrderGroup, sig strategy.Signal, params strategy.Params) (*order.AlgoOrder, bool, error) {
	if g.Side == sig.Side {
		return nil, false, logicErrorf("createOrUpdateGroupStop",
			"stop for %s group %s would be on its own side", g.Side, g.ID)
	}

	trigger := entryTriggerPrice(sig.Side, sig.KlineLow, sig.KlineHigh, params.TriggerPriceOffset)

	if stop := g.Stop; stop != nil {
		if stop.TriggerPrice != trigger {
			if err := e.amendTriggerPrice(ctx, stop, trigger); err != nil {
				abortOnGatewayError("amend group stop "+fmt.Sprint(stop.OrderID), err)
			}
		}
		return stop, false, nil
	}

	a, err := e.submitAlgoOrder(ctx, g.TimeframeGroupID, exchange.OrderRequest{
		Symbol:       sig.Symbol,
		Side:         sig.Side,
		Quantity:     g.Quantity(),
		TriggerPrice: trigger,
		Tag:          fmt.Sprintf("group-%s-closer", g.ID),
	}, true)
	if err != nil {
		abortOnGatewayError("submit group stop", err)
		return nil, false, nil
	}
	return a, true, nil
}

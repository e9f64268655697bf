package reconciliation

import (
	"context"
	"log"
	"sync"

	"woox-trader/internal/events"
	"woox-trader/internal/order"
	"woox-trader/pkg/exchange"
)

// Engine reconciles local order/group state against the exchange. Two entry
// points feed it: HandleNewSignal from the strategy router and
// HandleOrderUpdate from the private websocket stream. Both run the whole
// read-decide-write sequence under the per-grouping lock, gateway calls
// included, so a half-applied decision is never observable.
type Engine struct {
	Store   order.Store
	Gateway exchange.Gateway
	Bus     *events.Bus

	locks *keyedMutex

	routeMu sync.Mutex
	routes  map[int64]string
}

func NewEngine(store order.Store, gw exchange.Gateway, bus *events.Bus) *Engine {
	return &Engine{
		Store:   store,
		Gateway: gw,
		Bus:     bus,
		locks:   newKeyedMutex(),
		routes:  make(map[int64]string),
	}
}

// recordRoute pins an exchange order id to its timeframe grouping the moment
// the exchange assigns the id. The status pass keys its lock on this, so an
// event racing the submitting signal pass serializes behind it instead of
// slipping through on a fallback key while the order is still being linked.
// Orders predating this process are routed via their stored group instead.
func (e *Engine) recordRoute(orderID int64, grouping string) {
	e.routeMu.Lock()
	e.routes[orderID] = grouping
	e.routeMu.Unlock()
}

func (e *Engine) routeFor(orderID int64) (string, bool) {
	e.routeMu.Lock()
	defer e.routeMu.Unlock()
	key, ok := e.routes[orderID]
	return key, ok
}

func (e *Engine) publish(ev events.Event, payload any) {
	if e.Bus != nil {
		e.Bus.Publish(ev, payload)
	}
}

// submitAlgoOrder places an order on the exchange and persists the local
// mirror, routed to the grouping whose lock the caller holds. A gateway
// failure leaves no local trace beyond the recorded error.
func (e *Engine) submitAlgoOrder(ctx context.Context, grouping string, req exchange.OrderRequest, reduceOnly bool) (*order.AlgoOrder, error) {
	var (
		ref exchange.OrderRef
		err error
	)
	if reduceOnly {
		ref, err = e.Gateway.SubmitStopOrder(ctx, req)
	} else {
		ref, err = e.Gateway.SubmitEntryOrder(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	e.recordRoute(ref.OrderID, grouping)
	a := order.NewAlgoOrderFromRef(ref, reduceOnly)
	if err := e.Store.SaveAlgoOrder(ctx, a); err != nil {
		return nil, err
	}
	e.publish(events.EventOrderSubmitted, a)
	return a, nil
}

// amendTriggerPrice sends an edit and, on ack, applies the new price to the
// local mirror. The exchange confirms the edit asynchronously too; applying
// on ack keeps the mirror current between the two.
func (e *Engine) amendTriggerPrice(ctx context.Context, a *order.AlgoOrder, price float64) error {
	if _, err := e.Gateway.AmendOrder(ctx, a.OrderID, exchange.AmendRequest{TriggerPrice: &price}); err != nil {
		return err
	}
	a.TriggerPrice = price
	if err := e.Store.UpdateAlgoOrder(ctx, a); err != nil {
		return err
	}
	e.publish(events.EventOrderAmended, a)
	return nil
}

func (e *Engine) amendQuantity(ctx context.Context, a *order.AlgoOrder, quantity float64) error {
	if _, err := e.Gateway.AmendOrder(ctx, a.OrderID, exchange.AmendRequest{Quantity: &quantity}); err != nil {
		return err
	}
	a.Quantity = quantity
	if err := e.Store.UpdateAlgoOrder(ctx, a); err != nil {
		return err
	}
	e.publish(events.EventOrderAmended, a)
	return nil
}

// cancelAlgoOrder cancels on the exchange and marks the mirror cancelled
// with zero quantity, matching what the status stream will confirm later.
func (e *Engine) cancelAlgoOrder(ctx context.Context, a *order.AlgoOrder) error {
	if err := e.Gateway.CancelOrder(ctx, a.OrderID); err != nil {
		return err
	}
	a.Status = exchange.StatusCancelled
	a.Quantity = 0
	if err := e.Store.UpdateAlgoOrder(ctx, a); err != nil {
		return err
	}
	e.publish(events.EventOrderCancelled, a)
	return nil
}

// abortOnGatewayError collapses a failed exchange call into an aborted
// operation. The woox client has already recorded the error for audit; the
// event loops feeding the engine must keep running.
func abortOnGatewayError(op string, err error) {
	log.Printf("⚠️ %s aborted: %v", op, err)
}

package paper

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"woox-trader/pkg/exchange"
)

// Config tunes the simulation.
type Config struct {
	SlippageBps float64 // basis points of slippage applied on fills
	EventBuffer int
}

// Gateway simulates the exchange algo order API in memory for paper runs.
// Submitted orders rest until a Tick crosses their trigger price, then a
// FILLED status event is pushed on Events, shaped like the private websocket
// stream so the reconciliation engine runs unchanged.
type Gateway struct {
	mu      sync.Mutex
	nextID  int64
	resting map[int64]*restingOrder
	events  chan exchange.OrderStatusEvent
	cfg     Config
	rng     *rand.Rand
}

type restingOrder struct {
	ref        exchange.OrderRef
	reduceOnly bool
	done       bool
}

func New(cfg Config) *Gateway {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	return &Gateway{
		nextID:  1,
		resting: make(map[int64]*restingOrder),
		events:  make(chan exchange.OrderStatusEvent, cfg.EventBuffer),
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Events carries simulated order status notifications.
func (g *Gateway) Events() <-chan exchange.OrderStatusEvent {
	return g.events
}

func (g *Gateway) SubmitEntryOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderRef, error) {
	return g.submit(req, false)
}

func (g *Gateway) SubmitStopOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderRef, error) {
	return g.submit(req, true)
}

func (g *Gateway) submit(req exchange.OrderRequest, reduceOnly bool) (exchange.OrderRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	now := float64(time.Now().UnixMilli()) / 1000

	ref := exchange.OrderRef{
		OrderID:      id,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         exchange.OrderTypeMarket,
		AlgoType:     exchange.AlgoTypeStop,
		Quantity:     req.Quantity,
		ReduceOnly:   reduceOnly,
		TriggerPrice: req.TriggerPrice,
		Status:       exchange.StatusNew,
		Tag:          req.Tag,
		CreatedTime:  now,
		UpdatedTime:  now,
	}
	g.resting[id] = &restingOrder{ref: ref, reduceOnly: reduceOnly}
	log.Printf("📝 PAPER: %s %s qty=%.6f trigger=%.4f id=%d tag=%s",
		req.Side, req.Symbol, req.Quantity, req.TriggerPrice, id, req.Tag)
	return ref, nil
}

func (g *Gateway) AmendOrder(ctx context.Context, orderID int64, amend exchange.AmendRequest) (exchange.OrderRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.resting[orderID]
	if !ok || r.done {
		return exchange.OrderRef{}, &exchange.GatewayError{
			Kind: exchange.ErrorKindAPI,
			Err:  exchange.ErrOrderNotFound,
		}
	}
	if amend.Quantity != nil {
		r.ref.Quantity = *amend.Quantity
	}
	if amend.TriggerPrice != nil {
		r.ref.TriggerPrice = *amend.TriggerPrice
	}
	r.ref.UpdatedTime = float64(time.Now().UnixMilli()) / 1000
	return r.ref, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.resting[orderID]
	if !ok || r.done {
		return &exchange.GatewayError{Kind: exchange.ErrorKindAPI, Err: exchange.ErrOrderNotFound}
	}
	r.done = true
	r.ref.Status = exchange.StatusCancelled
	g.emit(r, exchange.StatusCancelled, false, 0)
	return nil
}

// Tick feeds a traded price into the simulation. Resting orders whose
// trigger the price crossed fill at the trigger plus slippage noise and are
// reported through the event channel.
func (g *Gateway) Tick(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range g.resting {
		if r.done || r.ref.Symbol != symbol {
			continue
		}
		if !triggered(r.ref.Side, r.ref.TriggerPrice, price) {
			continue
		}
		r.done = true
		r.ref.Status = exchange.StatusFilled
		g.emit(r, exchange.StatusFilled, true, g.fillPrice(r.ref))
	}
}

// triggered mimics stop-market semantics: a BUY arms above the market and
// trips when price rises to the trigger, a SELL the other way around.
func triggered(side exchange.Side, trigger, price float64) bool {
	if side == exchange.SideBuy {
		return price >= trigger
	}
	return price <= trigger
}

func (g *Gateway) fillPrice(ref exchange.OrderRef) float64 {
	noise := g.rng.Float64() * g.cfg.SlippageBps / 10000
	if ref.Side == exchange.SideBuy {
		return ref.TriggerPrice * (1 + noise)
	}
	return ref.TriggerPrice * (1 - noise)
}

func (g *Gateway) emit(r *restingOrder, status exchange.Status, isTriggered bool, tradePrice float64) {
	now := float64(time.Now().UnixMilli()) / 1000
	ev := exchange.OrderStatusEvent{
		OrderID:           r.ref.OrderID,
		Symbol:            r.ref.Symbol,
		Side:              r.ref.Side,
		ReduceOnly:        r.reduceOnly,
		Status:            status,
		IsTriggered:       isTriggered,
		TriggerPrice:      r.ref.TriggerPrice,
		TriggerTradePrice: tradePrice,
		TriggerTime:       now,
		Quantity:          r.ref.Quantity,
		UpdatedTime:       now,
	}
	if status == exchange.StatusFilled {
		ev.TotalExecutedQuantity = r.ref.Quantity
		ev.AverageExecutedPrice = tradePrice
	}
	select {
	case g.events <- ev:
	default:
		log.Printf("⚠️ PAPER: event buffer full, dropping update for order %d", r.ref.OrderID)
	}
}

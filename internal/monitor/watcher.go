package monitor

import (
	"context"
	"log"

	"woox-trader/internal/events"
	"woox-trader/internal/market"
	"woox-trader/internal/order"
	"woox-trader/pkg/cache"
	"woox-trader/pkg/exchange"
)

// Watcher feeds the metrics counters from the event bus so instrumentation
// stays out of the reconciliation path. When Prices is set it also tracks
// the last 1m close per symbol.
type Watcher struct {
	Bus     *events.Bus
	Metrics *Metrics
	Prices  *cache.PriceCache
}

func (w *Watcher) Start(ctx context.Context) {
	if w.Bus == nil || w.Metrics == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}

	w.watch(ctx, events.EventKlineClosed, func(payload any) {
		w.Metrics.IncrementKlines()
		if w.Prices == nil {
			return
		}
		if k, ok := payload.(market.Kline); ok && k.TimeframeMinutes == 1 {
			w.Prices.Set(k.Symbol, k.Close)
		}
	})
	w.watch(ctx, events.EventSignal, func(any) { w.Metrics.IncrementSignals() })
	w.watch(ctx, events.EventOrderStatus, func(any) { w.Metrics.IncrementStatusEvents() })
	w.watch(ctx, events.EventOrderCancelled, func(any) { w.Metrics.IncrementOrdersCancelled() })
	w.watch(ctx, events.EventGroupStopUpdated, func(any) { w.Metrics.IncrementGroupStopAmends() })
	w.watch(ctx, events.EventGatewayError, func(any) { w.Metrics.IncrementGatewayErrors() })
	w.watch(ctx, events.EventOrderSubmitted, func(payload any) {
		a, ok := payload.(*order.AlgoOrder)
		if !ok {
			return
		}
		if a.ReduceOnly {
			w.Metrics.IncrementStopsPlaced()
		} else {
			w.Metrics.IncrementOrdersOpened()
		}
	})
}

// BusRecorder forwards gateway errors to the wrapped recorder and mirrors
// them on the bus so the watcher can count them.
type BusRecorder struct {
	Next exchange.ErrorRecorder
	Bus  *events.Bus
}

func (r *BusRecorder) RecordGatewayError(ctx context.Context, kind exchange.ErrorKind, url, params, detail string) {
	if r.Next != nil {
		r.Next.RecordGatewayError(ctx, kind, url, params, detail)
	}
	if r.Bus != nil {
		r.Bus.Publish(events.EventGatewayError, struct {
			Kind   string `json:"kind"`
			URL    string `json:"url"`
			Detail string `json:"detail"`
		}{Kind: string(kind), URL: url, Detail: detail})
	}
}

func (w *Watcher) watch(ctx context.Context, ev events.Event, fn func(any)) {
	stream, unsub := w.Bus.Subscribe(ev, 50)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				fn(msg)
			}
		}
	}()
}

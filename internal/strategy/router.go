package strategy

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"woox-trader/internal/events"
	"woox-trader/internal/indicators"
	"woox-trader/internal/market"
	"woox-trader/pkg/exchange"
)

// SignalHandler receives qualified signals; implemented by the
// reconciliation engine.
type SignalHandler interface {
	HandleNewSignal(ctx context.Context, tfGroupID string, sig Signal, params Params) error
}

// SignalStore persists emitted signals.
type SignalStore interface {
	SaveSignal(ctx context.Context, sig Signal) error
}

// Router watches timeframe closes and turns RSI threshold crossings into
// directional signals. A close that drops RSI down through the group's lower
// bound emits BUY; a close that pushes it up through the upper bound emits
// SELL. Crossings are evaluated against the previous close so a value merely
// sitting beyond a bound does not re-fire.
type Router struct {
	Groups     []GroupConfig
	Indicators *indicators.Engine
	Store      SignalStore
	Handler    SignalHandler
	Bus        *events.Bus
}

// Run consumes kline-closed events from the bus until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	ch, unsub := r.Bus.Subscribe(events.EventKlineClosed, 64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			k, ok := payload.(market.Kline)
			if !ok {
				continue
			}
			r.OnKlineClosed(ctx, k)
		}
	}
}

// OnKlineClosed evaluates one finished kline against every active group on
// its symbol and timeframe.
func (r *Router) OnKlineClosed(ctx context.Context, k market.Kline) {
	for _, g := range r.Groups {
		if !g.IsActive || g.Symbol != k.Symbol || g.TimeframeMinutes != k.TimeframeMinutes {
			continue
		}

		reading := r.Indicators.Update(k.Symbol, k.TimeframeMinutes, k.Close)
		if !reading.Ready {
			continue
		}

		side, crossed := crossing(g.RSI, reading)
		if !crossed {
			continue
		}

		sig := Signal{
			ID:               uuid.NewString(),
			TimeframeGroupID: g.ID,
			Symbol:           k.Symbol,
			Side:             side,
			KlineLow:         k.Low,
			KlineHigh:        k.High,
			RSI:              reading.Current,
			CreatedAt:        time.Now(),
		}

		log.Printf("📝 signal %s %s %s rsi %.2f (prev %.2f) on %dm close",
			sig.ID, sig.Side, sig.Symbol, reading.Current, reading.Previous, k.TimeframeMinutes)

		if r.Store != nil {
			if err := r.Store.SaveSignal(ctx, sig); err != nil {
				log.Printf("⚠️ failed to persist signal %s: %v", sig.ID, err)
			}
		}
		if r.Bus != nil {
			r.Bus.Publish(events.EventSignal, sig)
		}
		if err := r.Handler.HandleNewSignal(ctx, g.ID, sig, g.Params); err != nil {
			log.Printf("❌ signal %s rejected: %v", sig.ID, err)
		}
	}
}

func crossing(cfg RSIConfig, r indicators.Reading) (exchange.Side, bool) {
	if r.Previous >= cfg.Lower && r.Current < cfg.Lower {
		return exchange.SideBuy, true
	}
	if r.Previous <= cfg.Upper && r.Current > cfg.Upper {
		return exchange.SideSell, true
	}
	return "", false
}

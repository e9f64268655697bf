package strategy

import (
	"context"
	"testing"

	"woox-trader/internal/indicators"
	"woox-trader/internal/market"
	"woox-trader/pkg/exchange"
)

type handledSignal struct {
	tfGroupID string
	sig       Signal
	params    Params
}

type fakeHandler struct {
	handled []handledSignal
}

func (f *fakeHandler) HandleNewSignal(ctx context.Context, tfGroupID string, sig Signal, params Params) error {
	f.handled = append(f.handled, handledSignal{tfGroupID: tfGroupID, sig: sig, params: params})
	return nil
}

type fakeSignalStore struct {
	saved []Signal
}

func (f *fakeSignalStore) SaveSignal(ctx context.Context, sig Signal) error {
	f.saved = append(f.saved, sig)
	return nil
}

func testGroupConfig() GroupConfig {
	return GroupConfig{
		ID:               "tfg-15m",
		Symbol:           "PERP_BTC_USDT",
		TimeframeMinutes: 15,
		RSI:              RSIConfig{Period: 2, Upper: 70, Lower: 30},
		Params:           Params{OrderQuantity: 100, TriggerPriceOffset: 10, StopLossOffset: 50},
		IsActive:         true,
	}
}

func closedKline(close, low, high float64) market.Kline {
	return market.Kline{
		Symbol:           "PERP_BTC_USDT",
		TimeframeMinutes: 15,
		Close:            close,
		Low:              low,
		High:             high,
	}
}

func TestCrossing(t *testing.T) {
	cfg := RSIConfig{Period: 2, Upper: 70, Lower: 30}
	cases := []struct {
		name     string
		previous float64
		current  float64
		side     exchange.Side
		fires    bool
	}{
		{name: "drop through lower", previous: 45, current: 20, side: exchange.SideBuy, fires: true},
		{name: "rise through upper", previous: 60, current: 85, side: exchange.SideSell, fires: true},
		{name: "already below lower", previous: 25, current: 10, fires: false},
		{name: "already above upper", previous: 80, current: 95, fires: false},
		{name: "inside band", previous: 40, current: 60, fires: false},
		{name: "exits band from inside back to inside", previous: 50, current: 50, fires: false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			side, fired := crossing(cfg, indicators.Reading{Current: c.current, Previous: c.previous, Ready: true})
			if fired != c.fires {
				t.Fatalf("crossing fired = %v, want %v", fired, c.fires)
			}
			if fired && side != c.side {
				t.Errorf("side = %s, want %s", side, c.side)
			}
		})
	}
}

func TestRouterEmitsOnThresholdCrossings(t *testing.T) {
	handler := &fakeHandler{}
	store := &fakeSignalStore{}
	r := &Router{
		Groups:     []GroupConfig{testGroupConfig()},
		Indicators: indicators.NewEngine(2, 10),
		Store:      store,
		Handler:    handler,
	}
	ctx := context.Background()

	// warm up: steadily rising closes keep RSI pegged at 100, above the
	// upper bound from the first ready reading, so nothing fires
	for _, close := range []float64{100, 101, 102, 103} {
		r.OnKlineClosed(ctx, closedKline(close, close-1, close+1))
	}
	if len(handler.handled) != 0 {
		t.Fatalf("warmup emitted %d signals", len(handler.handled))
	}

	// sharp drop pulls RSI from 100 down through 30
	r.OnKlineClosed(ctx, closedKline(90, 88, 104))
	if len(handler.handled) != 1 {
		t.Fatalf("drop emitted %d signals, want 1", len(handler.handled))
	}
	got := handler.handled[0]
	if got.sig.Side != exchange.SideBuy {
		t.Errorf("Side = %s, want BUY", got.sig.Side)
	}
	if got.tfGroupID != "tfg-15m" || got.sig.TimeframeGroupID != "tfg-15m" {
		t.Errorf("timeframe group = %s / %s, want tfg-15m", got.tfGroupID, got.sig.TimeframeGroupID)
	}
	if got.sig.KlineLow != 88 || got.sig.KlineHigh != 104 {
		t.Errorf("kline extremes = %v/%v, want 88/104", got.sig.KlineLow, got.sig.KlineHigh)
	}
	if got.params.OrderQuantity != 100 {
		t.Errorf("params not passed through: %+v", got.params)
	}
	if len(store.saved) != 1 || store.saved[0].ID != got.sig.ID {
		t.Errorf("signal not persisted before dispatch")
	}

	// a second close below the bound must not re-fire
	r.OnKlineClosed(ctx, closedKline(89, 87, 91))
	if len(handler.handled) != 1 {
		t.Fatalf("resting below lower re-fired: %d signals", len(handler.handled))
	}

	// strong rebound pushes RSI from the floor up through 70
	r.OnKlineClosed(ctx, closedKline(120, 88, 121))
	if len(handler.handled) != 2 {
		t.Fatalf("rebound emitted %d signals, want 2", len(handler.handled))
	}
	if handler.handled[1].sig.Side != exchange.SideSell {
		t.Errorf("rebound Side = %s, want SELL", handler.handled[1].sig.Side)
	}
}

func TestRouterIgnoresUnmatchedKlines(t *testing.T) {
	handler := &fakeHandler{}
	inactive := testGroupConfig()
	inactive.IsActive = false
	r := &Router{
		Groups:     []GroupConfig{inactive},
		Indicators: indicators.NewEngine(2, 10),
		Handler:    handler,
	}
	ctx := context.Background()

	for _, close := range []float64{100, 101, 102, 103, 90} {
		r.OnKlineClosed(ctx, closedKline(close, close-1, close+1))
	}
	if len(handler.handled) != 0 {
		t.Fatalf("inactive group emitted %d signals", len(handler.handled))
	}

	active := testGroupConfig()
	r.Groups = []GroupConfig{active}

	other := closedKline(90, 89, 91)
	other.TimeframeMinutes = 60
	r.OnKlineClosed(ctx, other)

	other.TimeframeMinutes = 15
	other.Symbol = "PERP_ETH_USDT"
	r.OnKlineClosed(ctx, other)

	if len(handler.handled) != 0 {
		t.Fatalf("unmatched klines emitted %d signals", len(handler.handled))
	}
}

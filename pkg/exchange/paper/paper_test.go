package paper

import (
	"context"
	"testing"
	"time"

	"woox-trader/pkg/exchange"
)

func nextEvent(t *testing.T, g *Gateway) exchange.OrderStatusEvent {
	t.Helper()
	select {
	case ev := <-g.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected an order status event")
		return exchange.OrderStatusEvent{}
	}
}

func TestEntryFillsWhenPriceCrossesTrigger(t *testing.T) {
	g := New(Config{})
	ctx := context.Background()

	ref, err := g.SubmitEntryOrder(ctx, exchange.OrderRequest{
		Symbol:       "PERP_BTC_USDT",
		Side:         exchange.SideBuy,
		Quantity:     0.5,
		TriggerPrice: 50000,
	})
	if err != nil {
		t.Fatalf("SubmitEntryOrder returned error: %v", err)
	}
	if ref.Status != exchange.StatusNew {
		t.Fatalf("expected NEW resting order, got %s", ref.Status)
	}

	g.Tick("PERP_BTC_USDT", 49990) // below trigger, BUY stays resting
	select {
	case ev := <-g.Events():
		t.Fatalf("unexpected event before trigger: %+v", ev)
	default:
	}

	g.Tick("PERP_BTC_USDT", 50005)
	ev := nextEvent(t, g)
	if ev.OrderID != ref.OrderID || ev.Status != exchange.StatusFilled || !ev.IsTriggered {
		t.Fatalf("expected triggered fill, got %+v", ev)
	}
	if ev.TriggerTradePrice < 50000 {
		t.Fatalf("BUY slippage should not improve on the trigger: %v", ev.TriggerTradePrice)
	}

	// A filled order never fills twice.
	g.Tick("PERP_BTC_USDT", 50100)
	select {
	case dup := <-g.Events():
		t.Fatalf("duplicate fill event: %+v", dup)
	default:
	}
}

func TestStopOrderIsReduceOnlyAndTriggersDownward(t *testing.T) {
	g := New(Config{})
	ctx := context.Background()

	ref, err := g.SubmitStopOrder(ctx, exchange.OrderRequest{
		Symbol:       "PERP_BTC_USDT",
		Side:         exchange.SideSell,
		Quantity:     0.5,
		TriggerPrice: 49500,
	})
	if err != nil {
		t.Fatalf("SubmitStopOrder returned error: %v", err)
	}

	g.Tick("PERP_BTC_USDT", 49600) // above trigger, SELL stays resting
	g.Tick("PERP_BTC_USDT", 49500)

	ev := nextEvent(t, g)
	if ev.OrderID != ref.OrderID || !ev.ReduceOnly || ev.Status != exchange.StatusFilled {
		t.Fatalf("expected reduce-only fill, got %+v", ev)
	}
}

func TestAmendMovesTriggerAndQuantity(t *testing.T) {
	g := New(Config{})
	ctx := context.Background()

	ref, err := g.SubmitEntryOrder(ctx, exchange.OrderRequest{
		Symbol:       "PERP_BTC_USDT",
		Side:         exchange.SideBuy,
		Quantity:     1,
		TriggerPrice: 50000,
	})
	if err != nil {
		t.Fatalf("SubmitEntryOrder returned error: %v", err)
	}

	trigger := 50500.0
	qty := 2.0
	amended, err := g.AmendOrder(ctx, ref.OrderID, exchange.AmendRequest{
		TriggerPrice: &trigger,
		Quantity:     &qty,
	})
	if err != nil {
		t.Fatalf("AmendOrder returned error: %v", err)
	}
	if amended.TriggerPrice != 50500 || amended.Quantity != 2 {
		t.Fatalf("amend not applied: %+v", amended)
	}

	// The old trigger no longer fills.
	g.Tick("PERP_BTC_USDT", 50100)
	select {
	case ev := <-g.Events():
		t.Fatalf("filled at stale trigger: %+v", ev)
	default:
	}

	g.Tick("PERP_BTC_USDT", 50500)
	ev := nextEvent(t, g)
	if ev.Quantity != 2 {
		t.Fatalf("expected amended quantity in fill, got %+v", ev)
	}
}

func TestCancelledOrderEmitsAndStopsFilling(t *testing.T) {
	g := New(Config{})
	ctx := context.Background()

	ref, err := g.SubmitEntryOrder(ctx, exchange.OrderRequest{
		Symbol:       "PERP_BTC_USDT",
		Side:         exchange.SideBuy,
		Quantity:     1,
		TriggerPrice: 50000,
	})
	if err != nil {
		t.Fatalf("SubmitEntryOrder returned error: %v", err)
	}

	if err := g.CancelOrder(ctx, ref.OrderID); err != nil {
		t.Fatalf("CancelOrder returned error: %v", err)
	}
	ev := nextEvent(t, g)
	if ev.Status != exchange.StatusCancelled {
		t.Fatalf("expected CANCELLED event, got %+v", ev)
	}

	g.Tick("PERP_BTC_USDT", 50100)
	select {
	case dup := <-g.Events():
		t.Fatalf("cancelled order filled: %+v", dup)
	default:
	}

	if err := g.CancelOrder(ctx, ref.OrderID); err == nil {
		t.Fatal("expected error cancelling a done order")
	}
}

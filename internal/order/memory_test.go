package order

import (
	"context"
	"testing"
	"time"

	"woox-trader/internal/strategy"
	"woox-trader/pkg/exchange"
)

func memEntry(id int64) *AlgoOrder {
	return &AlgoOrder{
		OrderID:  id,
		Symbol:   "PERP_BTC_USDT",
		Side:     exchange.SideBuy,
		Quantity: 100,
		Status:   exchange.StatusNew,
	}
}

func memSignal(id string) strategy.Signal {
	return strategy.Signal{
		ID:               id,
		TimeframeGroupID: "tf-1",
		Symbol:           "PERP_BTC_USDT",
		Side:             exchange.SideBuy,
		CreatedAt:        time.Now(),
	}
}

func TestSaveOrderRejectsDuplicateEntrySignalPair(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := &Order{ID: "ord-a", Entry: memEntry(11), Signal: memSignal("sig-dup"), CreatedAt: time.Now()}
	if err := s.SaveOrder(ctx, first); err != nil {
		t.Fatalf("SaveOrder returned error: %v", err)
	}

	// re-saving the same order is an update, not a duplicate
	if err := s.UpdateOrder(ctx, first); err != nil {
		t.Fatalf("UpdateOrder returned error: %v", err)
	}

	dup := &Order{ID: "ord-b", Entry: memEntry(11), Signal: memSignal("sig-dup"), CreatedAt: time.Now()}
	if err := s.SaveOrder(ctx, dup); err == nil {
		t.Fatalf("duplicate (entry, signal) pair accepted")
	}

	// same entry re-armed by a later signal stays allowed
	other := &Order{ID: "ord-c", Entry: memEntry(11), Signal: memSignal("sig-next"), CreatedAt: time.Now()}
	if err := s.SaveOrder(ctx, other); err != nil {
		t.Fatalf("SaveOrder for a new signal returned error: %v", err)
	}
}

package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"woox-trader/internal/order"
	"woox-trader/internal/strategy"
	"woox-trader/pkg/exchange"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := New(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewStore(d)
}

func dbEntry(id int64, side exchange.Side, status exchange.Status) *order.AlgoOrder {
	return &order.AlgoOrder{
		OrderID:      id,
		Symbol:       "PERP_BTC_USDT",
		Type:         exchange.OrderTypeMarket,
		AlgoType:     exchange.AlgoTypeStop,
		Side:         side,
		Quantity:     100,
		TriggerPrice: 50000,
		Status:       status,
		CreatedAt:    time.Now(),
	}
}

func dbStop(id int64, side exchange.Side, status exchange.Status) *order.AlgoOrder {
	a := dbEntry(id, side, status)
	a.ReduceOnly = true
	a.TriggerPrice = 49500
	return a
}

func saveAlgos(t *testing.T, s *Store, algos ...*order.AlgoOrder) {
	t.Helper()
	for _, a := range algos {
		if err := s.SaveAlgoOrder(context.Background(), a); err != nil {
			t.Fatalf("save algo %d: %v", a.OrderID, err)
		}
	}
}

func TestAlgoOrderRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := dbEntry(101, exchange.SideBuy, exchange.StatusNew)
	a.TriggerTradePrice = 49998.5
	a.OrderTag = "group-g1-order"
	saveAlgos(t, s, a)

	got, err := s.AlgoOrderByID(ctx, 101)
	if err != nil {
		t.Fatalf("AlgoOrderByID: %v", err)
	}
	if got == nil {
		t.Fatal("saved algo order not found")
	}
	if got.Side != exchange.SideBuy || got.Status != exchange.StatusNew ||
		got.TriggerTradePrice != 49998.5 || got.OrderTag != "group-g1-order" {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	a.Status = exchange.StatusFilled
	a.IsTriggered = true
	a.TriggerTime = 1724999940
	if err := s.UpdateAlgoOrder(ctx, a); err != nil {
		t.Fatalf("UpdateAlgoOrder: %v", err)
	}
	got, _ = s.AlgoOrderByID(ctx, 101)
	if got.Status != exchange.StatusFilled || !got.IsTriggered || got.TriggerTime != 1724999940 {
		t.Errorf("update not persisted: %+v", got)
	}

	if missing, err := s.AlgoOrderByID(ctx, 999); err != nil || missing != nil {
		t.Errorf("missing algo order = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestOrderRoundtripWithSignalHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := dbEntry(201, exchange.SideBuy, exchange.StatusFilled)
	stop := dbStop(202, exchange.SideSell, exchange.StatusNew)
	saveAlgos(t, s, entry, stop)

	sig := strategy.Signal{
		ID:               "sig-current",
		TimeframeGroupID: "tf1",
		Symbol:           "PERP_BTC_USDT",
		Side:             exchange.SideBuy,
		KlineLow:         49900,
		KlineHigh:        50100,
		RSI:              24.5,
		CreatedAt:        time.Now(),
	}
	if err := s.SaveSignal(ctx, sig); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}

	o := &order.Order{
		ID:                "ord-1",
		Entry:             entry,
		Stop:              stop,
		Signal:            sig,
		PreviousSignalIDs: []string{"sig-old-1", "sig-old-2"},
		Note:              "retargeted twice",
		CreatedAt:         time.Now(),
	}
	if err := s.SaveOrder(ctx, o); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	got, err := s.OrderByAlgoOrderID(ctx, 202)
	if err != nil {
		t.Fatalf("OrderByAlgoOrderID by stop id: %v", err)
	}
	if got == nil || got.ID != "ord-1" {
		t.Fatalf("lookup by stop id = %+v", got)
	}
	if got.Entry == nil || got.Entry.OrderID != 201 || got.Stop == nil || got.Stop.OrderID != 202 {
		t.Errorf("mirrors not hydrated: entry=%+v stop=%+v", got.Entry, got.Stop)
	}
	if got.Signal.ID != "sig-current" || got.Signal.KlineLow != 49900 {
		t.Errorf("signal not hydrated: %+v", got.Signal)
	}
	if len(got.PreviousSignalIDs) != 2 || got.PreviousSignalIDs[0] != "sig-old-1" || got.PreviousSignalIDs[1] != "sig-old-2" {
		t.Errorf("signal history = %v", got.PreviousSignalIDs)
	}
	if got.Note != "retargeted twice" {
		t.Errorf("Note = %q", got.Note)
	}
}

func TestOrderUniqueEntryAndSignal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := dbEntry(301, exchange.SideBuy, exchange.StatusNew)
	saveAlgos(t, s, entry)
	sig := strategy.Signal{ID: "sig-1", CreatedAt: time.Now()}

	first := &order.Order{ID: "ord-a", Entry: entry, Signal: sig, CreatedAt: time.Now()}
	if err := s.SaveOrder(ctx, first); err != nil {
		t.Fatalf("first SaveOrder: %v", err)
	}

	dup := &order.Order{ID: "ord-b", Entry: entry, Signal: sig, CreatedAt: time.Now()}
	if err := s.SaveOrder(ctx, dup); err == nil {
		t.Fatal("duplicate (entry, signal) insert succeeded")
	}
}

// buildGroup saves a group with one filled entry member, returning the group.
func buildGroup(t *testing.T, s *Store, id, tfGroupID string, createdAt time.Time, entryID int64) *order.OrderGroup {
	t.Helper()
	ctx := context.Background()

	entry := dbEntry(entryID, exchange.SideBuy, exchange.StatusFilled)
	stop := dbStop(entryID+1, exchange.SideSell, exchange.StatusNew)
	saveAlgos(t, s, entry, stop)

	g := &order.OrderGroup{
		ID:               id,
		TimeframeGroupID: tfGroupID,
		Side:             exchange.SideBuy,
		Params:           strategy.Params{OrderQuantity: 100, MaxConsecutiveStops: 3},
		CreatedAt:        createdAt,
	}
	if err := s.SaveGroup(ctx, g); err != nil {
		t.Fatalf("SaveGroup %s: %v", id, err)
	}

	o := &order.Order{
		ID:        fmt.Sprintf("member-%s", id),
		Entry:     entry,
		Stop:      stop,
		Signal:    strategy.Signal{ID: fmt.Sprintf("sig-%s", id)},
		GroupID:   id,
		CreatedAt: createdAt,
	}
	if err := s.SaveOrder(ctx, o); err != nil {
		t.Fatalf("SaveOrder member of %s: %v", id, err)
	}
	return g
}

func TestGroupHydration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	buildGroup(t, s, "g1", "tf1", now, 401)

	groupStop := dbStop(410, exchange.SideSell, exchange.StatusNew)
	groupStop.Quantity = 100
	saveAlgos(t, s, groupStop)

	g, err := s.GroupByID(ctx, "g1")
	if err != nil {
		t.Fatalf("GroupByID: %v", err)
	}
	g.Stop = groupStop
	if err := s.UpdateGroup(ctx, g); err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}

	got, err := s.GroupByID(ctx, "g1")
	if err != nil {
		t.Fatalf("GroupByID after update: %v", err)
	}
	if got.Stop == nil || got.Stop.OrderID != 410 {
		t.Fatalf("group stop not hydrated: %+v", got.Stop)
	}
	if len(got.Orders) != 1 {
		t.Fatalf("members = %d, want 1", len(got.Orders))
	}
	member := got.Orders[0]
	if member.Group != got {
		t.Error("member back-pointer does not reference the hydrated group")
	}
	if got.Quantity() != 100 {
		t.Errorf("group quantity = %v, want 100", got.Quantity())
	}

	byStop, err := s.GroupByStopOrderID(ctx, 410)
	if err != nil || byStop == nil || byStop.ID != "g1" {
		t.Errorf("GroupByStopOrderID = (%v, %v)", byStop, err)
	}

	viaMember, err := s.OrderByAlgoOrderID(ctx, 401)
	if err != nil || viaMember == nil {
		t.Fatalf("OrderByAlgoOrderID: (%v, %v)", viaMember, err)
	}
	if viaMember.Group == nil || viaMember.Group.ID != "g1" {
		t.Error("member lookup did not hydrate the group graph")
	}
}

func TestLatestGroupForSide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	buildGroup(t, s, "older", "tf1", now.Add(-time.Hour), 501)
	buildGroup(t, s, "newer", "tf1", now, 503)
	buildGroup(t, s, "other-tf", "tf2", now.Add(time.Hour), 505)

	g, err := s.LatestGroupForSide(ctx, "tf1", exchange.SideBuy)
	if err != nil {
		t.Fatalf("LatestGroupForSide: %v", err)
	}
	if g == nil || g.ID != "newer" {
		t.Errorf("latest group = %+v, want newer", g)
	}

	if g, _ := s.LatestGroupForSide(ctx, "tf1", exchange.SideSell); g != nil {
		t.Errorf("no SELL groups exist, got %+v", g)
	}
}

func TestCurrentActiveGroupShadowsOlderOpenGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	buildGroup(t, s, "open-old", "tf1", now.Add(-time.Hour), 601)

	g, err := s.CurrentActiveGroup(ctx, "tf1")
	if err != nil {
		t.Fatalf("CurrentActiveGroup: %v", err)
	}
	if g == nil || g.ID != "open-old" {
		t.Fatalf("active group = %+v, want open-old", g)
	}

	// a newer group whose shared stop already filled is closed, yet its raw
	// entry fill still wins the newest-first scan and shadows the open one
	closed := buildGroup(t, s, "closed-new", "tf1", now, 603)
	firedStop := dbStop(610, exchange.SideSell, exchange.StatusFilled)
	saveAlgos(t, s, firedStop)
	closed.Stop = firedStop
	if err := s.UpdateGroup(ctx, closed); err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}

	g, err = s.CurrentActiveGroup(ctx, "tf1")
	if err != nil {
		t.Fatalf("CurrentActiveGroup after close: %v", err)
	}
	if g != nil {
		t.Errorf("closed newest group should yield nil, got %s", g.ID)
	}

	if g, _ := s.CurrentActiveGroup(ctx, "tf-none"); g != nil {
		t.Errorf("unknown timeframe group returned %+v", g)
	}
}

func TestPendingOrderLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pendingEntry := dbEntry(701, exchange.SideBuy, exchange.StatusNew)
	filledEntry := dbEntry(702, exchange.SideBuy, exchange.StatusFilled)
	pendingStop := dbStop(703, exchange.SideSell, exchange.StatusNew)
	saveAlgos(t, s, pendingEntry, filledEntry, pendingStop)

	orders := []*order.Order{
		{ID: "ord-pending", Entry: pendingEntry, Signal: strategy.Signal{ID: "s1"}, CreatedAt: time.Now()},
		{ID: "ord-filled", Entry: filledEntry, Stop: pendingStop, Signal: strategy.Signal{ID: "s2"}, CreatedAt: time.Now()},
	}
	for _, o := range orders {
		if err := s.SaveOrder(ctx, o); err != nil {
			t.Fatalf("SaveOrder %s: %v", o.ID, err)
		}
	}

	entries, err := s.PendingEntryOrdersForSide(ctx, exchange.SideBuy)
	if err != nil {
		t.Fatalf("PendingEntryOrdersForSide: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "ord-pending" {
		t.Errorf("pending entries = %+v", entries)
	}

	stops, err := s.PendingStopOrdersForSide(ctx, exchange.SideSell)
	if err != nil {
		t.Fatalf("PendingStopOrdersForSide: %v", err)
	}
	if len(stops) != 1 || stops[0].ID != "ord-filled" {
		t.Errorf("pending stops = %+v", stops)
	}
}

func TestGatewayErrorAuditTrail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.RecordGatewayError(ctx, exchange.ErrorKindConnection, "/v3/algo/order", `{"symbol":"PERP_BTC_USDT"}`, "connection refused")
	s.RecordGatewayError(ctx, exchange.ErrorKindAPI, "/v3/algo/order/900", "", "order not found")

	errs, err := s.RecentGatewayErrors(ctx, 10)
	if err != nil {
		t.Fatalf("RecentGatewayErrors: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("recorded errors = %d, want 2", len(errs))
	}
	if errs[0].Detail != "order not found" {
		t.Errorf("newest first ordering violated: %+v", errs[0])
	}
	if errs[1].Kind != string(exchange.ErrorKindConnection) || errs[1].URL != "/v3/algo/order" {
		t.Errorf("recorded error mismatch: %+v", errs[1])
	}
}

func TestKlineQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if start, err := s.LatestKlineStart(ctx, "PERP_BTC_USDT"); err != nil || start != 0 {
		t.Fatalf("empty table latest start = (%d, %v), want (0, nil)", start, err)
	}

	for i := int64(0); i < 3; i++ {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO klines (symbol, timeframe_minutes, start_time, open, high, low, close, volume)
			VALUES ('PERP_BTC_USDT', 1, ?, 100, 101, 99, ?, 1)
		`, i*60, 100+float64(i))
		if err != nil {
			t.Fatalf("insert kline: %v", err)
		}
	}

	start, err := s.LatestKlineStart(ctx, "PERP_BTC_USDT")
	if err != nil || start != 120 {
		t.Errorf("latest start = (%d, %v), want (120, nil)", start, err)
	}

	closes, err := s.RecentCloses(ctx, "PERP_BTC_USDT", 1, 2)
	if err != nil {
		t.Fatalf("RecentCloses: %v", err)
	}
	if len(closes) != 2 || closes[0] != 101 || closes[1] != 102 {
		t.Errorf("closes = %v, want [101 102]", closes)
	}

	klines, err := s.Klines(ctx, "PERP_BTC_USDT", 1, 10)
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(klines) != 3 || klines[0].StartTime != 0 || klines[2].Close != 102 {
		t.Errorf("klines = %+v", klines)
	}
}

func TestTimeframeGroupSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	groups := []strategy.GroupConfig{{
		ID:               "tfg-15m",
		Symbol:           "PERP_BTC_USDT",
		TimeframeMinutes: 15,
		RSI:              strategy.RSIConfig{Period: 14, Upper: 70, Lower: 30},
		Params:           strategy.Params{OrderQuantity: 100},
		IsActive:         true,
	}}
	if err := s.SyncTimeframeGroups(groups); err != nil {
		t.Fatalf("SyncTimeframeGroups: %v", err)
	}

	rows, err := s.TimeframeGroups(ctx)
	if err != nil {
		t.Fatalf("TimeframeGroups: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "tfg-15m" || !rows[0].IsActive {
		t.Fatalf("rows = %+v", rows)
	}

	// re-sync with a change upserts rather than duplicating
	groups[0].IsActive = false
	if err := s.SyncTimeframeGroups(groups); err != nil {
		t.Fatalf("re-sync: %v", err)
	}
	rows, _ = s.TimeframeGroups(ctx)
	if len(rows) != 1 || rows[0].IsActive {
		t.Errorf("upsert failed: %+v", rows)
	}
}

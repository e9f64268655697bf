package order

import (
	"context"
	"fmt"
	"sync"

	"woox-trader/internal/strategy"
	"woox-trader/pkg/exchange"
)

// MemoryStore keeps the whole aggregate graph in process memory. It backs
// paper trading runs and tests; lookups hand out the live objects, so
// mutations need no explicit write-back beyond the Update calls keeping the
// interface honest.
type MemoryStore struct {
	mu      sync.RWMutex
	algo    map[int64]*AlgoOrder
	orders  map[string]*Order
	byAlgo  map[int64]*Order
	groups  map[string]*OrderGroup
	ordered []*OrderGroup
	signals map[string]strategy.Signal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		algo:    make(map[int64]*AlgoOrder),
		orders:  make(map[string]*Order),
		byAlgo:  make(map[int64]*Order),
		groups:  make(map[string]*OrderGroup),
		signals: make(map[string]strategy.Signal),
	}
}

func (s *MemoryStore) SaveAlgoOrder(ctx context.Context, a *AlgoOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.algo[a.OrderID] = a
	return nil
}

func (s *MemoryStore) UpdateAlgoOrder(ctx context.Context, a *AlgoOrder) error {
	return s.SaveAlgoOrder(ctx, a)
}

func (s *MemoryStore) AlgoOrderByID(ctx context.Context, orderID int64) (*AlgoOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.algo[orderID], nil
}

func (s *MemoryStore) SaveOrder(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// same (entry, signal) pair uniqueness the sqlite schema enforces
	for _, prev := range s.orders {
		if prev.ID != o.ID && prev.Entry.OrderID == o.Entry.OrderID && prev.Signal.ID == o.Signal.ID {
			return fmt.Errorf("order %s: entry %d already recorded for signal %s", o.ID, o.Entry.OrderID, o.Signal.ID)
		}
	}
	s.orders[o.ID] = o
	s.reindexLocked(o)
	return nil
}

func (s *MemoryStore) UpdateOrder(ctx context.Context, o *Order) error {
	return s.SaveOrder(ctx, o)
}

// reindexLocked refreshes the algo-id index; the stop id only exists once
// the entry fills.
func (s *MemoryStore) reindexLocked(o *Order) {
	s.byAlgo[o.Entry.OrderID] = o
	if o.Stop != nil {
		s.byAlgo[o.Stop.OrderID] = o
	}
}

func (s *MemoryStore) OrderByAlgoOrderID(ctx context.Context, orderID int64) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byAlgo[orderID], nil
}

func (s *MemoryStore) PendingEntryOrdersForSide(ctx context.Context, side exchange.Side) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, o := range s.orders {
		if o.Entry.Status == exchange.StatusNew && !o.Entry.ReduceOnly && o.Entry.Side == side {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *MemoryStore) PendingStopOrdersForSide(ctx context.Context, side exchange.Side) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, o := range s.orders {
		if o.Stop != nil && o.Stop.Status == exchange.StatusNew && o.Stop.ReduceOnly && o.Stop.Side == side {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveGroup(ctx context.Context, g *OrderGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		s.ordered = append(s.ordered, g)
	}
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryStore) UpdateGroup(ctx context.Context, g *OrderGroup) error {
	return s.SaveGroup(ctx, g)
}

func (s *MemoryStore) AllGroups(ctx context.Context) ([]*OrderGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*OrderGroup, 0, len(s.ordered))
	for i := len(s.ordered) - 1; i >= 0; i-- {
		out = append(out, s.ordered[i])
	}
	return out, nil
}

func (s *MemoryStore) GroupByID(ctx context.Context, id string) (*OrderGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[id], nil
}

func (s *MemoryStore) GroupByOrderID(ctx context.Context, orderID int64) (*OrderGroup, error) {
	s.mu.RLock()
	o := s.byAlgo[orderID]
	s.mu.RUnlock()
	if o == nil {
		return nil, nil
	}
	return o.Group, nil
}

func (s *MemoryStore) GroupByStopOrderID(ctx context.Context, stopOrderID int64) (*OrderGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.ordered) - 1; i >= 0; i-- {
		g := s.ordered[i]
		if g.Stop != nil && g.Stop.OrderID == stopOrderID {
			return g, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) LatestGroupForSide(ctx context.Context, timeframeGroupID string, side exchange.Side) (*OrderGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.ordered) - 1; i >= 0; i-- {
		g := s.ordered[i]
		if g.TimeframeGroupID == timeframeGroupID && g.Side == side {
			return g, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CurrentActiveGroup(ctx context.Context, timeframeGroupID string) (*OrderGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.ordered) - 1; i >= 0; i-- {
		g := s.ordered[i]
		if g.TimeframeGroupID != timeframeGroupID {
			continue
		}
		if !g.hasFilledEntry() {
			continue
		}
		if g.IsClosed() {
			return nil, nil
		}
		return g, nil
	}
	return nil, nil
}

func (s *MemoryStore) SaveSignal(ctx context.Context, sig strategy.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[sig.ID] = sig
	return nil
}

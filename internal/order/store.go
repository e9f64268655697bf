package order

import (
	"context"

	"woox-trader/internal/strategy"
	"woox-trader/pkg/exchange"
)

// Store persists the order aggregate. Lookups return fully hydrated objects:
// a group carries its member orders, every member carries its back-pointer
// and algo order mirrors. Lookup misses return (nil, nil), not an error;
// unknown exchange ids are routine traffic on the status stream.
type Store interface {
	SaveAlgoOrder(ctx context.Context, a *AlgoOrder) error
	UpdateAlgoOrder(ctx context.Context, a *AlgoOrder) error
	AlgoOrderByID(ctx context.Context, orderID int64) (*AlgoOrder, error)

	SaveOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	// OrderByAlgoOrderID matches against both the entry and the stop id.
	OrderByAlgoOrderID(ctx context.Context, orderID int64) (*Order, error)
	// PendingEntryOrdersForSide returns orders whose entry is still NEW,
	// not reduce-only, on the given side.
	PendingEntryOrdersForSide(ctx context.Context, side exchange.Side) ([]*Order, error)
	// PendingStopOrdersForSide returns orders carrying a NEW reduce-only
	// stop on the given side.
	PendingStopOrdersForSide(ctx context.Context, side exchange.Side) ([]*Order, error)

	SaveGroup(ctx context.Context, g *OrderGroup) error
	// AllGroups returns every group, newest first.
	AllGroups(ctx context.Context) ([]*OrderGroup, error)
	UpdateGroup(ctx context.Context, g *OrderGroup) error
	GroupByID(ctx context.Context, id string) (*OrderGroup, error)
	GroupByOrderID(ctx context.Context, orderID int64) (*OrderGroup, error)
	GroupByStopOrderID(ctx context.Context, stopOrderID int64) (*OrderGroup, error)
	// LatestGroupForSide returns the most recently created group for the
	// side within the timeframe grouping, open or closed.
	LatestGroupForSide(ctx context.Context, timeframeGroupID string, side exchange.Side) (*OrderGroup, error)
	// CurrentActiveGroup returns the most recently created group within
	// the grouping that has a filled member, or nil if that group is
	// closed. Note the newest-with-a-fill group shadows older still-open
	// ones; closing it makes this lookup return nil even when an older
	// active group exists.
	CurrentActiveGroup(ctx context.Context, timeframeGroupID string) (*OrderGroup, error)

	SaveSignal(ctx context.Context, sig strategy.Signal) error
}

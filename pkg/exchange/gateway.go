package exchange

import "context"

// Gateway abstracts the exchange's algo order API.
type Gateway interface {
	SubmitEntryOrder(ctx context.Context, req OrderRequest) (OrderRef, error)
	SubmitStopOrder(ctx context.Context, req OrderRequest) (OrderRef, error)
	AmendOrder(ctx context.Context, orderID int64, amend AmendRequest) (OrderRef, error)
	CancelOrder(ctx context.Context, orderID int64) error
}

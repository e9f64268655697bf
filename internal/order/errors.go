package order

// ValidationError marks a rejected entity mutation. The mutation helpers on
// Order and OrderGroup validate on a copy and only commit clean state, so a
// returned ValidationError means nothing changed.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

const (
	ErrPendingOrderHasStop       = ValidationError("pending order cannot carry a stop order")
	ErrFilledOrderMissingStop    = ValidationError("filled order must carry a stop order")
	ErrStopSideEqualsOrderSide   = ValidationError("stop order side must oppose the entry side")
	ErrStopNotReduceOnly         = ValidationError("stop order must be reduce-only")
	ErrEntryReduceOnly           = ValidationError("entry order must not be reduce-only")
	ErrStopEqualsEntry           = ValidationError("stop order and entry order must differ")
	ErrSignalSideMismatch        = ValidationError("signal side must match the entry order side")
	ErrStopQuantityMismatch      = ValidationError("stop order quantity must match the entry quantity")
	ErrOrderAlreadyInGroup       = ValidationError("order already belongs to a group")
	ErrClosedOrderIntoGroup      = ValidationError("closed order cannot join a group")
	ErrGroupClosed               = ValidationError("group is closed")
	ErrGroupSideMismatch         = ValidationError("order side must match the group side")
	ErrPendingOrderAlreadyExists = ValidationError("group already has a pending order")
	ErrGroupStopSideSameAsGroup  = ValidationError("group stop side must oppose the group side")
	ErrGroupStopNotReduceOnly    = ValidationError("group stop must be reduce-only")
	ErrGroupStopQuantity         = ValidationError("group stop quantity must match the group quantity")
	ErrPendingGroupHasStop       = ValidationError("pending group cannot carry a stop order")
)

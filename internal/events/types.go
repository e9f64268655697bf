package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventKlineClosed      Event = "kline.closed"
	EventSignal           Event = "signal"
	EventOrderSubmitted   Event = "order.submitted"
	EventOrderAmended     Event = "order.amended"
	EventOrderCancelled   Event = "order.cancelled"
	EventOrderStatus      Event = "order.status"
	EventGroupOpened      Event = "group.opened"
	EventGroupStopUpdated Event = "group.stop_updated"
	EventGroupClosed      Event = "group.closed"
	EventGatewayError     Event = "gateway.error"
)

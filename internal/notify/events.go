package notify

// Operator alert event types. These are the values accepted in the
// notify.events config list.
const (
	EventExpirySweepFailed  = "expiry_sweep_failed"
	EventArchiveFailed      = "archive_failed"
	EventBusSubscribeFailed = "bus_subscribe_failed"
	EventStoreUnavailable   = "store_unavailable"
	EventBridgeDisconnected = "bridge_disconnected"
)

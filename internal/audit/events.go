package audit

// Event is the discriminator of one audit line. These names are a
// compatibility surface for downstream tooling; do not rename.
type Event string

const (
	EventBarReceived       Event = "bar_received"
	EventBarSkipped        Event = "bar_skipped"
	EventSignalGenerated   Event = "signal_generated"
	EventRiskBlock         Event = "risk_block"
	EventOrderPlaced       Event = "order_placed"
	EventBrokerError       Event = "broker_error"
	EventShutdown          Event = "shutdown"
	EventEmergencyShutdown Event = "emergency_shutdown"
)

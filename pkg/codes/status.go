package codes

// Session Status Codes
const (
	StatusInitializing = "initializing"
	StatusBinding      = "binding"
	StatusBound        = "bound"
	StatusUnbinding    = "unbinding"
	StatusUnbound      = "unbound"
	StatusShutdown     = "shutdown"
)

// Monitor Status Codes
const (
	MonitorPaused  = "paused"
	MonitorPlaying = "playing"
	MonitorStopped = "stopped"
)

// Bind Outcome Codes
const (
	BindSuccess            = "success"
	BindBadCredentials     = "bad_credentials"
	BindBadServiceType     = "bad_service_type"
	BindFailed             = "bind_failed"
	BindNoResponse         = "no_response"
	BindTransportException = "transport_exception"
)

// Message Direction Tags
const (
	DirectionIn           = "IN"
	DirectionOut          = "OUT"
	DirectionInPart       = "IN_PART"
	DirectionInAssembled  = "IN_ASSEMBLED"
	DirectionInIncomplete = "IN_INCOMPLETE"
	DirectionReceipt      = "DR"
)

// Concatenation modes for outbound text.
const (
	ConcatNone          = "NONE"
	ConcatHeader        = "HEADER"
	ConcatSegmentTLV    = "SEGMENT_TLV"
	ConcatPayload       = "PAYLOAD"
	ConcatHeaderPayload = "HEADER_PAYLOAD"
)

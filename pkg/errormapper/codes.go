package errormapper

const (
	// Request failures
	ErrorCodeNotFound     = "NOT_FOUND"
	ErrorCodeInvalidInput = "INVALID_INPUT"
	ErrorCodeNotBound     = "NOT_BOUND"
	ErrorCodeTimeout      = "TIMEOUT"

	// Message content failures
	ErrorCodeInvalidSegment = "INVALID_SEGMENT"
	ErrorCodeInvalidMsgLen  = "INVALID_MSG_LEN"

	// System Errors
	ErrorCodeSystemError = "SYS_ERR"
	ErrorCodeStoreError  = "STORE_ERR"
	ErrorCodeConfigError = "CONFIG_ERR"

	// Delivery receipt states
	StatusCodeDelivered     = "DELIVRD"
	StatusCodeAccepted      = "ACCEPTD"
	StatusCodeUnknown       = "UNKNOWN"
	StatusCodeRejected      = "REJECTD"
	StatusCodeExpired       = "EXPIRED"
	StatusCodeUndeliverable = "UNDELIV"
)

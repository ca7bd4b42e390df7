package errormapper

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/pkg/codes"
)

var internalToSMPP = map[string]string{
	"INVALID_SEGMENT": "001", // Invalid Message Length
	"INVALID_MSG_LEN": "001",
	"NOT_BOUND":       "004", // Incorrect BIND status
	"SYS_ERR":         "008",
	"STORE_ERR":       "008",
	"DELIVRD":         "000",
}

var internalToHTTP = map[string]int{
	"NOT_FOUND":     http.StatusNotFound,
	"INVALID_INPUT": http.StatusBadRequest,
	"NOT_BOUND":     http.StatusServiceUnavailable,
	"TIMEOUT":       http.StatusGatewayTimeout,
	"SYS_ERR":       http.StatusInternalServerError,
	"STORE_ERR":     http.StatusInternalServerError,
	"CONFIG_ERR":    http.StatusInternalServerError,
}

// MapErrorCode translates internal codes to the three digit SMPP error
// field used in delivery receipts.
func MapErrorCode(internalCode string) string {
	internalCode = strings.ToUpper(internalCode)
	if mapped, ok := internalToSMPP[internalCode]; ok {
		return mapped
	}
	slog.Debug("No specific mapping found for error code, returning default",
		slog.String("internal_code", internalCode),
		slog.String("default_code", "008"),
	)
	return "008"
}

// HTTPStatus returns the HTTP status for an internal code, 500 when unknown.
func HTTPStatus(internalCode string) int {
	if s, ok := internalToHTTP[strings.ToUpper(internalCode)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// BindOutcome classifies a bind response command_status.
func BindOutcome(status uint32) string {
	switch status {
	case smpp.StatusOk:
		return codes.BindSuccess
	case smpp.StatusInvPasswd, smpp.StatusInvSysID:
		return codes.BindBadCredentials
	case smpp.StatusInvSysTyp:
		return codes.BindBadServiceType
	default:
		return codes.BindFailed
	}
}

// BindStatus is the command_status an SMSC answers for a bind outcome.
func BindStatus(outcome string) uint32 {
	switch outcome {
	case codes.BindSuccess:
		return smpp.StatusOk
	case codes.BindBadCredentials:
		return smpp.StatusInvPasswd
	case codes.BindBadServiceType:
		return smpp.StatusInvSysTyp
	default:
		return smpp.StatusBindFailed
	}
}

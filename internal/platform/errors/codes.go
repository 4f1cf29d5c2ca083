// Package errors provides structured error handling for Initiative Watch.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Transport taxonomy codes. Dispatch fallback classification keys on these
	// when a response body carries no more specific code.
	CodeNetworkFailure   Code = "NETWORK_FAILURE"
	CodeServerFailure    Code = "SERVER_FAILURE"
	CodeRoutingFailure   Code = "ROUTING_FAILURE"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeInvalidRequest   Code = "INVALID_REQUEST"

	// Session errors
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeSessionClosed   Code = "SESSION_CLOSED"

	// Roster errors
	CodeActorNotFound    Code = "ACTOR_NOT_FOUND"
	CodeActorInvalidKind Code = "ACTOR_INVALID_KIND"
	CodeInvalidHP        Code = "INVALID_HP"

	// Encounter errors
	CodeEncounterInactive Code = "ENCOUNTER_INACTIVE"
	CodeEncounterActive   Code = "ENCOUNTER_ALREADY_ACTIVE"
	CodeInitiativeLocked  Code = "INITIATIVE_LOCKED"

	// Action errors
	CodeActionUnknown    Code = "ACTION_UNKNOWN"
	CodeActionInvalid    Code = "ACTION_INVALID_PAYLOAD"
	CodeGMRequired       Code = "GM_REQUIRED"
	CodeNothingToUndo    Code = "NOTHING_TO_UNDO"
	CodeEffectNotFound   Code = "EFFECT_NOT_FOUND"
	CodeInvalidRollScope Code = "INVALID_ROLL_SCOPE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps an error code to the HTTP status written on the wire.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSessionNotFound, CodeActorNotFound, CodeEffectNotFound,
		CodeActionUnknown, CodeNotFound, CodeRoutingFailure:
		return http.StatusNotFound
	case CodeGMRequired, CodePermissionDenied:
		return http.StatusForbidden
	case CodeActionInvalid, CodeInvalidHP, CodeInvalidRollScope,
		CodeActorInvalidKind, CodeInvalidRequest:
		return http.StatusUnprocessableEntity
	case CodeEncounterInactive, CodeEncounterActive, CodeInitiativeLocked,
		CodeNothingToUndo, CodeSessionClosed:
		return http.StatusConflict
	case CodeNetworkFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromHTTPStatus maps an HTTP status to the broad taxonomy code used when
// a response body carries no machine-readable code of its own.
func CodeFromHTTPStatus(status int) Code {
	switch {
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		return CodeRoutingFailure
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodePermissionDenied
	case status >= 500:
		return CodeServerFailure
	case status >= 400:
		return CodeInvalidRequest
	default:
		return CodeUnknown
	}
}

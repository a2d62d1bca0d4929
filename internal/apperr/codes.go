package apperr

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified failure.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeSessionIDRequired Code = "SESSION_ID_REQUIRED"
	CodeSessionIDMismatch Code = "SESSION_ID_MISMATCH"
	CodeEmptyText         Code = "SESSION_TEXT_EMPTY"

	// Protocol errors
	CodeInvalidMessage     Code = "INVALID_MESSAGE"
	CodeInvalidMessageType Code = "INVALID_MESSAGE_TYPE"

	// Lookup errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"

	// State errors
	CodeSessionCompleted Code = "SESSION_COMPLETED"
	CodeSessionConnected Code = "SESSION_ALREADY_CONNECTED"

	// Internal errors
	CodeInternal Code = "INTERNAL_SERVER_ERROR"
)

// Kind groups codes into the error taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindProtocol
	KindConflict
)

// Kind maps a code to its taxonomy bucket.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidation,
		CodeSessionIDRequired,
		CodeSessionIDMismatch,
		CodeEmptyText:
		return KindValidation
	case CodeInvalidMessage,
		CodeInvalidMessageType:
		return KindProtocol
	case CodeNotFound,
		CodeSessionNotFound:
		return KindNotFound
	case CodeSessionCompleted,
		CodeSessionConnected:
		return KindConflict
	default:
		return KindInternal
	}
}

// HTTPStatus maps a code to the status carried by HTTP responses and stream error events.
func (c Code) HTTPStatus() int {
	switch c.Kind() {
	case KindValidation, KindProtocol:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

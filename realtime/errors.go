package realtime

import (
	"errors"
	"fmt"
)

// ErrorCode is the wire code of a transcription-error.
type ErrorCode string

const (
	CodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
	CodeSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"
	CodeAccessDenied          ErrorCode = "ACCESS_DENIED"
	CodeAlreadyActive         ErrorCode = "ALREADY_ACTIVE"
	CodeNoActiveSession       ErrorCode = "NO_ACTIVE_SESSION"
	CodeSessionLoadFailed     ErrorCode = "SESSION_LOAD_FAILED"
	CodeChunkProcessingFailed ErrorCode = "CHUNK_PROCESSING_FAILED"
	CodeFlushFailed           ErrorCode = "FLUSH_FAILED"
)

var messages = map[ErrorCode]string{
	CodeInvalidRequest:        "Invalid request",
	CodeSessionNotFound:       "Session not found",
	CodeAccessDenied:          "Access denied",
	CodeAlreadyActive:         "Transcription already active on this connection",
	CodeNoActiveSession:       "No active transcription session",
	CodeSessionLoadFailed:     "Failed to start transcription",
	CodeChunkProcessingFailed: "Failed to process audio chunk",
	CodeFlushFailed:           "Failed to save transcript",
}

// Error is a protocol error. None of them end the connection.
type Error struct {
	Code    ErrorCode
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports failures of a collaborator rather than of the request.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeSessionLoadFailed, CodeChunkProcessingFailed, CodeFlushFailed:
		return true
	}
	return false
}

// Payload converts e to its wire form.
func (e *Error) Payload() ErrorPayload {
	return ErrorPayload{Error: e.Message, Code: e.Code, Details: e.Details}
}

// NewError creates an Error with the default message for code.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Message: messages[code]}
}

// InvalidRequest creates an INVALID_REQUEST error with a specific message.
func InvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

func (e *Error) withCause(err error, details any) *Error {
	e.Cause = err
	e.Details = details
	return e
}

// CodeOf returns the protocol code of err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

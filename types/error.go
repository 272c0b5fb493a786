package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the council.
type ErrorCode string

// Request / upstream error codes
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrAuthentication      ErrorCode = "AUTHENTICATION"
	ErrForbidden           ErrorCode = "FORBIDDEN"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrModelNotFound       ErrorCode = "MODEL_NOT_FOUND"
	ErrContentFiltered     ErrorCode = "CONTENT_FILTERED"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
)

// Gateway error codes
const (
	ErrCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	ErrAllModelsExhausted ErrorCode = "ALL_MODELS_EXHAUSTED"
)

// Agent / session error codes
const (
	ErrAgentNotFound            ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentUnavailable         ErrorCode = "AGENT_UNAVAILABLE"
	ErrAgentTimeout             ErrorCode = "AGENT_TIMEOUT"
	ErrProfileLoad              ErrorCode = "PROFILE_LOAD"
	ErrInsufficientParticipants ErrorCode = "INSUFFICIENT_PARTICIPANTS"
	ErrSessionTimeout           ErrorCode = "SESSION_TIMEOUT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError unwraps err looking for a *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error (or anything it wraps) is a retryable *Error.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// --- 常用错误构造 ---

// NewInvalidRequestError 参数错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewAgentNotFoundError 未知 Agent
func NewAgentNotFoundError(agentID string) *Error {
	return NewError(ErrAgentNotFound, fmt.Sprintf("agent %q not found", agentID)).
		WithHTTPStatus(http.StatusNotFound)
}

// NewAgentUnavailableError Agent 离线或正忙
func NewAgentUnavailableError(agentID, status string) *Error {
	return NewError(ErrAgentUnavailable, fmt.Sprintf("agent %q is %s", agentID, status)).
		WithHTTPStatus(http.StatusConflict)
}

// NewInsufficientParticipantsError 参与者不足
func NewInsufficientParticipantsError(have, need int) *Error {
	return NewError(ErrInsufficientParticipants,
		fmt.Sprintf("need at least %d participants, have %d", need, have)).
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

// NewSessionTimeoutError 会话总超时且无可用的部分结果
func NewSessionTimeoutError(message string) *Error {
	return NewError(ErrSessionTimeout, message).WithHTTPStatus(http.StatusGatewayTimeout)
}

// NewAgentTimeoutError 单个 Agent 调用超时
func NewAgentTimeoutError(agentID string, cause error) *Error {
	return NewError(ErrAgentTimeout, fmt.Sprintf("agent %q timed out", agentID)).
		WithHTTPStatus(http.StatusGatewayTimeout).
		WithCause(cause)
}

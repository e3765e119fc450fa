package rpc

import (
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// Provider error codes reported to applications.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
)

// Connectivity codes carried by disconnect errors.
const (
	// CodeConnectionLost marks a non-recoverable disconnect.
	CodeConnectionLost = 1011
	// CodeTryAgainLater marks a recoverable disconnect.
	CodeTryAgainLater = 1013
)

var defaultMessages = map[int]string{
	CodeParseError:        "Invalid JSON was received by the server.",
	CodeInvalidRequest:    "The JSON sent is not a valid Request object.",
	CodeMethodNotFound:    "The method does not exist / is not available.",
	CodeInvalidParams:     "Invalid method parameter(s).",
	CodeInternal:          "Internal JSON-RPC error.",
	CodeUserRejected:      "User rejected the request.",
	CodeUnauthorized:      "The requested account and/or method has not been authorized by the user.",
	CodeUnsupportedMethod: "The requested method is not supported by this provider.",
	CodeDisconnected:      "The provider is disconnected from all chains.",
	CodeChainDisconnected: "The provider is disconnected from the specified chain.",
	CodeConnectionLost:    "Disconnected from the wallet. Page reload required.",
	CodeTryAgainLater:     "Disconnected from the wallet. Attempting to connect again.",
}

var (
	// ErrNilRequest is returned when a nil request is dispatched.
	ErrNilRequest = errors.New("nil request")
	// ErrEmptyBatch is returned when a batch contains no requests.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrNotHandled is wrapped by the internal error returned when no handler settled a request.
	ErrNotHandled = errors.New("request was not handled by any middleware")
	// ErrConnectionClosed fails requests whose stream ended before a response arrived.
	ErrConnectionClosed = errors.New("connection closed before a response was received")
	// ErrNotConnected is returned when a stream connection is used before Serve.
	ErrNotConnected = errors.New("stream connection is not serving")
	// ErrMissingID is returned when a request forwarded over a stream has no id.
	ErrMissingID = errors.New("request id is required")
	// ErrDuplicateID is returned when a request id is already awaiting a response.
	ErrDuplicateID = errors.New("request id is already pending")
)

// Error is a JSON-RPC error object. It implements error so that it can travel
// through ordinary Go error returns and be recovered with errors.As.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	cause error
}

// NewError creates an Error. An empty message is replaced by the default
// message for code, if one is known.
func NewError(code int, message string, data any) *Error {
	if message == "" {
		message = defaultMessages[code]
	}
	return &Error{Code: code, Message: message, Data: data}
}

// NewInvalidRequestError reports a malformed request; data carries the offending payload.
func NewInvalidRequestError(message string, data any) *Error {
	return NewError(CodeInvalidRequest, message, data)
}

// NewMethodNotFoundError reports an unknown method.
func NewMethodNotFoundError(method string) *Error {
	return NewError(CodeMethodNotFound, fmt.Sprintf("The method %q does not exist / is not available.", method), nil)
}

// NewInternalError wraps cause as an internal error. The cause stays
// reachable through errors.Is and errors.As.
func NewInternalError(cause error) *Error {
	e := NewError(CodeInternal, "", nil)
	if cause != nil {
		e.Message = cause.Error()
		e.cause = cause
	}
	return e
}

// NewProviderError creates an error with one of the provider codes.
func NewProviderError(code int, message string) *Error {
	return NewError(code, message, nil)
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// AsError converts err into an Error. Errors that already are (or wrap) an
// Error are returned as such; anything else becomes an internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewInternalError(err)
}

package rpc

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
)

// Version is the only JSON-RPC protocol version spoken by this package.
const Version = "2.0"

// Request is a JSON-RPC 2.0 request object.
//
// ID holds the raw JSON id (a number or a string). Params, when present, is a
// JSON array or object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response object. Exactly one of Result and
// Error is set on a settled response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Settled reports whether the response carries a result or an error.
func (r *Response) Settled() bool {
	return r.Error != nil || len(r.Result) > 0
}

// Notification is an unsolicited JSON-RPC message pushed by the remote peer.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewID returns a fresh numeric request id.
func NewID() json.RawMessage {
	return strconv.AppendUint(nil, uint64(uuid.New().ID()), 10)
}

// Params marshals v for use as Request.Params.
func Params(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

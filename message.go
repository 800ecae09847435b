package tether

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message is a JSON-RPC 2.0 envelope. A message with an ID and a Method is a
// request; Method without an ID is a notification; Result or Error with an ID
// is a response.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsResponse reports whether the message carries a result or error for an
// outstanding call.
func (m Message) IsResponse() bool {
	return m.ID != nil && m.Method == "" && (m.Result != nil || m.Error != nil)
}

// IsNotification reports whether the message is a server-initiated
// notification (a method call with no id).
func (m Message) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// NewRequest builds a request envelope.
func NewRequest(id RequestID, method string, params json.RawMessage) Message {
	return Message{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
}

// NewNotification builds a notification envelope.
func NewNotification(method string, params json.RawMessage) Message {
	return Message{JSONRPC: "2.0", Method: method, Params: params}
}

// RPCError is the JSON-RPC error object of a response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RequestID is a JSON-RPC id. The client issues numeric ids, but servers may
// echo ids back as numbers or strings; both forms round-trip unchanged and
// compare through Key. The zero value is not a valid id.
type RequestID struct {
	raw json.RawMessage
}

// NewRequestID returns a numeric id.
func NewRequestID(n int64) RequestID {
	return RequestID{raw: json.RawMessage(fmt.Sprintf("%d", n))}
}

// StringRequestID returns a string id.
func StringRequestID(s string) RequestID {
	b, _ := json.Marshal(s)
	return RequestID{raw: b}
}

// Key returns a stable map key for the id. Numbers and strings never collide:
// a string id keeps its quotes in the key.
func (id RequestID) Key() string { return string(id.raw) }

// IsZero reports whether the id is unset.
func (id RequestID) IsZero() bool { return len(id.raw) == 0 }

// MarshalJSON implements json.Marshaler.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if len(id.raw) == 0 {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler. Only numbers and strings are
// accepted; the JSON-RPC spec permits no other id types.
func (id *RequestID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		id.raw = nil
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("request id must be a number or string: %w", err)
		}
	}
	id.raw = append(json.RawMessage(nil), b...)
	return nil
}

package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the JSON-RPC version string carried by every message.
const Version = "2.0"

// ID is a normalized JSON-RPC request identifier. Agents are allowed to echo
// ids back as either numbers or strings; both forms decode into the same
// int64 value so map lookups never miss on a type mismatch.
type ID int64

// UnmarshalJSON accepts both numeric and string-typed ids.
func (id *ID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid request id %s", string(data))
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request id %q: %w", s, err)
	}
	*id = ID(n)
	return nil
}

// MarshalJSON always emits the numeric form.
func (id ID) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(id), 10), nil
}

// Message is the JSON-RPC 2.0 envelope. Requests, responses, and
// notifications all share this shape; Kind tells them apart.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object. The remote payload is carried
// verbatim, including any data attachment.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Kind classifies a message for dispatch.
type Kind int

const (
	// KindInvalid marks a message that fits none of the three shapes.
	KindInvalid Kind = iota

	// KindResponse carries an id and either result or error.
	KindResponse

	// KindRequest carries a method and an id: the agent is asking the host
	// to do something and is blocked until it gets a response.
	KindRequest

	// KindNotification carries a method with no id.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Kind classifies the message. The order matters: a message with an id and a
// result or error is a response even if it also carries a method, so a
// misbehaving agent cannot trick the dispatcher into dropping a pending
// request resolution.
func (m *Message) Kind() Kind {
	switch {
	case m.ID != nil && (len(m.Result) > 0 || m.Error != nil):
		return KindResponse
	case m.Method != "" && m.ID != nil:
		return KindRequest
	case m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// NewRequest builds a request message with the given id.
func NewRequest(id int64, method string, params interface{}) (*Message, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	wid := ID(id)
	return &Message{JSONRPC: Version, ID: &wid, Method: method, Params: data}, nil
}

// NewNotification builds a notification message (no id, no response expected).
func NewNotification(method string, params interface{}) (*Message, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: Version, Method: method, Params: data}, nil
}

// NewResponse builds a success response for the given request id.
func NewResponse(id int64, result interface{}) (*Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	wid := ID(id)
	return &Message{JSONRPC: Version, ID: &wid, Result: data}, nil
}

// NewErrorResponse builds an error response for the given request id.
func NewErrorResponse(id int64, code int, message string) *Message {
	wid := ID(id)
	return &Message{
		JSONRPC: Version,
		ID:      &wid,
		Error:   &Error{Code: code, Message: message},
	}
}

// Decode parses one raw message off the wire.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

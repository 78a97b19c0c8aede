package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for bridge misuse.
var (
	// ErrAgentStopping is returned when new work is queued for an agent that
	// is shutting down.
	ErrAgentStopping = errors.New("agent is stopping")

	// ErrTurnInFlight is returned when a session already has an unanswered
	// user message.
	ErrTurnInFlight = errors.New("session already has a turn in flight")

	// ErrSessionClosed is returned when a thread's session is closed while
	// its creation handshake is still in flight.
	ErrSessionClosed = errors.New("session closed while being created")
)

// TransportError reports that a message could not be delivered to, or
// answered by, the agent subprocess: the process is not running, the write
// failed, or the request deadline expired. It never corrupts other sessions.
type TransportError struct {
	AgentID string
	Op      string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport %s (agent=%s): %v", e.Op, e.AgentID, e.Cause)
	}
	return fmt.Sprintf("transport %s (agent=%s)", e.Op, e.AgentID)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// AuthRequiredError reports that session creation failed because the agent
// needs credentials. The UI should prompt for auth instead of showing a
// generic failure.
type AuthRequiredError struct {
	AgentID string
	Message string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("agent %s requires authentication: %s", e.AgentID, e.Message)
}

// ProtocolError carries a remote error response verbatim.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *ProtocolError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s failed: rpc error %d: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ToolExecutionError is raised by a ToolExecutor. The gate converts it into
// a tool-result message with isError=true; it is never surfaced to the
// bridge's caller, because the agent decides how to react to a failed tool.
type ToolExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

package wire

// Methods sent by the bridge.
const (
	MethodInitialize    = "initialize"
	MethodSessionNew    = "session/new"
	MethodSessionPrompt = "session/prompt"
	MethodSessionDelete = "session/delete"
	MethodSessionCancel = "session/cancel" // notification
	MethodToolResult    = "tools/result"   // notification, best-effort
)

// Methods received from the agent.
const (
	MethodSessionUpdate = "session/update" // notification
	MethodToolCall      = "tools/call"     // notification or request
)

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Protocol-specific error codes.
const (
	// ErrCodeAuthRequired signals the agent needs credentials before it can
	// create sessions. The bridge surfaces it as a distinct typed error so
	// the UI can prompt for auth instead of showing a generic failure.
	ErrCodeAuthRequired = -32000
)

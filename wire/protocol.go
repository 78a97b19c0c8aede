package wire

import "encoding/json"

// ProtocolVersion supported by this bridge.
const ProtocolVersion = 1

// --- Initialize ---

// InitializeParams is sent once per agent to establish the connection.
type InitializeParams struct {
	ProtocolVersion    int                 `json:"protocolVersion"`
	ClientInfo         *Implementation     `json:"clientInfo,omitempty"`
	ClientCapabilities *ClientCapabilities `json:"clientCapabilities,omitempty"`
}

// InitializeResult is returned by the agent with its identity.
type InitializeResult struct {
	ProtocolVersion int             `json:"protocolVersion"`
	AgentInfo       *Implementation `json:"agentInfo,omitempty"`
	AuthMethods     []AuthMethod    `json:"authMethods,omitempty"`
}

// Implementation identifies a client or agent.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ClientCapabilities advertises what the host supports.
type ClientCapabilities struct {
	Streaming bool `json:"streaming,omitempty"`
	Tools     bool `json:"tools,omitempty"`
}

// AuthMethod describes an authentication method offered by the agent.
type AuthMethod struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// --- Session ---

// NewSessionParams creates a conversation session.
type NewSessionParams struct {
	CWD   string          `json:"cwd"`
	Model string          `json:"model,omitempty"`
	Tools []ToolDefinition `json:"tools"`
}

// ToolDefinition advertises one host tool to the agent.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// NewSessionResult returns the created session.
type NewSessionResult struct {
	SessionID string `json:"sessionId"`
	ModelInfo string `json:"modelInfo,omitempty"`
}

// DeleteSessionParams tears down a session on the agent side.
type DeleteSessionParams struct {
	SessionID string `json:"sessionId"`
}

// CancelParams asks the agent to stop the current turn.
type CancelParams struct {
	SessionID string `json:"sessionId"`
}

// --- Prompt ---

// PromptParams sends a user message to the agent.
type PromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// PromptResult indicates the prompt turn has completed. OutputText, when
// present, is the authoritative final text; otherwise the text streamed via
// session/update chunks stands.
type PromptResult struct {
	StopReason string `json:"stopReason,omitempty"` // "endTurn", "cancelled", "error"
	OutputText string `json:"outputText,omitempty"`
}

// ContentBlock is typed content in prompts, messages, and tool results.
type ContentBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text,omitempty"`
}

// NewTextContent creates a text content block.
func NewTextContent(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// --- Tool calls ---

// ToolCallParams is the payload of a tools/call message from the agent.
type ToolCallParams struct {
	SessionID  string                 `json:"sessionId"`
	ToolCallID string                 `json:"toolCallId"`
	ToolName   string                 `json:"toolName"`
	Input      map[string]interface{} `json:"input,omitempty"`
}

// ToolResultParams answers one tool call. Exactly one is sent per
// toolCallId; the agent blocks until it arrives.
type ToolResultParams struct {
	ToolCallID string         `json:"toolCallId"`
	Content    []ContentBlock `json:"content"`
	IsError    bool           `json:"isError"`
}

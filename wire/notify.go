package wire

import "encoding/json"

// UpdateKind enumerates the session/update notification kinds the bridge
// understands.
type UpdateKind int

const (
	// UpdateUnknown is any kind this bridge does not recognize. The raw tag
	// is preserved for logging; the update is otherwise ignored.
	UpdateUnknown UpdateKind = iota

	// UpdateMessageChunk streams an incremental piece of the agent's answer.
	UpdateMessageChunk

	// UpdateTurnComplete ends the current turn. Arrives independently of the
	// correlated prompt response and may beat it or lose to it.
	UpdateTurnComplete

	// UpdateError terminates the current turn with an error.
	UpdateError
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateMessageChunk:
		return "agent_message_chunk"
	case UpdateTurnComplete:
		return "turn_complete"
	case UpdateError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionUpdate is a decoded session/update notification.
type SessionUpdate struct {
	SessionID string
	Kind      UpdateKind
	RawKind   string // wire tag, kept for logging unknown kinds

	// UpdateMessageChunk
	Text string

	// UpdateTurnComplete
	StopReason string
	OutputText string

	// UpdateError
	ErrorMessage string
}

// sessionUpdateWire is the raw shape of session/update params. The
// discriminator field is "sessionUpdate", matching what ACP-style agents
// emit.
type sessionUpdateWire struct {
	SessionID string `json:"sessionId"`
	Update    struct {
		Kind       string        `json:"sessionUpdate"`
		Content    *ContentBlock `json:"content,omitempty"`
		StopReason string        `json:"stopReason,omitempty"`
		OutputText string        `json:"outputText,omitempty"`
		Message    string        `json:"message,omitempty"`
	} `json:"update"`
}

// DecodeSessionUpdate parses the params of a session/update notification
// into the tagged union. Unrecognized kinds decode successfully as
// UpdateUnknown so the dispatcher can log them.
func DecodeSessionUpdate(params json.RawMessage) (*SessionUpdate, error) {
	var raw sessionUpdateWire
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, err
	}

	u := &SessionUpdate{
		SessionID: raw.SessionID,
		RawKind:   raw.Update.Kind,
	}

	switch raw.Update.Kind {
	case "agent_message_chunk":
		u.Kind = UpdateMessageChunk
		if raw.Update.Content != nil && raw.Update.Content.Type == "text" {
			u.Text = raw.Update.Content.Text
		}
	case "turn_complete":
		u.Kind = UpdateTurnComplete
		u.StopReason = raw.Update.StopReason
		u.OutputText = raw.Update.OutputText
	case "error":
		u.Kind = UpdateError
		u.ErrorMessage = raw.Update.Message
	default:
		u.Kind = UpdateUnknown
	}

	return u, nil
}

package wire

import (
	"encoding/json"
	"testing"
)

func TestDecodeSessionUpdate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want SessionUpdate
	}{
		{
			name: "message chunk",
			raw: `{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk",
				"content":{"type":"text","text":"Here are"}}}`,
			want: SessionUpdate{SessionID: "s1", Kind: UpdateMessageChunk, RawKind: "agent_message_chunk", Text: "Here are"},
		},
		{
			name: "chunk with non text content",
			raw: `{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk",
				"content":{"type":"image"}}}`,
			want: SessionUpdate{SessionID: "s1", Kind: UpdateMessageChunk, RawKind: "agent_message_chunk"},
		},
		{
			name: "turn complete",
			raw: `{"sessionId":"s2","update":{"sessionUpdate":"turn_complete",
				"stopReason":"endTurn","outputText":"done"}}`,
			want: SessionUpdate{SessionID: "s2", Kind: UpdateTurnComplete, RawKind: "turn_complete", StopReason: "endTurn", OutputText: "done"},
		},
		{
			name: "error",
			raw:  `{"sessionId":"s3","update":{"sessionUpdate":"error","message":"model overloaded"}}`,
			want: SessionUpdate{SessionID: "s3", Kind: UpdateError, RawKind: "error", ErrorMessage: "model overloaded"},
		},
		{
			// Future kinds decode cleanly as unknown; the raw tag survives so
			// the dispatcher can log it.
			name: "unrecognized kind",
			raw:  `{"sessionId":"s4","update":{"sessionUpdate":"thought_chunk","content":{"type":"text","text":"hmm"}}}`,
			want: SessionUpdate{SessionID: "s4", Kind: UpdateUnknown, RawKind: "thought_chunk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSessionUpdate(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestDecodeSessionUpdateMalformed(t *testing.T) {
	if _, err := DecodeSessionUpdate(json.RawMessage(`[1,2]`)); err == nil {
		t.Fatal("expected error for array params")
	}
}

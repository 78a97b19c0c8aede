package bridge

import "context"

// ApprovalPolicy controls whether tool calls need the approval callback.
type ApprovalPolicy string

const (
	// ApprovalAsk routes every tool call through OnToolApproval.
	ApprovalAsk ApprovalPolicy = "ask"

	// ApprovalAuto executes tool calls without asking.
	ApprovalAuto ApprovalPolicy = "auto"
)

// TurnCallbacks is how the UI observes a turn. All fields are optional; nil
// callbacks are skipped. Once a turn completes (success, error, or
// cancellation) no further callback fires for it.
type TurnCallbacks struct {
	// OnChunk receives each incremental streamed text delta, never
	// previously emitted text.
	OnChunk func(text string)

	// OnComplete receives the final answer text exactly once.
	OnComplete func(finalText string)

	// OnError receives the turn-terminating error message exactly once.
	OnError func(message string)

	OnToolStart    func(toolCallID, toolName string, input map[string]interface{})
	OnToolComplete func(toolCallID, toolName, output string)
	OnToolRejected func(toolCallID, toolName string)
	OnToolError    func(toolCallID, toolName, message string)

	// OnToolApproval decides whether a tool call may execute. Only consulted
	// when the turn's policy is ApprovalAsk. An error counts as rejection.
	OnToolApproval func(ctx context.Context, toolName string, input map[string]interface{}) (bool, error)
}

// ExecContext bounds what a tool execution may see.
type ExecContext struct {
	WorkspaceRoot string
	ActiveFile    string
	OpenFiles     []string
}

// ToolExecutor runs host tools on behalf of the agent. Implementations live
// outside the bridge; failures should be returned as (or wrapped in)
// ToolExecutionError.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, input map[string]interface{}, execCtx ExecContext) (string, error)
}

// TurnOptions configures one ProcessMessage call.
type TurnOptions struct {
	Policy    ApprovalPolicy
	Context   ExecContext
	Callbacks TurnCallbacks
}

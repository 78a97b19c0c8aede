package bridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/codetide/agent-bridge/wire"
)

// toolGate intercepts tool invocations from the agent, runs them through the
// approval gate and the executor, and answers each toolCallId with exactly
// one tools/result message. The remote agent blocks on that message, so
// every path through handle terminates in exactly one send.
type toolGate struct {
	rpc     *correlator
	exec    ToolExecutor
	log     *slog.Logger
	metrics *bridgeMetrics
}

func newToolGate(rpc *correlator, exec ToolExecutor, log *slog.Logger, metrics *bridgeMetrics) *toolGate {
	return &toolGate{rpc: rpc, exec: exec, log: log, metrics: metrics}
}

// handle processes one tool invocation attributed to an inflight turn.
// Runs on its own goroutine: approval can block on a human, and the inbound
// dispatcher must keep draining other agents' messages meanwhile.
func (g *toolGate) handle(ctx context.Context, agentID string, turn *inflightTurn, call *wire.ToolCallParams) {
	turn.toolStart(call.ToolCallID, call.ToolName, call.Input)

	approved := turn.policy == ApprovalAuto
	if !approved {
		ok, err := turn.approve(ctx, call.ToolName, call.Input)
		if err != nil {
			g.log.Warn("tool approval callback failed", "tool", call.ToolName, "error", err)
		}
		approved = ok && err == nil
	}

	if !approved {
		turn.toolRejected(call.ToolCallID, call.ToolName)
		g.metrics.toolCalls.WithLabelValues("rejected").Inc()
		// Rejection is a normal negative outcome the agent must be able to
		// react to, not a transport error.
		g.sendResult(agentID, call.ToolCallID, "Tool call was rejected by the user.", false)
		return
	}

	output, err := g.execute(ctx, call, turn.execCtx)
	if err != nil {
		turn.toolError(call.ToolCallID, call.ToolName, err.Error())
		g.metrics.toolCalls.WithLabelValues("errored").Inc()
		g.sendResult(agentID, call.ToolCallID, err.Error(), true)
		return
	}

	turn.toolComplete(call.ToolCallID, call.ToolName, output)
	g.metrics.toolCalls.WithLabelValues("completed").Inc()
	g.sendResult(agentID, call.ToolCallID, output, false)
}

// handleOrphan answers a tool call that no inflight turn claims (the turn
// was cancelled or never existed). No callbacks fire, but the toolCallId
// still gets its one result so the agent cannot hang on it.
func (g *toolGate) handleOrphan(agentID string, call *wire.ToolCallParams) {
	g.log.Debug("tool call with no inflight turn", "agent", agentID, "tool", call.ToolName, "toolCall", call.ToolCallID)
	g.sendResult(agentID, call.ToolCallID, "no active turn for this session", true)
}

func (g *toolGate) execute(ctx context.Context, call *wire.ToolCallParams, execCtx ExecContext) (string, error) {
	if g.exec == nil {
		return "", &ToolExecutionError{ToolName: call.ToolName, Cause: errNoExecutor}
	}
	return g.exec.Execute(ctx, call.ToolName, call.Input, execCtx)
}

// sendResult delivers the tools/result message. Best-effort: the protocol
// has no redelivery, so a failed write is logged and not retried.
func (g *toolGate) sendResult(agentID, toolCallID, text string, isError bool) {
	params := wire.ToolResultParams{
		ToolCallID: toolCallID,
		Content:    []wire.ContentBlock{wire.NewTextContent(text)},
		IsError:    isError,
	}
	if err := g.rpc.notify(agentID, wire.MethodToolResult, params); err != nil {
		g.log.Warn("tool result send failed", "agent", agentID, "toolCall", toolCallID, "error", err)
	}
}

var errNoExecutor = errors.New("no tool executor configured")

package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/codetide/agent-bridge/transport"
	"github.com/codetide/agent-bridge/wire"
)

// Bridge is the single long-lived object the rest of the application talks
// to. It owns the session registry and the inflight-turn tracker, shares
// one correlator (global id space) across all agents, and is the sole
// consumer of the transport's inbound event stream.
//
// Construct one Bridge at process start and pass it around explicitly; it
// is plain enough to fake in tests by injecting a Transport and feeding
// Dispatch by hand.
type Bridge struct {
	cfg     Config
	tr      transport.Transport
	rpc     *correlator
	session *sessionRegistry
	turns   *turnTracker
	gate    *toolGate
	log     *slog.Logger
	metrics *bridgeMetrics

	mu       sync.Mutex
	agents   map[string]*Agent
	inits    map[string]*initState
	stopping map[string]bool
}

// initState makes InitializeAgent idempotent: the first caller does the
// work, later callers wait on done and share the outcome.
type initState struct {
	done chan struct{}
	err  error
}

// New creates a Bridge executing tools through exec. With no WithTransport
// option it spawns agents itself over stdio.
func New(exec ToolExecutor, opts ...Option) *Bridge {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	b := &Bridge{
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  defaultMetrics,
		turns:    newTurnTracker(),
		agents:   make(map[string]*Agent),
		inits:    make(map[string]*initState),
		stopping: make(map[string]bool),
	}

	b.tr = cfg.Transport
	if b.tr == nil {
		b.tr = transport.NewStdio(b.Dispatch, transport.WithLogger(cfg.Logger))
	}

	b.rpc = newCorrelator(b.tr)
	b.session = newSessionRegistry(b.rpc, cfg.Logger, cfg.SessionTimeout)
	b.gate = newToolGate(b.rpc, exec, cfg.Logger, b.metrics)

	return b
}

// InitializeAgent starts the agent's subprocess and performs the initialize
// handshake. Idempotent: repeated calls (including concurrent ones) start
// the subprocess exactly once.
func (b *Bridge) InitializeAgent(ctx context.Context, agent *Agent) error {
	b.mu.Lock()
	if b.stopping[agent.ID] {
		b.mu.Unlock()
		return ErrAgentStopping
	}
	b.agents[agent.ID] = agent

	if st, ok := b.inits[agent.ID]; ok {
		b.mu.Unlock()
		select {
		case <-st.done:
			return st.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	st := &initState{done: make(chan struct{})}
	b.inits[agent.ID] = st
	b.mu.Unlock()

	st.err = b.initializeAgent(ctx, agent)
	close(st.done)

	if st.err != nil {
		// Drop the state so a later call can retry from scratch.
		b.mu.Lock()
		delete(b.inits, agent.ID)
		b.mu.Unlock()
	}
	return st.err
}

func (b *Bridge) initializeAgent(ctx context.Context, agent *Agent) error {
	agent.setStatus(StatusStarting, "")

	if err := b.tr.Start(ctx, agent.ID, agent.Command, agent.Args, agent.Env); err != nil {
		agent.setStatus(StatusError, err.Error())
		return &TransportError{AgentID: agent.ID, Op: "start", Cause: err}
	}

	params := wire.InitializeParams{
		ProtocolVersion: wire.ProtocolVersion,
		ClientInfo: &wire.Implementation{
			Name:    b.cfg.ClientName,
			Version: b.cfg.ClientVersion,
		},
		ClientCapabilities: &wire.ClientCapabilities{
			Streaming: true,
			Tools:     true,
		},
	}

	result, err := b.rpc.call(ctx, agent.ID, wire.MethodInitialize, params, b.cfg.InitializeTimeout)
	if err != nil {
		agent.setStatus(StatusError, err.Error())
		_ = b.tr.Stop(agent.ID)
		return err
	}

	var info wire.InitializeResult
	if jsonErr := json.Unmarshal(result, &info); jsonErr != nil {
		agent.setStatus(StatusError, jsonErr.Error())
		_ = b.tr.Stop(agent.ID)
		return &ProtocolError{Method: wire.MethodInitialize, Code: wire.ErrCodeParseError, Message: "malformed initialize result: " + jsonErr.Error()}
	}

	agent.setStatus(StatusReady, "")
	name := ""
	if info.AgentInfo != nil {
		name = info.AgentInfo.Name
	}
	b.log.Info("agent initialized", "agent", agent.ID, "remote", name)
	return nil
}

// ProcessMessage sends one user message through the agent and returns once
// the turn completes, succeeds or fails. All UI flow happens through the
// callbacks in opts; turn-level failures are reported via OnError, not the
// return value. The returned error covers only pre-turn failures: transport,
// initialization, session creation, or a turn already in flight.
func (b *Bridge) ProcessMessage(ctx context.Context, threadID string, agent *Agent, userText string, opts TurnOptions) error {
	if opts.Policy == "" {
		opts.Policy = ApprovalAsk
	}

	b.mu.Lock()
	if b.stopping[agent.ID] {
		b.mu.Unlock()
		return ErrAgentStopping
	}
	b.mu.Unlock()

	if err := b.InitializeAgent(ctx, agent); err != nil {
		return err
	}

	sess, err := b.session.ensureSession(ctx, threadID, agent, opts.Context)
	if err != nil {
		return err
	}

	turn := newInflightTurn(sess.ID, threadID, agent.ID, opts)
	if err := b.turns.begin(turn); err != nil {
		return err
	}
	defer b.turns.removeIf(sess.ID, turn)

	params, err := json.Marshal(wire.PromptParams{
		SessionID: sess.ID,
		Prompt:    []wire.ContentBlock{wire.NewTextContent(userText)},
	})
	if err != nil {
		return err
	}
	msg := &wire.Message{JSONRPC: wire.Version, Method: wire.MethodSessionPrompt, Params: params}

	id, ch, err := b.rpc.send(agent.ID, msg, true)
	if err != nil {
		return err
	}
	b.metrics.turnsStarted.Inc()

	var timeoutCh <-chan time.Time
	if b.cfg.PromptTimeout > 0 {
		timer := time.NewTimer(b.cfg.PromptTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case out := <-ch:
		if out.err != nil {
			b.failTurn(turn, out.err.Error())
			return nil
		}
		var pr wire.PromptResult
		if len(out.result) > 0 {
			if jsonErr := json.Unmarshal(out.result, &pr); jsonErr != nil {
				b.log.Warn("malformed prompt result", "agent", agent.ID, "error", jsonErr)
			}
		}
		b.completeTurn(turn, pr.OutputText)
		return nil

	case <-turn.done:
		// A turn_complete or error notification, or a cancellation, beat
		// the correlated response. Drop the pending entry; a late response
		// is then discarded as an unknown id.
		b.rpc.forget(id)
		return nil

	case <-timeoutCh:
		b.rpc.forget(id)
		b.cancelRemote(agent.ID, sess.ID)
		terr := &TransportError{AgentID: agent.ID, Op: "prompt timed out", Cause: context.DeadlineExceeded}
		b.failTurn(turn, terr.Error())
		return nil

	case <-ctx.Done():
		b.rpc.forget(id)
		b.cancelRemote(agent.ID, sess.ID)
		b.failTurn(turn, ctx.Err().Error())
		return ctx.Err()
	}
}

// StopAgent cancels all of the agent's inflight turns, rejects its pending
// requests, stops the subprocess, and resets the agent to idle. Safe to
// call for an agent that was never started. While a stop is underway no new
// request can be sent to the agent.
func (b *Bridge) StopAgent(agentID string) error {
	b.mu.Lock()
	if b.stopping[agentID] {
		b.mu.Unlock()
		return nil
	}
	b.stopping[agentID] = true
	agent := b.agents[agentID]
	b.mu.Unlock()

	b.rpc.block(agentID)

	cancelled := b.turns.cancelAgent(agentID)
	for range cancelled {
		b.metrics.turnsCompleted.WithLabelValues("cancelled").Inc()
	}

	b.rpc.failAgent(agentID, &TransportError{AgentID: agentID, Op: "agent stopped"})
	b.session.dropAgent(agentID)

	if err := b.tr.Stop(agentID); err != nil {
		b.log.Warn("transport stop failed", "agent", agentID, "error", err)
	}

	if agent != nil {
		agent.setStatus(StatusIdle, "")
	}

	b.mu.Lock()
	delete(b.stopping, agentID)
	delete(b.inits, agentID)
	b.mu.Unlock()
	b.rpc.unblock(agentID)

	b.log.Info("agent stopped", "agent", agentID, "cancelledTurns", len(cancelled))
	return nil
}

// CloseSession removes the thread's session, best-effort deleting it on the
// agent side. The agent keeps running; other threads may still use it.
func (b *Bridge) CloseSession(threadID string) {
	b.session.close(threadID)
}

// Dispatch is the single inbound entry point: the transport calls it for
// every document an agent emits. Classification is exact — treating a
// request as a notification would drop the obligation to respond and
// deadlock the remote agent.
func (b *Bridge) Dispatch(agentID string, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		b.log.Warn("unparseable message", "agent", agentID, "error", err)
		return
	}

	switch msg.Kind() {
	case wire.KindResponse:
		b.handleResponse(msg)
	case wire.KindRequest:
		b.handleAgentRequest(agentID, msg)
	case wire.KindNotification:
		b.handleNotification(agentID, msg)
	default:
		b.log.Warn("message fits no JSON-RPC shape", "agent", agentID)
	}
}

func (b *Bridge) handleResponse(msg *wire.Message) {
	id := int64(*msg.ID)
	if msg.Error != nil {
		b.rpc.reject(id, &ProtocolError{Code: msg.Error.Code, Message: msg.Error.Message, Data: msg.Error.Data})
		return
	}
	b.rpc.resolve(id, msg.Result)
}

func (b *Bridge) handleNotification(agentID string, msg *wire.Message) {
	switch msg.Method {
	case wire.MethodSessionUpdate:
		update, err := wire.DecodeSessionUpdate(msg.Params)
		if err != nil {
			b.log.Warn("malformed session update", "agent", agentID, "error", err)
			return
		}
		b.handleSessionUpdate(agentID, update)

	case wire.MethodToolCall:
		b.dispatchToolCall(agentID, msg.Params)

	default:
		b.log.Debug("unhandled notification", "agent", agentID, "method", msg.Method)
	}
}

func (b *Bridge) handleSessionUpdate(agentID string, update *wire.SessionUpdate) {
	turn := b.turns.get(update.SessionID)
	if turn == nil {
		// Cancelled or completed turn; late notifications are expected and
		// dropped without effect.
		b.log.Debug("update for no inflight turn", "agent", agentID, "session", update.SessionID, "kind", update.RawKind)
		return
	}

	switch update.Kind {
	case wire.UpdateMessageChunk:
		turn.appendChunk(update.Text)
	case wire.UpdateTurnComplete:
		b.completeTurn(turn, update.OutputText)
	case wire.UpdateError:
		b.failTurn(turn, update.ErrorMessage)
	case wire.UpdateUnknown:
		b.log.Warn("unknown session update kind", "agent", agentID, "session", update.SessionID, "kind", update.RawKind)
	}
}

// handleAgentRequest answers requests from the agent. Every inbound request
// gets a response — an unanswered request leaves the agent blocked forever.
func (b *Bridge) handleAgentRequest(agentID string, msg *wire.Message) {
	id := int64(*msg.ID)

	switch msg.Method {
	case wire.MethodToolCall:
		// Ack the request id immediately; the tool outcome travels in its
		// own tools/result message once the gate finishes.
		ack, err := wire.NewResponse(id, struct{}{})
		if err == nil {
			b.sendDirect(agentID, ack)
		}
		b.dispatchToolCall(agentID, msg.Params)

	default:
		b.sendDirect(agentID, wire.NewErrorResponse(id, wire.ErrCodeMethodNotFound, "unknown method: "+msg.Method))
	}
}

// dispatchToolCall routes a tool invocation to the gate on its own
// goroutine so approval prompts cannot stall the dispatcher.
func (b *Bridge) dispatchToolCall(agentID string, params json.RawMessage) {
	var call wire.ToolCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		b.log.Warn("malformed tool call", "agent", agentID, "error", err)
		return
	}

	turn := b.turns.get(call.SessionID)
	if turn == nil {
		go b.gate.handleOrphan(agentID, &call)
		return
	}
	go b.gate.handle(context.Background(), agentID, turn, &call)
}

// cancelRemote tells the agent to abandon the session's current turn.
// Best-effort: the local turn is failed regardless of whether this lands.
func (b *Bridge) cancelRemote(agentID, sessionID string) {
	if err := b.rpc.notify(agentID, wire.MethodSessionCancel, wire.CancelParams{SessionID: sessionID}); err != nil {
		b.log.Debug("cancel notify failed", "agent", agentID, "session", sessionID, "error", err)
	}
}

// sendDirect writes a message outside the correlator, best-effort.
func (b *Bridge) sendDirect(agentID string, msg *wire.Message) {
	if err := b.tr.Send(agentID, msg); err != nil {
		b.log.Warn("send failed", "agent", agentID, "error", err)
	}
}

func (b *Bridge) completeTurn(turn *inflightTurn, outputText string) {
	if turn.complete(outputText) {
		b.metrics.turnsCompleted.WithLabelValues("success").Inc()
		b.turns.removeIf(turn.sessionID, turn)
	}
}

func (b *Bridge) failTurn(turn *inflightTurn, message string) {
	if turn.fail(message) {
		b.metrics.turnsCompleted.WithLabelValues("error").Inc()
		b.turns.removeIf(turn.sessionID, turn)
	}
}

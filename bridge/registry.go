package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codetide/agent-bridge/toolspec"
	"github.com/codetide/agent-bridge/wire"
)

// Session is one live protocol session, keyed by conversation thread id: a
// thread maps to at most one session for a given agent.
type Session struct {
	ID        string
	AgentID   string
	ThreadID  string
	ModelInfo string
	CreatedAt time.Time
}

// sessionEntry is either a finished session or a creation in progress.
// Waiters block on ready; only the creator performs the remote call, so two
// concurrent ensureSession calls for one thread yield exactly one
// session/new request.
type sessionEntry struct {
	agentID string
	ready   chan struct{}
	session *Session
	err     error
}

// sessionRegistry owns the thread → session map.
type sessionRegistry struct {
	rpc     *correlator
	log     *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	byThread map[string]*sessionEntry
}

func newSessionRegistry(rpc *correlator, log *slog.Logger, timeout time.Duration) *sessionRegistry {
	return &sessionRegistry{
		rpc:      rpc,
		log:      log,
		timeout:  timeout,
		byThread: make(map[string]*sessionEntry),
	}
}

// ensureSession returns the thread's session, creating it through a
// session/new handshake on first use. A session created for a different
// agent is discarded and replaced.
func (r *sessionRegistry) ensureSession(ctx context.Context, threadID string, agent *Agent, execCtx ExecContext) (*Session, error) {
	r.mu.Lock()
	entry, ok := r.byThread[threadID]
	if ok && entry.agentID == agent.ID {
		r.mu.Unlock()

		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if entry.err != nil {
			// Creation failed; a later call may retry.
			r.dropEntry(threadID, entry)
			return nil, entry.err
		}
		return entry.session, nil
	}

	// No entry, or the thread was bound to a different agent.
	entry = &sessionEntry{agentID: agent.ID, ready: make(chan struct{})}
	r.byThread[threadID] = entry
	r.mu.Unlock()

	entry.session, entry.err = r.createSession(ctx, threadID, agent, execCtx)
	close(entry.ready)

	if entry.err != nil {
		r.dropEntry(threadID, entry)
		return nil, entry.err
	}

	r.mu.Lock()
	dropped := r.byThread[threadID] != entry
	r.mu.Unlock()
	if dropped {
		// The thread was closed (or rebound) while creation was in flight.
		// Nobody owns this session anymore, so delete it remotely instead of
		// leaking it.
		r.deleteRemote(threadID, entry)
		return nil, ErrSessionClosed
	}
	return entry.session, nil
}

// createSession performs the session/new request, advertising tool
// definitions built from the agent's enabled tool list.
func (r *sessionRegistry) createSession(ctx context.Context, threadID string, agent *Agent, execCtx ExecContext) (*Session, error) {
	params := wire.NewSessionParams{
		CWD:   execCtx.WorkspaceRoot,
		Model: agent.Model,
		Tools: toolspec.Definitions(agent.Tools),
	}
	if params.Tools == nil {
		params.Tools = []wire.ToolDefinition{}
	}

	result, err := r.rpc.call(ctx, agent.ID, wire.MethodSessionNew, params, r.timeout)
	if err != nil {
		if isAuthError(err) {
			agent.setStatus(StatusError, ReasonAuthRequired)
			return nil, &AuthRequiredError{AgentID: agent.ID, Message: err.Error()}
		}
		return nil, err
	}

	var created wire.NewSessionResult
	if err := json.Unmarshal(result, &created); err != nil {
		return nil, &ProtocolError{Method: wire.MethodSessionNew, Code: wire.ErrCodeParseError, Message: "malformed session/new result: " + err.Error()}
	}

	r.log.Debug("session created", "thread", threadID, "agent", agent.ID, "session", created.SessionID)

	return &Session{
		ID:        created.SessionID,
		AgentID:   agent.ID,
		ThreadID:  threadID,
		ModelInfo: created.ModelInfo,
		CreatedAt: time.Now(),
	}, nil
}

// close removes the thread's session. The remote delete is best-effort: the
// agent may already have discarded the session, so a failure is logged and
// local state is removed regardless.
func (r *sessionRegistry) close(threadID string) {
	r.mu.Lock()
	entry, ok := r.byThread[threadID]
	if ok {
		delete(r.byThread, threadID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	select {
	case <-entry.ready:
	default:
		// Creation still in flight. The creator notices its entry is gone
		// once the handshake finishes and deletes the remote session itself.
		return
	}
	if entry.session == nil {
		return
	}
	r.deleteRemote(threadID, entry)
}

// deleteRemote fires the session/delete request without waiting; the
// response, if any, is dropped by the correlator as an unknown id.
func (r *sessionRegistry) deleteRemote(threadID string, entry *sessionEntry) {
	params, err := json.Marshal(wire.DeleteSessionParams{SessionID: entry.session.ID})
	if err == nil {
		msg := &wire.Message{JSONRPC: wire.Version, Method: wire.MethodSessionDelete, Params: params}
		_, _, err = r.rpc.send(entry.agentID, msg, false)
	}
	if err != nil {
		r.log.Warn("session delete failed", "thread", threadID, "session", entry.session.ID, "error", err)
	}
}

// dropAgent removes every session belonging to the agent, local-only. Used
// when the agent stops; the remote side is going away with the process.
func (r *sessionRegistry) dropAgent(agentID string) {
	r.mu.Lock()
	for threadID, entry := range r.byThread {
		if entry.agentID == agentID {
			delete(r.byThread, threadID)
		}
	}
	r.mu.Unlock()
}

// dropEntry removes the entry only if it is still the one registered for
// the thread; a replacement created meanwhile is left alone.
func (r *sessionRegistry) dropEntry(threadID string, entry *sessionEntry) {
	r.mu.Lock()
	if cur, ok := r.byThread[threadID]; ok && cur == entry {
		delete(r.byThread, threadID)
	}
	r.mu.Unlock()
}

// isAuthError detects an authentication failure from the error code or,
// for agents that only report it in prose, the message content.
func isAuthError(err error) bool {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		if perr.Code == wire.ErrCodeAuthRequired {
			return true
		}
		return strings.Contains(strings.ToLower(perr.Message), "auth")
	}
	return false
}

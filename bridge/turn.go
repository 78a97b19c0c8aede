package bridge

import (
	"context"
	"strings"
	"sync"
)

// CancelMarker is appended to the collected text when a turn is cancelled.
const CancelMarker = "\n[cancelled]"

// turnState is the lifecycle of one inflight turn.
type turnState int

const (
	turnAwaitingResponse turnState = iota
	turnStreaming
	turnCompleted
)

// inflightTurn tracks one user message being answered: the text streamed so
// far and the callbacks driving the UI. The originating request id stays
// with the ProcessMessage call that issued it, which forgets the pending
// entry when the turn completes through a notification first.
//
// The transport delivers the correlated prompt response and session/update
// notifications independently and in either order, so completion fires on
// whichever signal lands first and everything after the first completion is
// dropped. All callback invocations happen under mu; that is what makes
// "no callback after completion" exact rather than best-effort.
type inflightTurn struct {
	sessionID string
	threadID  string
	agentID   string
	policy    ApprovalPolicy
	execCtx   ExecContext
	callbacks TurnCallbacks

	mu        sync.Mutex
	state     turnState
	collected strings.Builder
	done      chan struct{}
}

func newInflightTurn(sessionID, threadID, agentID string, opts TurnOptions) *inflightTurn {
	return &inflightTurn{
		sessionID: sessionID,
		threadID:  threadID,
		agentID:   agentID,
		policy:    opts.Policy,
		execCtx:   opts.Context,
		callbacks: opts.Callbacks,
		done:      make(chan struct{}),
	}
}

// appendChunk folds one streamed delta into the turn and emits it via
// OnChunk. Chunks arriving after completion are dropped.
func (t *inflightTurn) appendChunk(delta string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == turnCompleted {
		return false
	}
	t.state = turnStreaming
	t.collected.WriteString(delta)
	if t.callbacks.OnChunk != nil {
		t.callbacks.OnChunk(delta)
	}
	return true
}

// complete finishes the turn successfully. The final text is the
// protocol-supplied output when non-empty, else the collected stream.
// Idempotent: only the first of complete/fail/cancel has any effect.
func (t *inflightTurn) complete(outputText string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == turnCompleted {
		return false
	}
	t.state = turnCompleted

	final := outputText
	if final == "" {
		final = t.collected.String()
	}
	if t.callbacks.OnComplete != nil {
		t.callbacks.OnComplete(final)
	}
	close(t.done)
	return true
}

// fail finishes the turn with an error.
func (t *inflightTurn) fail(message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == turnCompleted {
		return false
	}
	t.state = turnCompleted
	if t.callbacks.OnError != nil {
		t.callbacks.OnError(message)
	}
	close(t.done)
	return true
}

// cancel finishes the turn immediately with the text collected so far plus
// the cancellation marker, regardless of current state.
func (t *inflightTurn) cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == turnCompleted {
		return false
	}
	t.state = turnCompleted
	if t.callbacks.OnComplete != nil {
		t.callbacks.OnComplete(t.collected.String() + CancelMarker)
	}
	close(t.done)
	return true
}

// toolStart/toolComplete/toolRejected/toolError emit tool callbacks, guarded
// by the completion flag like every other callback.

func (t *inflightTurn) toolStart(id, name string, input map[string]interface{}) {
	t.ifAlive(func(cb TurnCallbacks) {
		if cb.OnToolStart != nil {
			cb.OnToolStart(id, name, input)
		}
	})
}

func (t *inflightTurn) toolComplete(id, name, output string) {
	t.ifAlive(func(cb TurnCallbacks) {
		if cb.OnToolComplete != nil {
			cb.OnToolComplete(id, name, output)
		}
	})
}

func (t *inflightTurn) toolRejected(id, name string) {
	t.ifAlive(func(cb TurnCallbacks) {
		if cb.OnToolRejected != nil {
			cb.OnToolRejected(id, name)
		}
	})
}

func (t *inflightTurn) toolError(id, name, message string) {
	t.ifAlive(func(cb TurnCallbacks) {
		if cb.OnToolError != nil {
			cb.OnToolError(id, name, message)
		}
	})
}

// approve runs the approval callback outside mu: it can block on a human
// for minutes, and holding the lock would stall chunk delivery for the
// turn. Returns false when the turn has no approval callback or has already
// completed.
func (t *inflightTurn) approve(ctx context.Context, name string, input map[string]interface{}) (bool, error) {
	t.mu.Lock()
	if t.state == turnCompleted || t.callbacks.OnToolApproval == nil {
		t.mu.Unlock()
		return false, nil
	}
	cb := t.callbacks.OnToolApproval
	t.mu.Unlock()

	return cb(ctx, name, input)
}

func (t *inflightTurn) ifAlive(f func(cb TurnCallbacks)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == turnCompleted {
		return false
	}
	f(t.callbacks)
	return true
}

// turnTracker holds at most one inflight turn per session.
type turnTracker struct {
	mu        sync.Mutex
	bySession map[string]*inflightTurn
}

func newTurnTracker() *turnTracker {
	return &turnTracker{bySession: make(map[string]*inflightTurn)}
}

// begin registers the turn. A session cannot have two turns in flight.
func (tt *turnTracker) begin(t *inflightTurn) error {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if _, ok := tt.bySession[t.sessionID]; ok {
		return ErrTurnInFlight
	}
	tt.bySession[t.sessionID] = t
	return nil
}

// get returns the inflight turn for the session, or nil.
func (tt *turnTracker) get(sessionID string) *inflightTurn {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.bySession[sessionID]
}

// removeIf drops the tracker entry only if it still holds t. A finished
// turn's cleanup races with the next turn registering for the same session,
// so an unconditional delete could evict the successor.
func (tt *turnTracker) removeIf(sessionID string, t *inflightTurn) {
	tt.mu.Lock()
	if cur, ok := tt.bySession[sessionID]; ok && cur == t {
		delete(tt.bySession, sessionID)
	}
	tt.mu.Unlock()
}

// cancelAgent cancels every inflight turn belonging to the agent and
// removes the entries. Returns the turns that were actually cancelled.
func (tt *turnTracker) cancelAgent(agentID string) []*inflightTurn {
	tt.mu.Lock()
	var victims []*inflightTurn
	for sessionID, t := range tt.bySession {
		if t.agentID == agentID {
			delete(tt.bySession, sessionID)
			victims = append(victims, t)
		}
	}
	tt.mu.Unlock()

	var cancelled []*inflightTurn
	for _, t := range victims {
		if t.cancel() {
			cancelled = append(cancelled, t)
		}
	}
	return cancelled
}

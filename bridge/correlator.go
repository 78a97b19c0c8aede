package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codetide/agent-bridge/transport"
	"github.com/codetide/agent-bridge/wire"
)

// rpcOutcome is the terminal state of one correlated request.
type rpcOutcome struct {
	result json.RawMessage
	err    error
}

// pendingRequest tracks one outstanding request awaiting its response.
type pendingRequest struct {
	agentID string
	ch      chan rpcOutcome
}

// correlator owns the global request id space and the pending-request map.
// Ids increase monotonically for the process lifetime and are never reused;
// each pending entry is consumed at most once, so duplicate responses are
// dropped without effect.
type correlator struct {
	tr      transport.Transport
	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]*pendingRequest
	blocked map[string]bool // agents that may not be sent new requests
}

func newCorrelator(tr transport.Transport) *correlator {
	return &correlator{
		tr:      tr,
		pending: make(map[int64]*pendingRequest),
		blocked: make(map[string]bool),
	}
}

// send assigns an id to msg if it lacks one, registers a pending entry when
// expectResult is true, and forwards the message to the transport. A failed
// transport write surfaces synchronously as a TransportError and removes
// the entry so nothing leaks.
func (c *correlator) send(agentID string, msg *wire.Message, expectResult bool) (int64, <-chan rpcOutcome, error) {
	c.mu.Lock()
	if c.blocked[agentID] {
		c.mu.Unlock()
		return 0, nil, ErrAgentStopping
	}

	if msg.ID == nil {
		id := wire.ID(c.nextID.Add(1))
		msg.ID = &id
	}
	id := int64(*msg.ID)

	var ch chan rpcOutcome
	if expectResult {
		ch = make(chan rpcOutcome, 1)
		c.pending[id] = &pendingRequest{agentID: agentID, ch: ch}
	}
	c.mu.Unlock()

	if err := c.tr.Send(agentID, msg); err != nil {
		c.forget(id)
		return 0, nil, &TransportError{AgentID: agentID, Op: "send " + msg.Method, Cause: err}
	}

	return id, ch, nil
}

// notify sends a message with no id and no pending entry.
func (c *correlator) notify(agentID, method string, params interface{}) error {
	msg, err := wire.NewNotification(method, params)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.blocked[agentID] {
		c.mu.Unlock()
		return ErrAgentStopping
	}
	c.mu.Unlock()
	if err := c.tr.Send(agentID, msg); err != nil {
		return &TransportError{AgentID: agentID, Op: "send " + method, Cause: err}
	}
	return nil
}

// call sends a request and waits for its response. timeout of zero means
// the caller's ctx alone bounds the wait; an expired deadline is reported
// as a TransportError, because a hung subprocess is indistinguishable from
// a dead one.
func (c *correlator) call(ctx context.Context, agentID, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	msg := &wire.Message{JSONRPC: wire.Version, Method: method, Params: data}

	id, ch, err := c.send(agentID, msg, true)
	if err != nil {
		return nil, err
	}
	return c.wait(ctx, agentID, method, id, ch, timeout)
}

// wait blocks until the correlated response arrives, the deadline expires,
// or ctx is cancelled. The pending entry is removed on every exit path.
func (c *correlator) wait(ctx context.Context, agentID, method string, id int64, ch <-chan rpcOutcome, timeout time.Duration) (json.RawMessage, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	case <-timeoutCh:
		c.forget(id)
		return nil, &TransportError{AgentID: agentID, Op: method + " timed out", Cause: context.DeadlineExceeded}
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// resolve completes the pending request for id. Unknown or already-consumed
// ids are dropped silently; late duplicate responses are expected.
func (c *correlator) resolve(id int64, result json.RawMessage) {
	if p := c.take(id); p != nil {
		p.ch <- rpcOutcome{result: result}
	}
}

// reject fails the pending request for id. Unknown ids are dropped.
func (c *correlator) reject(id int64, err error) {
	if p := c.take(id); p != nil {
		p.ch <- rpcOutcome{err: err}
	}
}

// block refuses further sends for the agent until unblock.
func (c *correlator) block(agentID string) {
	c.mu.Lock()
	c.blocked[agentID] = true
	c.mu.Unlock()
}

// unblock lifts a block set by block.
func (c *correlator) unblock(agentID string) {
	c.mu.Lock()
	delete(c.blocked, agentID)
	c.mu.Unlock()
}

// failAgent rejects every pending request belonging to the agent. Used when
// the agent stops: those requests will never be answered.
func (c *correlator) failAgent(agentID string, err error) {
	c.mu.Lock()
	var victims []*pendingRequest
	for id, p := range c.pending {
		if p.agentID == agentID {
			delete(c.pending, id)
			victims = append(victims, p)
		}
	}
	c.mu.Unlock()

	for _, p := range victims {
		p.ch <- rpcOutcome{err: err}
	}
}

// take removes and returns the pending entry for id, or nil.
func (c *correlator) take(id int64) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// forget drops the pending entry for id without signalling it.
func (c *correlator) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

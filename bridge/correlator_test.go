package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetide/agent-bridge/wire"
)

func newTestCorrelator() (*correlator, *fakeTransport) {
	ft := newFakeTransport()
	return newCorrelator(ft), ft
}

func TestCorrelatorAssignsMonotonicIDs(t *testing.T) {
	c, _ := newTestCorrelator()

	var ids []int64
	for i := 0; i < 3; i++ {
		msg := &wire.Message{JSONRPC: wire.Version, Method: "m"}
		id, _, err := c.send("a", msg, false)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestCorrelatorResolveDeliversResult(t *testing.T) {
	c, _ := newTestCorrelator()

	msg := &wire.Message{JSONRPC: wire.Version, Method: "m"}
	id, ch, err := c.send("a", msg, true)
	require.NoError(t, err)

	c.resolve(id, json.RawMessage(`{"ok":true}`))
	out := <-ch
	require.NoError(t, out.err)
	assert.JSONEq(t, `{"ok":true}`, string(out.result))
}

func TestCorrelatorDuplicateResolveDropped(t *testing.T) {
	c, _ := newTestCorrelator()

	msg := &wire.Message{JSONRPC: wire.Version, Method: "m"}
	id, ch, err := c.send("a", msg, true)
	require.NoError(t, err)

	c.resolve(id, json.RawMessage(`1`))
	c.resolve(id, json.RawMessage(`2`)) // consumed entry: no second delivery
	c.reject(id, errors.New("nope"))

	out := <-ch
	assert.Equal(t, "1", string(out.result))
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second outcome: %+v", extra)
	default:
	}
}

func TestCorrelatorUnknownIDDropped(t *testing.T) {
	c, _ := newTestCorrelator()
	c.resolve(999, nil) // must not panic
	c.reject(999, errors.New("x"))
}

func TestCorrelatorCallTimeout(t *testing.T) {
	c, _ := newTestCorrelator()

	start := time.Now()
	_, err := c.call(context.Background(), "a", "initialize", struct{}{}, 10*time.Millisecond)
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "a", terr.AgentID)
	assert.ErrorIs(t, terr.Cause, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// The pending entry is gone; a late response is ignored.
	c.resolve(1, json.RawMessage(`{}`))
}

func TestCorrelatorCallContextCancelled(t *testing.T) {
	c, _ := newTestCorrelator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.call(ctx, "a", "initialize", struct{}{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorrelatorSendFailureCleansUp(t *testing.T) {
	c := newCorrelator(failingTransport{newFakeTransport()})

	msg := &wire.Message{JSONRPC: wire.Version, Method: "m"}
	_, _, err := c.send("a", msg, true)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)

	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()
	assert.Zero(t, pending, "failed send must not leak a pending entry")
}

func TestCorrelatorBlockRefusesSends(t *testing.T) {
	c, ft := newTestCorrelator()

	c.block("a")
	_, _, err := c.send("a", &wire.Message{JSONRPC: wire.Version, Method: "m"}, true)
	assert.ErrorIs(t, err, ErrAgentStopping)
	assert.ErrorIs(t, c.notify("a", "m", struct{}{}), ErrAgentStopping)

	// Other agents are unaffected, and unblock lifts the refusal.
	_, _, err = c.send("b", &wire.Message{JSONRPC: wire.Version, Method: "m"}, false)
	assert.NoError(t, err)

	c.unblock("a")
	_, _, err = c.send("a", &wire.Message{JSONRPC: wire.Version, Method: "m"}, false)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(ft.sentMethods()))
}

func TestCorrelatorFailAgentRejectsOnlyItsPending(t *testing.T) {
	c, _ := newTestCorrelator()

	_, chA, err := c.send("a", &wire.Message{JSONRPC: wire.Version, Method: "m"}, true)
	require.NoError(t, err)
	_, chB, err := c.send("b", &wire.Message{JSONRPC: wire.Version, Method: "m"}, true)
	require.NoError(t, err)

	stopErr := &TransportError{AgentID: "a", Op: "agent stopped"}
	c.failAgent("a", stopErr)

	out := <-chA
	assert.ErrorIs(t, out.err, stopErr)

	select {
	case unexpected := <-chB:
		t.Fatalf("agent b's request was rejected: %+v", unexpected)
	default:
	}
}

// failingTransport wraps a transport and fails every Send.
type failingTransport struct {
	*fakeTransport
}

func (f failingTransport) Send(agentID string, doc interface{}) error {
	return errors.New("pipe closed")
}

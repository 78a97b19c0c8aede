// Package transport spawns agent subprocesses and moves newline-delimited
// JSON documents between them and the bridge. It knows nothing about
// JSON-RPC: correlation and dispatch are the bridge's job.
package transport

import (
	"context"
	"errors"
)

// Sentinel errors for subprocess lifecycle misuse.
var (
	// ErrNotRunning is returned when sending to an agent whose process is
	// not running.
	ErrNotRunning = errors.New("agent process not running")

	// ErrAlreadyRunning is returned when starting an agent that is already
	// running.
	ErrAlreadyRunning = errors.New("agent process already running")

	// ErrStopping is returned when sending to an agent that is shutting down.
	ErrStopping = errors.New("agent process is stopping")
)

// Handler receives every inbound document emitted by an agent subprocess,
// tagged with the agent id. Requests, responses, and notifications all
// arrive here; classification happens downstream.
type Handler func(agentID string, data []byte)

// Transport launches and stops agent subprocesses and delivers outbound
// documents to them. Send is fire-and-forget at this layer.
type Transport interface {
	// Start spawns the subprocess for the agent. Idempotence is the
	// caller's concern; starting a running agent returns ErrAlreadyRunning.
	Start(ctx context.Context, agentID, command string, args []string, env map[string]string) error

	// Stop terminates the agent's subprocess. Stopping an agent that was
	// never started is a no-op.
	Stop(agentID string) error

	// Send marshals doc and writes it to the agent's stdin. Returns
	// ErrNotRunning when no process exists for the agent.
	Send(agentID string, doc interface{}) error
}

package bridge

import "sync"

// AgentStatus tracks an agent's lifecycle as seen by the bridge.
type AgentStatus int

const (
	StatusIdle AgentStatus = iota
	StatusStarting
	StatusReady
	StatusError
)

func (s AgentStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ReasonAuthRequired is the status reason set when session creation fails
// with an authentication error.
const ReasonAuthRequired = "auth_required"

// Agent describes one configured coding agent: how to launch it and what it
// may do. Agents are registered from configuration and never deleted while
// the process runs; stopping one only resets its status to idle.
type Agent struct {
	ID      string
	Command string
	Args    []string
	Env     map[string]string
	Model   string
	Tools   []string // enabled tool names, advertised at session creation

	mu           sync.Mutex
	status       AgentStatus
	statusReason string
}

// Status returns the agent's current status and, for StatusError, the
// reason (e.g. ReasonAuthRequired).
func (a *Agent) Status() (AgentStatus, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, a.statusReason
}

func (a *Agent) setStatus(s AgentStatus, reason string) {
	a.mu.Lock()
	a.status = s
	a.statusReason = reason
	a.mu.Unlock()
}

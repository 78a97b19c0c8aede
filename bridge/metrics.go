package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// bridgeMetrics counts turn and tool-call outcomes. Registered against the
// default registry once per process.
type bridgeMetrics struct {
	turnsStarted   prometheus.Counter
	turnsCompleted *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
}

var defaultMetrics = &bridgeMetrics{
	turnsStarted: promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentbridge_turns_started_total",
		Help: "User messages sent to agents.",
	}),
	turnsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentbridge_turns_completed_total",
		Help: "Turn completions by outcome.",
	}, []string{"outcome"}), // success | error | cancelled
	toolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentbridge_tool_calls_total",
		Help: "Tool invocations by outcome.",
	}, []string{"outcome"}), // completed | rejected | errored
}

// Package metrics provides Prometheus metrics for the connection supervisor,
// the message gate and the dispatcher, plus the HTTP endpoint serving them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mqttaction/pkg/types"
)

var (
	// ConnectionState is 1 for the current state kind and 0 for the others.
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mqttaction_connection_state",
		Help: "Current broker connection state (1 for the active state).",
	}, []string{"state"})

	// ConnectAttempts counts connect handshakes by result.
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqttaction_connect_attempts_total",
		Help: "Total number of connect attempts, by result (ok, error).",
	}, []string{"result"})

	// Subscriptions counts subscribe requests by result.
	Subscriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqttaction_subscriptions_total",
		Help: "Total number of subscribe requests, by result (ok, error).",
	}, []string{"result"})

	// MessagesReceived counts decoded and malformed payloads.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqttaction_messages_received_total",
		Help: "Total number of inbound payloads, by outcome (decoded, malformed).",
	}, []string{"outcome"})

	// MessagesDispatched counts dispatch decisions.
	MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqttaction_messages_dispatched_total",
		Help: "Total number of dispatch decisions, by decision (open_url, show_text, stale).",
	}, []string{"decision"})

	// JournalWrites counts journal writes by result.
	JournalWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mqttaction_journal_writes_total",
		Help: "Total number of journal writes, by result (ok, retry, dropped).",
	}, []string{"result"})
)

var stateKinds = []types.StateKind{
	types.StateDisconnected,
	types.StateConnecting,
	types.StateConnected,
	types.StateError,
}

// RecordState sets the connection state gauge to s.
func RecordState(s types.ConnectionState) {
	for _, k := range stateKinds {
		v := 0.0
		if k == s.Kind {
			v = 1
		}
		ConnectionState.WithLabelValues(k.String()).Set(v)
	}
}

// Recorder is the metrics surface every component writes through, so
// embedding code and tests can run without the global registry.
type Recorder interface {
	State(types.ConnectionState)
	ConnectAttempt(ok bool)
	Subscribe(ok bool)
	Received(decoded bool)
	Dispatched(decision string)
	JournalWrite(result string)
}

// Prometheus records into the package-level collectors.
type Prometheus struct{}

func (Prometheus) State(s types.ConnectionState) { RecordState(s) }

func (Prometheus) ConnectAttempt(ok bool) { ConnectAttempts.WithLabelValues(result(ok)).Inc() }

func (Prometheus) Subscribe(ok bool) { Subscriptions.WithLabelValues(result(ok)).Inc() }

func (Prometheus) Received(decoded bool) {
	outcome := "decoded"
	if !decoded {
		outcome = "malformed"
	}
	MessagesReceived.WithLabelValues(outcome).Inc()
}

func (Prometheus) Dispatched(decision string) { MessagesDispatched.WithLabelValues(decision).Inc() }

// JournalWrite counts one journal write outcome (ok, retry, dropped).
func (Prometheus) JournalWrite(result string) { JournalWrites.WithLabelValues(result).Inc() }

// Nop discards everything.
type Nop struct{}

func (Nop) State(types.ConnectionState) {}
func (Nop) ConnectAttempt(bool)         {}
func (Nop) Subscribe(bool)              {}
func (Nop) Received(bool)               {}
func (Nop) Dispatched(string)           {}
func (Nop) JournalWrite(string)         {}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Package dispatch turns decoded messages into local actions. Messages older
// than the freshness window are dropped; fresh ones open a URL or show their
// text. The dispatcher also maps connection states to the status label shown
// to the user.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mqttaction/internal/metrics"
	"mqttaction/pkg/types"
)

// DefaultMaxAge is the freshness window. Older messages are discarded.
const DefaultMaxAge = 60 * time.Second

// Decision is what happened to one message.
type Decision string

const (
	DecisionOpenURL  Decision = "open_url"
	DecisionShowText Decision = "show_text"
	DecisionStale    Decision = "stale"
)

// Notifier receives the user-facing status label on every state change.
type Notifier interface {
	Status(label string)
}

// Journal records dispatch decisions. Record must not block.
type Journal interface {
	Record(rec types.JournalRecord)
}

// StatusLabel maps a connection state to its status text.
func StatusLabel(s types.ConnectionState) string {
	switch s.Kind {
	case types.StateConnected:
		return "connected"
	case types.StateConnecting:
		return "connecting..."
	case types.StateError:
		return "connection error"
	default:
		return "disconnected"
	}
}

// LogNotifier writes status labels to a logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Status logs label.
func (n LogNotifier) Status(label string) {
	n.Logger.Info().Str("event", "dispatch.status").Str("status", label).Msg("connection status")
}

// Config wires a Dispatcher. Actions is required; the rest defaults.
type Config struct {
	MaxAge   time.Duration
	Actions  Actions
	Notifier Notifier
	Journal  Journal
	Metrics  metrics.Recorder
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Dispatcher consumes the supervisor's state and message streams.
type Dispatcher struct {
	maxAge   time.Duration
	actions  Actions
	notifier Notifier
	journal  Journal
	metrics  metrics.Recorder
	now      func() time.Time
	logger   zerolog.Logger
}

// New returns a dispatcher for cfg.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		maxAge:   cfg.MaxAge,
		actions:  cfg.Actions,
		notifier: cfg.Notifier,
		journal:  cfg.Journal,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if d.maxAge <= 0 {
		d.maxAge = DefaultMaxAge
	}
	if d.notifier == nil {
		d.notifier = LogNotifier{Logger: cfg.Logger}
	}
	if d.metrics == nil {
		d.metrics = metrics.Nop{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Run dispatches until ctx is done or both streams are closed.
func (d *Dispatcher) Run(ctx context.Context, states <-chan types.ConnectionState, messages <-chan types.InboundMessage) error {
	for states != nil || messages != nil {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			d.notifier.Status(StatusLabel(s))
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			d.Handle(ctx, msg)
		}
	}
	return nil
}

// Handle applies the freshness window to msg and performs its action.
// Action failures are logged and do not propagate.
func (d *Dispatcher) Handle(ctx context.Context, msg types.InboundMessage) Decision {
	now := d.now()
	ageMs := msg.AgeMillis(now)

	decision := DecisionShowText
	target := msg.Text
	switch {
	case ageMs > d.maxAge.Milliseconds():
		decision = DecisionStale
	default:
		if u, ok := NormalizeURL(msg.Text); ok {
			decision = DecisionOpenURL
			target = u
		}
	}

	d.metrics.Dispatched(string(decision))
	d.record(msg, now, ageMs, decision)

	switch decision {
	case DecisionStale:
		d.logger.Info().
			Str("event", "dispatch.stale").
			Dur("age", msg.Age(now)).
			Dur("max_age", d.maxAge).
			Msg("ignoring stale message")
		return decision
	case DecisionOpenURL:
		if err := d.actions.OpenURL(ctx, target); err != nil {
			d.logger.Error().Err(err).Str("event", "dispatch.open_url_failed").Str("url", target).Msg("failed to open URL")
		}
	default:
		if err := d.actions.ShowText(ctx, target); err != nil {
			d.logger.Error().Err(err).Str("event", "dispatch.show_text_failed").Msg("failed to show popup")
		}
	}
	return decision
}

func (d *Dispatcher) record(msg types.InboundMessage, now time.Time, ageMs int64, decision Decision) {
	if d.journal == nil {
		return
	}
	d.journal.Record(types.JournalRecord{
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
		ReceivedAt: now,
		AgeMillis:  ageMs,
		Decision:   string(decision),
	})
}

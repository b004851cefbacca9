// Package supervisor owns the single broker connection. It connects with the
// latest settings, follows settings changes (reconnecting for address or
// credential changes, resubscribing for topic changes), recovers from silent
// disconnection with a periodic liveness check, and publishes connection
// state and decoded messages as streams.
//
// All mutation of the connection handle and every state emission happens
// under one mutex, the client lock. Transport lifecycle callbacks are posted
// to the supervisor's own event goroutine instead of running inline, so they
// are serialized with Connect, Disconnect and subscription changes.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mqttaction/internal/gate"
	"mqttaction/internal/metrics"
	"mqttaction/internal/mqtt"
	"mqttaction/internal/stream"
	"mqttaction/pkg/types"
)

const (
	// DefaultLivenessInterval is how often the liveness check runs.
	DefaultLivenessInterval = 30 * time.Second

	// DefaultQoS is the subscription QoS.
	DefaultQoS byte = 1

	// disconnectTimeout bounds best-effort teardown of a handle.
	disconnectTimeout = 5 * time.Second

	eventBuffer = 16
)

// Source provides connection settings. Watch delivers every snapshot in
// order, starting with the current one, until ctx is done.
type Source interface {
	Current() types.ConnectionConfig
	Watch(ctx context.Context) <-chan types.ConnectionConfig
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithHandleFactory replaces the paho transport, mainly for tests.
func WithHandleFactory(f mqtt.Factory) Option {
	return func(s *Supervisor) { s.factory = f }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithLivenessInterval overrides the liveness check interval.
func WithLivenessInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.liveness = d
		}
	}
}

// WithQoS sets the subscription QoS (0, 1 or 2).
func WithQoS(qos byte) Option {
	return func(s *Supervisor) { s.qos = qos }
}

// WithClientIDPrefix sets the prefix of the generated client identifiers.
func WithClientIDPrefix(prefix string) Option {
	return func(s *Supervisor) { s.clientIDPrefix = prefix }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Supervisor) {
		if r != nil {
			s.metrics = r
		}
	}
}

// Supervisor holds at most one live broker connection consistent with the
// latest settings. The host process constructs exactly one, calls Start, and
// is responsible for calling Stop.
type Supervisor struct {
	source         Source
	factory        mqtt.Factory
	logger         zerolog.Logger
	metrics        metrics.Recorder
	liveness       time.Duration
	qos            byte
	clientIDPrefix string

	states   *stream.Stream[types.ConnectionState]
	messages *stream.Stream[types.InboundMessage]
	gate     *gate.Gate

	// client lock; guards everything below up to manual
	mu      sync.Mutex
	handle  mqtt.Handle
	gen     uint64
	config  *types.ConnectionConfig
	topic   string // filter subscribed on the current handle
	stopped bool

	// manual is the sticky manual-disconnect flag. Writes happen before the
	// client lock is taken; the liveness check reads it without the lock.
	manual atomic.Bool

	attemptMu sync.Mutex
	current   *attempt

	events chan event

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a supervisor reading settings from source. Nothing runs until
// Start is called.
func New(source Source, opts ...Option) *Supervisor {
	s := &Supervisor{
		source:         source,
		factory:        mqtt.NewHandle,
		logger:         zerolog.Nop(),
		metrics:        metrics.Nop{},
		liveness:       DefaultLivenessInterval,
		qos:            DefaultQoS,
		clientIDPrefix: mqtt.DefaultClientIDPrefix,
		states:         stream.NewLatest(types.Disconnected(nil)),
		messages:       stream.NewConflated[types.InboundMessage](),
		events:         make(chan event, eventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.gate = gate.New(s.messages, s.metrics, s.logger)
	s.metrics.State(s.states.Current())
	return s
}

// Start launches the settings, event and liveness goroutines. The
// supervisor stops when ctx is done or Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if s.ctx.Err() != nil {
			return
		}
		context.AfterFunc(ctx, s.cancel)

		settings := s.source.Watch(s.ctx)

		s.wg.Add(3)
		go func() {
			defer s.wg.Done()
			s.runEvents()
		}()
		go func() {
			defer s.wg.Done()
			s.runSettings(settings)
		}()
		go func() {
			defer s.wg.Done()
			s.runLiveness()
		}()

		s.logger.Info().
			Str("event", "supervisor.start").
			Dur("liveness_interval", s.liveness).
			Msg("connection supervisor started")
	})
}

// Stop cancels in-flight requests and background work, tears down the
// handle and closes both streams. No state is emitted after Stop returns.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		s.stopped = true
		s.teardownLocked(context.Background())
		s.mu.Unlock()

		s.states.Close()
		s.messages.Close()
		s.logger.Info().Str("event", "supervisor.stop").Msg("connection supervisor stopped")
	})
}

// States returns a replay-latest stream of connection states.
func (s *Supervisor) States(ctx context.Context) <-chan types.ConnectionState {
	return s.states.Subscribe(ctx)
}

// Messages returns a stream of decoded messages. There is no replay, and a
// slow reader only sees the newest pending message.
func (s *Supervisor) Messages(ctx context.Context) <-chan types.InboundMessage {
	return s.messages.Subscribe(ctx)
}

// State returns the current connection state.
func (s *Supervisor) State() types.ConnectionState {
	return s.states.Current()
}

// ManuallyDisconnected reports whether automatic reconnection is suppressed.
func (s *Supervisor) ManuallyDisconnected() bool {
	return s.manual.Load()
}

// emitLocked publishes a state transition. Callers hold s.mu.
func (s *Supervisor) emitLocked(state types.ConnectionState) {
	if s.stopped || s.ctx.Err() != nil {
		return
	}

	ev := s.logger.Info()
	if state.Kind == types.StateError {
		ev = s.logger.Error()
	}
	ev.Str("event", "supervisor.state").
		Str("state", state.Kind.String()).
		AnErr("cause", state.Cause).
		Msg("connection state changed")

	s.metrics.State(state)
	s.states.Publish(state)
}

// configLocked returns the latest observed settings, falling back to the
// source before the first snapshot has been folded in.
func (s *Supervisor) configLocked() types.ConnectionConfig {
	if s.config != nil {
		return *s.config
	}
	return s.source.Current()
}

// scoped derives a context that is also cancelled when the supervisor stops.
func (s *Supervisor) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"

	"mqttaction/internal/mqtt"
	"mqttaction/pkg/types"
)

type eventKind int

const (
	eventConnected eventKind = iota
	eventLost
)

// event is a transport callback tagged with the generation of the handle
// that produced it.
type event struct {
	kind eventKind
	gen  uint64
	err  error
}

// attempt is one in-flight connect. aborted marks a cancellation requested by
// Disconnect or Reconnect, whose caller emits the resulting state itself.
type attempt struct {
	cancel  context.CancelFunc
	aborted atomic.Bool
}

// post hands ev to the event loop. It runs on transport goroutines and gives
// up once the supervisor is stopping.
func (s *Supervisor) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Supervisor) runEvents() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

func (s *Supervisor) handleEvent(ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.gen != s.gen || s.handle == nil {
		s.logger.Debug().
			Str("event", "supervisor.stale_callback").
			Uint64("callback_gen", ev.gen).
			Uint64("current_gen", s.gen).
			Msg("ignoring callback from a discarded handle")
		return
	}

	switch ev.kind {
	case eventConnected:
		s.emitLocked(types.Connected())
		s.subscribeLocked(s.ctx)
	case eventLost:
		// The handle stays installed: it is dead, so the liveness check will
		// replace it unless the user disconnected on purpose.
		s.topic = ""
		s.emitLocked(types.Disconnected(ev.err))
	}
}

// Connect opens a connection with the latest settings. It does nothing after
// a manual Disconnect, or while the current handle is connected or
// reconnecting. Failures are reported on the state stream, never returned.
func (s *Supervisor) Connect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectLocked(ctx)
}

// Reconnect clears the manual-disconnect flag, discards the current handle
// and connects again. An in-flight connect attempt is abandoned.
func (s *Supervisor) Reconnect(ctx context.Context) {
	s.logger.Info().Str("event", "supervisor.reconnect").Msg("reconnect requested")
	s.manual.Store(false)
	s.abortAttempt()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectLocked(ctx)
}

// Disconnect sets the manual-disconnect flag, tears the connection down and
// reports Disconnected. Automatic reconnection stays off until Connect or
// Reconnect is called, or the settings change the broker address.
func (s *Supervisor) Disconnect(ctx context.Context) {
	s.logger.Info().Str("event", "supervisor.disconnect").Msg("manual disconnect requested")
	s.manual.Store(true)
	s.abortAttempt()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked(ctx)
	s.emitLocked(types.Disconnected(nil))
}

func (s *Supervisor) reconnectLocked(ctx context.Context) {
	if s.handle != nil {
		s.teardownLocked(ctx)
		s.emitLocked(types.Disconnected(nil))
	}
	s.connectLocked(ctx)
}

func (s *Supervisor) connectLocked(ctx context.Context) {
	if s.stopped || s.ctx.Err() != nil {
		return
	}
	if s.manual.Load() {
		s.logger.Info().Str("event", "supervisor.connect_skipped").Msg("connect ignored after manual disconnect")
		return
	}
	if s.handle != nil {
		if s.handle.IsConnectedOrReconnecting() {
			s.logger.Debug().Str("event", "supervisor.connect_skipped").Msg("client already connected or reconnecting")
			return
		}
		// A silently dead handle, or one whose lost callback is still
		// queued, has not reported the drop yet.
		s.teardownLocked(ctx)
		if k := s.states.Current().Kind; k != types.StateDisconnected && k != types.StateError {
			s.emitLocked(types.Disconnected(mqtt.ErrNotConnected))
		}
	}

	cfg := s.configLocked()

	attemptCtx, cancel := s.scoped(ctx)
	defer cancel()
	a := s.setAttempt(cancel)
	if a == nil {
		return
	}
	defer s.clearAttempt(a)

	s.gen++
	gen := s.gen
	clientID := mqtt.NewClientID(s.clientIDPrefix)

	h, err := s.factory(mqtt.Options{
		Config:   cfg,
		ClientID: clientID,
		Events: mqtt.Events{
			OnConnect:        func() { s.post(event{kind: eventConnected, gen: gen}) },
			OnConnectionLost: func(err error) { s.post(event{kind: eventLost, gen: gen, err: err}) },
		},
		Logger: s.logger,
	})
	if err != nil {
		s.metrics.ConnectAttempt(false)
		s.emitLocked(types.Failed(err))
		return
	}

	s.handle = h
	s.topic = ""
	s.logger.Info().
		Str("event", "supervisor.connect").
		Str("host", cfg.Host).
		Uint16("port", cfg.Port).
		Str("client_id", clientID).
		Msg("connecting")
	s.emitLocked(types.Connecting())

	err = h.Connect(attemptCtx)
	if err == nil {
		// Connected is emitted by the OnConnect callback.
		s.metrics.ConnectAttempt(true)
		return
	}

	s.metrics.ConnectAttempt(false)
	s.teardownLocked(ctx)
	if a.aborted.Load() && errors.Is(err, context.Canceled) {
		s.logger.Info().Str("event", "supervisor.connect_aborted").Msg("connect attempt abandoned")
		return
	}
	s.emitLocked(types.Failed(err))
}

// teardownLocked discards the current handle. Every callback it may still
// deliver becomes stale. Disconnect errors are logged and swallowed.
func (s *Supervisor) teardownLocked(ctx context.Context) {
	s.gen++
	h := s.handle
	s.handle = nil
	s.topic = ""
	if h == nil {
		return
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()
	if err := h.Disconnect(dctx); err != nil {
		s.logger.Warn().Err(err).Str("event", "supervisor.disconnect_failed").Msg("error during disconnect")
	}
}

// setAttempt registers the cancel func of a new connect attempt. It returns
// nil when a manual disconnect raced in after the flag was first checked.
func (s *Supervisor) setAttempt(cancel context.CancelFunc) *attempt {
	a := &attempt{cancel: cancel}
	s.attemptMu.Lock()
	s.current = a
	s.attemptMu.Unlock()

	if s.manual.Load() {
		s.clearAttempt(a)
		return nil
	}
	return a
}

func (s *Supervisor) clearAttempt(a *attempt) {
	s.attemptMu.Lock()
	if s.current == a {
		s.current = nil
	}
	s.attemptMu.Unlock()
}

func (s *Supervisor) abortAttempt() {
	s.attemptMu.Lock()
	a := s.current
	s.attemptMu.Unlock()
	if a != nil {
		a.aborted.Store(true)
		a.cancel()
	}
}

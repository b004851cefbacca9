package supervisor

import (
	"context"
)

// subscribeLocked subscribes the connected handle to the configured topic.
// A filter that differs from the one already subscribed on this handle is
// unsubscribed first so the broker does not deliver both. Failures are
// logged, not retried; the next connect or topic change tries again.
func (s *Supervisor) subscribeLocked(ctx context.Context) {
	topic := s.configLocked().Topic
	if topic == "" || s.handle == nil || !s.handle.IsConnected() {
		return
	}
	if topic == s.topic {
		return
	}

	ctx, cancel := s.scoped(ctx)
	defer cancel()

	if s.topic != "" {
		if err := s.handle.Unsubscribe(ctx, s.topic); err != nil {
			s.logger.Warn().
				Err(err).
				Str("event", "supervisor.unsubscribe_failed").
				Str("topic", s.topic).
				Msg("failed to remove previous subscription")
		}
		s.topic = ""
	}

	if err := s.handle.Subscribe(ctx, topic, s.qos, s.gate.Handle); err != nil {
		s.metrics.Subscribe(false)
		s.logger.Error().
			Err(err).
			Str("event", "supervisor.subscribe_failed").
			Str("topic", topic).
			Msg("subscription failed")
		return
	}

	s.topic = topic
	s.metrics.Subscribe(true)
	s.logger.Info().
		Str("event", "supervisor.subscribed").
		Str("topic", topic).
		Uint8("qos", s.qos).
		Msg("subscribed")
}

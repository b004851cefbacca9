package supervisor

import (
	"mqttaction/pkg/types"
)

// foldAction is what a settings snapshot asks the supervisor to do.
type foldAction int

const (
	foldNone foldAction = iota
	foldReconnect
	foldResubscribe
)

func (a foldAction) String() string {
	switch a {
	case foldReconnect:
		return "reconnect"
	case foldResubscribe:
		return "resubscribe"
	default:
		return "none"
	}
}

// configFold compares each snapshot with the previous one. The first
// snapshot is authoritative and always reconnects.
type configFold struct {
	prev *types.ConnectionConfig
}

func (f *configFold) next(cfg types.ConnectionConfig) foldAction {
	prev := f.prev
	f.prev = &cfg

	switch {
	case prev == nil:
		return foldReconnect
	case prev.EndpointChanged(cfg):
		return foldReconnect
	case prev.TopicChanged(cfg):
		return foldResubscribe
	default:
		return foldNone
	}
}

// runSettings folds snapshots strictly in arrival order.
func (s *Supervisor) runSettings(settings <-chan types.ConnectionConfig) {
	var fold configFold
	for {
		select {
		case <-s.ctx.Done():
			return
		case cfg, ok := <-settings:
			if !ok {
				return
			}
			s.applyConfig(cfg, fold.next(cfg))
		}
	}
}

func (s *Supervisor) applyConfig(cfg types.ConnectionConfig, action foldAction) {
	s.logger.Debug().
		Str("event", "supervisor.settings").
		Str("host", cfg.Host).
		Uint16("port", cfg.Port).
		Str("topic", cfg.Topic).
		Stringer("action", action).
		Msg("settings snapshot received")

	switch action {
	case foldReconnect:
		// Abandon an attempt still using the old address before waiting for
		// the client lock.
		s.manual.Store(false)
		s.abortAttempt()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.config = &cfg
		s.reconnectLocked(s.ctx)

	case foldResubscribe:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.config = &cfg
		s.subscribeLocked(s.ctx)

	default:
		s.mu.Lock()
		s.config = &cfg
		s.mu.Unlock()
	}
}

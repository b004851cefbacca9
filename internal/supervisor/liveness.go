package supervisor

import (
	"time"
)

// runLiveness forces a connect whenever the client has silently gone stale.
// The manual flag is read without the client lock so a deliberately
// disconnected supervisor never contends for it.
func (s *Supervisor) runLiveness() {
	ticker := time.NewTicker(s.liveness)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.manual.Load() || !s.stale() {
				continue
			}
			s.logger.Warn().
				Str("event", "supervisor.liveness").
				Msg("detected disconnected state, forcing reconnect")
			s.Connect(s.ctx)
		}
	}
}

// stale reports whether there is no handle, or one that is neither
// connected nor reconnecting.
func (s *Supervisor) stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle == nil || !s.handle.IsConnectedOrReconnecting()
}

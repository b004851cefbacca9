// Package settings provides the connection settings sources the supervisor
// follows: MemorySource for embedding and tests, FileSource for the YAML
// configuration file.
package settings

import (
	"context"
	"sync"

	"mqttaction/pkg/types"
)

// MemorySource holds settings in memory. Every snapshot passed to Set is
// delivered to every watcher in order; a slow watcher queues rather than
// losing intermediate snapshots.
type MemorySource struct {
	mu       sync.Mutex
	current  types.ConnectionConfig
	watchers map[*watcher]struct{}
}

// NewMemorySource returns a source whose current snapshot is initial.
func NewMemorySource(initial types.ConnectionConfig) *MemorySource {
	return &MemorySource{
		current:  initial,
		watchers: make(map[*watcher]struct{}),
	}
}

// Current returns the latest snapshot.
func (m *MemorySource) Current() types.ConnectionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set replaces the current snapshot and delivers it to all watchers.
func (m *MemorySource) Set(cfg types.ConnectionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = cfg
	for w := range m.watchers {
		w.push(cfg)
	}
}

// Watch delivers the current snapshot followed by every later one. The
// channel is closed once ctx is done.
func (m *MemorySource) Watch(ctx context.Context) <-chan types.ConnectionConfig {
	w := &watcher{
		signal: make(chan struct{}, 1),
		out:    make(chan types.ConnectionConfig),
	}

	m.mu.Lock()
	w.push(m.current)
	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer close(w.out)
		defer func() {
			m.mu.Lock()
			delete(m.watchers, w)
			m.mu.Unlock()
		}()
		w.run(ctx)
	}()
	return w.out
}

// Watchers returns the number of active watchers.
func (m *MemorySource) Watchers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

type watcher struct {
	mu     sync.Mutex
	queue  []types.ConnectionConfig
	signal chan struct{}
	out    chan types.ConnectionConfig
}

func (w *watcher) push(cfg types.ConnectionConfig) {
	w.mu.Lock()
	w.queue = append(w.queue, cfg)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) pop() (types.ConnectionConfig, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return types.ConnectionConfig{}, false
	}
	cfg := w.queue[0]
	w.queue = w.queue[1:]
	return cfg, true
}

func (w *watcher) run(ctx context.Context) {
	for {
		cfg, ok := w.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.signal:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case w.out <- cfg:
		}
	}
}

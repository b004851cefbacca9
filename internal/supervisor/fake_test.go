package supervisor

import (
	"context"
	"errors"
	"sync"

	"mqttaction/internal/mqtt"
	"mqttaction/pkg/types"
)

// fakeBroker is the factory side of an in-memory transport. It records every
// handle it builds and every request those handles make.
type fakeBroker struct {
	mu           sync.Mutex
	handles      []*fakeHandle
	connects     []types.ConnectionConfig
	subscribes   []string
	unsubscribes []string
	clientIDs    []string

	// gate, when set, holds Connect until closed or ctx is done.
	gate       chan struct{}
	connectErr error
}

func (b *fakeBroker) factory(o mqtt.Options) (mqtt.Handle, error) {
	h := &fakeHandle{broker: b, opts: o}
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.clientIDs = append(b.clientIDs, o.ClientID)
	b.mu.Unlock()
	return h, nil
}

func (b *fakeBroker) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connects)
}

func (b *fakeBroker) subscribed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subscribes...)
}

func (b *fakeBroker) unsubscribed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.unsubscribes...)
}

func (b *fakeBroker) handle(i int) *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 {
		i = len(b.handles) + i
	}
	if i < 0 || i >= len(b.handles) {
		return nil
	}
	return b.handles[i]
}

func (b *fakeBroker) setConnectErr(err error) {
	b.mu.Lock()
	b.connectErr = err
	b.mu.Unlock()
}

type fakeHandle struct {
	broker *fakeBroker
	opts   mqtt.Options

	mu           sync.Mutex
	connected    bool
	disconnected bool
	handlers     map[string]mqtt.MessageHandler
}

func (h *fakeHandle) Connect(ctx context.Context) error {
	b := h.broker
	b.mu.Lock()
	b.connects = append(b.connects, h.opts.Config)
	gate, connectErr := b.gate, b.connectErr
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if connectErr != nil {
		return connectErr
	}

	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()

	if h.opts.Events.OnConnect != nil {
		h.opts.Events.OnConnect()
	}
	return nil
}

func (h *fakeHandle) Subscribe(_ context.Context, topic string, _ byte, handler mqtt.MessageHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connected {
		return mqtt.ErrNotConnected
	}
	if h.handlers == nil {
		h.handlers = make(map[string]mqtt.MessageHandler)
	}
	h.handlers[topic] = handler

	h.broker.mu.Lock()
	h.broker.subscribes = append(h.broker.subscribes, topic)
	h.broker.mu.Unlock()
	return nil
}

func (h *fakeHandle) Unsubscribe(_ context.Context, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, topic)

	h.broker.mu.Lock()
	h.broker.unsubscribes = append(h.broker.unsubscribes, topic)
	h.broker.mu.Unlock()
	return nil
}

func (h *fakeHandle) Disconnect(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	h.disconnected = true
	return nil
}

func (h *fakeHandle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *fakeHandle) IsConnectedOrReconnecting() bool {
	return h.IsConnected()
}

func (h *fakeHandle) isDisconnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnected
}

// drop simulates the broker closing the connection.
func (h *fakeHandle) drop(err error) {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
	if h.opts.Events.OnConnectionLost != nil {
		h.opts.Events.OnConnectionLost(err)
	}
}

// stall simulates a half-open connection: the handle stops being connected
// but never reports the loss.
func (h *fakeHandle) stall() {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
}

// deliver pushes payload through every handler subscribed on this handle.
func (h *fakeHandle) deliver(payload string) {
	h.mu.Lock()
	handlers := make([]mqtt.MessageHandler, 0, len(h.handlers))
	topics := make([]string, 0, len(h.handlers))
	for topic, handler := range h.handlers {
		handlers = append(handlers, handler)
		topics = append(topics, topic)
	}
	h.mu.Unlock()

	for i, handler := range handlers {
		handler(topics[i], []byte(payload))
	}
}

// stateRecorder captures every state emission through the metrics hook.
type stateRecorder struct {
	mu     sync.Mutex
	states []types.ConnectionState
}

func (r *stateRecorder) State(s types.ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}
func (r *stateRecorder) ConnectAttempt(bool) {}
func (r *stateRecorder) Subscribe(bool)      {}
func (r *stateRecorder) Received(bool)       {}
func (r *stateRecorder) Dispatched(string)   {}
func (r *stateRecorder) JournalWrite(string) {}

func (r *stateRecorder) kinds() []types.StateKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]types.StateKind, len(r.states))
	for i, s := range r.states {
		kinds[i] = s.Kind
	}
	return kinds
}

func (r *stateRecorder) last() types.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

var errBrokerGone = errors.New("broker went away")

// Package mqtt provides the broker connection handle used by the supervisor.
// A handle wraps one Eclipse Paho client instance: it is built for a single
// configuration snapshot and client identifier, reports connection lifecycle
// events through callbacks, and is discarded (never reused) once torn down.
package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"mqttaction/pkg/types"
)

// Handle is one broker connection instance.
type Handle interface {
	// Connect sends the connect request and waits for the acknowledgment.
	Connect(ctx context.Context) error
	// Subscribe subscribes to topic and waits for the broker's confirmation.
	Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error
	// Unsubscribe removes the subscription for topic.
	Unsubscribe(ctx context.Context, topic string) error
	// Disconnect closes the connection. The handle must not be used afterwards.
	Disconnect(ctx context.Context) error
	// IsConnected reports whether the connection is open right now.
	IsConnected() bool
	// IsConnectedOrReconnecting also reports true while the transport is
	// still working on (re)establishing the connection.
	IsConnectedOrReconnecting() bool
}

// MessageHandler receives the topic and raw payload of each inbound message.
// It is invoked on a paho goroutine and must not block for long.
type MessageHandler func(topic string, payload []byte)

// Events are the lifecycle callbacks of a handle. Both may be nil.
type Events struct {
	// OnConnect fires when the CONNECT handshake completes.
	OnConnect func()
	// OnConnectionLost fires when an established connection drops.
	OnConnectionLost func(err error)
}

// Options describe the handle to build.
type Options struct {
	Config   types.ConnectionConfig
	ClientID string
	Events   Events
	Logger   zerolog.Logger
}

// Factory builds a new, not yet connected handle.
type Factory func(Options) (Handle, error)

// Client is the paho-backed Handle.
type Client struct {
	client pahomqtt.Client
	cfg    types.ConnectionConfig
	logger zerolog.Logger
}

var _ Handle = (*Client)(nil)

// NewHandle builds a paho client for o. It does not touch the network.
func NewHandle(o Options) (Handle, error) {
	return NewClient(o)
}

// NewClient is NewHandle returning the concrete type, for callers that also
// need Publish.
func NewClient(o Options) (*Client, error) {
	opts, err := buildClientOptions(o)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    o.Config,
		logger: o.Logger.With().Str("client_id", o.ClientID).Logger(),
	}

	onConnect := o.Events.OnConnect
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.logger.Debug().Str("event", "mqtt.on_connect").Msg("broker handshake completed")
		if onConnect != nil {
			onConnect()
		}
	})

	onLost := o.Events.OnConnectionLost
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn().Err(err).Str("event", "mqtt.connection_lost").Msg("broker connection lost")
		if onLost != nil {
			onLost(err)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// Connect sends the connect request and waits for the CONNACK.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info().
		Str("event", "mqtt.connect").
		Str("broker", brokerURL(c.cfg)).
		Bool("auth", c.cfg.Username != "").
		Msg("connecting to broker")

	token := c.client.Connect()
	if err := await(ctx, token, connectTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if ct, ok := token.(*pahomqtt.ConnectToken); ok && ct.ReturnCode() != 0 {
		return fmt.Errorf("%w: return code %d", ErrConnectionRefused, ct.ReturnCode())
	}
	return nil
}

// Subscribe subscribes to topic and waits for the SUBACK.
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if err := await(ctx, token, requestTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	// A SUBACK return code of 0x80 means the broker rejected the filter
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if code, found := st.Result()[topic]; found && code == 0x80 {
			return fmt.Errorf("%w: %s: rejected by broker", ErrSubscribeFailed, topic)
		}
	}
	return nil
}

// Unsubscribe removes the subscription for topic.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	if err := await(ctx, token, requestTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// Publish sends payload to topic and waits for the acknowledgment required
// by qos.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if err := await(ctx, token, requestTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Disconnect closes the connection. Paho does not report disconnect errors;
// the only failure is ctx expiring while the quiesce period runs.
func (c *Client) Disconnect(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.client.Disconnect(disconnectQuiesce)
	}()

	select {
	case <-done:
		c.logger.Info().Str("event", "mqtt.disconnect").Msg("disconnected from broker")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt disconnect: %w", ctx.Err())
	}
}

// IsConnected reports whether the network connection is open.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// IsConnectedOrReconnecting reports paho's broader view, which includes a
// connection that is being re-established.
func (c *Client) IsConnectedOrReconnecting() bool {
	return c.client.IsConnected()
}

// wrapHandler adapts a MessageHandler to paho and recovers from panics so a
// bad payload can never take down paho's router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().
					Str("event", "mqtt.handler_panic").
					Str("topic", msg.Topic()).
					Interface("panic", r).
					Msg("message handler panic recovered")
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}

// await waits for token to complete, for ctx to be done, or for timeout,
// whichever comes first. Every outcome resolves: a request never stays
// pending past the timeout.
func await(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

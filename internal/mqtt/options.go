package mqtt

import (
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"mqttaction/pkg/types"
	"mqttaction/pkg/validation"
)

// Connection constants.
const (
	// connectTimeout bounds the dial plus CONNECT/CONNACK exchange.
	connectTimeout = 30 * time.Second

	// requestTimeout bounds subscribe, unsubscribe and publish acknowledgments.
	requestTimeout = 10 * time.Second

	// disconnectQuiesce is the time in milliseconds paho waits for in-flight
	// work before closing the socket.
	disconnectQuiesce = 250

	keepAlive   = 60 * time.Second
	pingTimeout = 10 * time.Second

	maxQoS = 2

	// DefaultClientIDPrefix is used when no prefix is configured.
	DefaultClientIDPrefix = "mqttaction"
)

// NewClientID returns a fresh client identifier. Every connect attempt uses a
// new one so that a half-open session on the broker never collides with it.
func NewClientID(prefix string) string {
	prefix = validation.SanitizeClientID(prefix)
	if prefix == "" {
		prefix = DefaultClientIDPrefix
	}
	return prefix + "-" + uuid.NewString()
}

// brokerURL builds the paho broker address for cfg.
func brokerURL(cfg types.ConnectionConfig) string {
	scheme := "tcp"
	if cfg.TLS.Enabled {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

// buildClientOptions creates paho options for a single connection instance.
//
// Automatic reconnect and connect-retry are disabled: a dropped connection is
// reported through the connection-lost handler and recovery belongs to the
// supervisor, which builds a brand new handle.
func buildClientOptions(o Options) (*pahomqtt.ClientOptions, error) {
	cfg := o.Config
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(o.ClientID)

	// Credentials only when a username is set; anonymous otherwise
	if strings.TrimSpace(cfg.Username) != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(pingTimeout)
	// Handlers run in arrival order so the newest message is published last
	opts.SetOrderMatters(true)

	if cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

package types

import "time"

// Default connection settings, used when nothing has been persisted yet.
const (
	DefaultHost  = "test.mosquitto.org"
	DefaultPort  = 1883
	DefaultTopic = "carTasker/message"
)

// Config represents the complete application configuration
type Config struct {
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Journal  JournalConfig  `mapstructure:"journal" yaml:"journal"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// MQTTConfig holds the persisted broker settings plus client tuning that
// does not take part in change detection.
type MQTTConfig struct {
	Connection     ConnectionConfig `mapstructure:",squash" yaml:",inline"`
	ClientIDPrefix string           `mapstructure:"client_id_prefix" yaml:"client_id_prefix,omitempty"`
	QoS            byte             `mapstructure:"qos" yaml:"qos,omitempty"`
}

// ConnectionConfig is an immutable snapshot of the settings the supervisor
// connects with. Snapshots are compared field by field.
type ConnectionConfig struct {
	Host     string    `mapstructure:"host" yaml:"host"`
	Port     uint16    `mapstructure:"port" yaml:"port"`
	Topic    string    `mapstructure:"topic" yaml:"topic"`
	Username string    `mapstructure:"username" yaml:"username"`
	Password string    `mapstructure:"password" yaml:"password"`
	TLS      TLSConfig `mapstructure:"tls" yaml:"tls,omitempty"`
}

// TLSConfig enables an ssl:// broker connection. Truststore and keystore are
// optional PKCS#12 files; without a truststore the system roots are used.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled,omitempty"`
	TruststorePath     string `mapstructure:"truststore" yaml:"truststore,omitempty"`
	TruststorePassword string `mapstructure:"truststore_password" yaml:"truststore_password,omitempty"`
	KeystorePath       string `mapstructure:"keystore" yaml:"keystore,omitempty"`
	KeystorePassword   string `mapstructure:"keystore_password" yaml:"keystore_password,omitempty"`
}

// DefaultConnectionConfig returns the public test broker settings.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Host:  DefaultHost,
		Port:  DefaultPort,
		Topic: DefaultTopic,
	}
}

// EndpointChanged reports whether any field that requires a fresh connection
// (address, credentials, TLS material) differs between c and other.
func (c ConnectionConfig) EndpointChanged(other ConnectionConfig) bool {
	return c.Host != other.Host ||
		c.Port != other.Port ||
		c.Username != other.Username ||
		c.Password != other.Password ||
		c.TLS != other.TLS
}

// TopicChanged reports whether only the subscription topic needs updating.
func (c ConnectionConfig) TopicChanged(other ConnectionConfig) bool {
	return c.Topic != other.Topic
}

// DispatchConfig controls how fresh messages are turned into actions
type DispatchConfig struct {
	MaxAge       time.Duration `mapstructure:"max_age" yaml:"max_age,omitempty"`
	OpenURLs     bool          `mapstructure:"open_urls" yaml:"open_urls"`
	PopupCommand []string      `mapstructure:"popup_command" yaml:"popup_command,omitempty"`
}

// JournalConfig holds the optional Kafka action journal settings
type JournalConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers  []string `mapstructure:"brokers" yaml:"brokers,omitempty"`
	Topic    string   `mapstructure:"topic" yaml:"topic,omitempty"`
	Security struct {
		Protocol           string `mapstructure:"protocol" yaml:"protocol,omitempty"`
		TruststorePath     string `mapstructure:"truststore" yaml:"truststore,omitempty"`
		TruststorePassword string `mapstructure:"truststore_password" yaml:"truststore_password,omitempty"`
		KeystorePath       string `mapstructure:"keystore" yaml:"keystore,omitempty"`
		KeystorePassword   string `mapstructure:"keystore_password" yaml:"keystore_password,omitempty"`
	} `mapstructure:"security" yaml:"security,omitempty"`
	Retry struct {
		Interval   time.Duration `mapstructure:"interval" yaml:"interval,omitempty"`
		MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries,omitempty"`
		MaxPending int           `mapstructure:"max_pending" yaml:"max_pending,omitempty"`
	} `mapstructure:"retry" yaml:"retry,omitempty"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen,omitempty"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level,omitempty"`
	Format string `mapstructure:"format" yaml:"format,omitempty"`
}

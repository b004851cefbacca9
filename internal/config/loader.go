// Package config loads the application configuration from a YAML file with
// environment overrides, applies defaults for missing values and validates
// the result. A missing file is not an error: the defaults describe the
// public test broker, as on a fresh install.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mqttaction/pkg/types"
	"mqttaction/pkg/validation"
)

// EnvPrefix prefixes every environment override, e.g. MQTTACTION_MQTT_HOST.
const EnvPrefix = "MQTTACTION"

// Defaults for the non-connection sections.
const (
	DefaultMaxAge         = 60 * time.Second
	DefaultJournalTopic   = "mqttaction.actions"
	DefaultRetryInterval  = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultMaxPending     = 1000
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultClientIDPrefix = "mqttaction"
)

// LoadFromFile reads configuration from configPath, falling back to defaults
// when the file does not exist, and validates it including TLS file paths.
func LoadFromFile(configPath string) (*types.Config, error) {
	return load(configPath, true)
}

// LoadForTesting loads like LoadFromFile but skips the keystore and
// truststore file checks.
func LoadForTesting(configPath string) (*types.Config, error) {
	return load(configPath, false)
}

func load(configPath string, checkFiles bool) (*types.Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	v := newViper()

	err := validation.ValidateConfigPath(configPath)
	switch {
	case err == nil:
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Nothing persisted yet
	default:
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	config := &types.Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyViperWorkarounds(v, config)
	applyDefaults(config)

	if err := validate(config, checkFiles); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// LoadConnection returns only the validated connection settings in
// configPath. The settings source uses it on every file change.
func LoadConnection(configPath string) (types.ConnectionConfig, error) {
	config, err := LoadForTesting(configPath)
	if err != nil {
		return types.ConnectionConfig{}, err
	}
	return config.MQTT.Connection, nil
}

// ValidateConfig exposes the validation function for testing
func ValidateConfig(config *types.Config, checkFiles bool) error {
	return validate(config, checkFiles)
}

// GetConfigPath returns the configuration file path from environment or default
func GetConfigPath() string {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return configPath
	}
	if configDir := os.Getenv("CONFIGS_DIR"); configDir != "" {
		return filepath.Join(configDir, "config.yaml")
	}
	return "./configs/config.yaml"
}

// newViper returns an instance with every key registered, so environment
// overrides apply even to keys absent from the file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := types.DefaultConnectionConfig()
	v.SetDefault("mqtt.host", def.Host)
	v.SetDefault("mqtt.port", def.Port)
	v.SetDefault("mqtt.topic", def.Topic)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.tls.enabled", false)
	v.SetDefault("mqtt.tls.truststore", "")
	v.SetDefault("mqtt.tls.truststore_password", "")
	v.SetDefault("mqtt.tls.keystore", "")
	v.SetDefault("mqtt.tls.keystore_password", "")
	v.SetDefault("mqtt.client_id_prefix", DefaultClientIDPrefix)
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("dispatch.max_age", DefaultMaxAge)
	v.SetDefault("dispatch.open_urls", true)
	v.SetDefault("dispatch.popup_command", []string{})

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.brokers", []string{})
	v.SetDefault("journal.topic", DefaultJournalTopic)
	v.SetDefault("journal.security.protocol", "")
	v.SetDefault("journal.retry.interval", DefaultRetryInterval)
	v.SetDefault("journal.retry.max_retries", DefaultMaxRetries)
	v.SetDefault("journal.retry.max_pending", DefaultMaxPending)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	return v
}

// applyViperWorkarounds fixes viper's boolean and nested struct unmarshaling
// issues for keys that arrive through the environment only.
func applyViperWorkarounds(v *viper.Viper, config *types.Config) {
	config.MQTT.Connection.TLS.Enabled = v.GetBool("mqtt.tls.enabled")
	config.Dispatch.OpenURLs = v.GetBool("dispatch.open_urls")
	config.Journal.Enabled = v.GetBool("journal.enabled")

	// A comma separated env value arrives as a single string
	if brokers := v.GetStringSlice("journal.brokers"); len(brokers) == 1 && strings.Contains(brokers[0], ",") {
		config.Journal.Brokers = strings.Split(brokers[0], ",")
	}
}

// applyDefaults sets default values for fields left empty in the file.
func applyDefaults(config *types.Config) {
	def := types.DefaultConnectionConfig()
	conn := &config.MQTT.Connection
	conn.Host = validation.SanitizeHost(conn.Host)
	if conn.Host == "" {
		conn.Host = def.Host
	}
	if conn.Port == 0 {
		conn.Port = def.Port
	}
	if conn.Topic == "" {
		conn.Topic = def.Topic
	}
	if config.MQTT.ClientIDPrefix == "" {
		config.MQTT.ClientIDPrefix = DefaultClientIDPrefix
	}
	if config.Dispatch.MaxAge <= 0 {
		config.Dispatch.MaxAge = DefaultMaxAge
	}
	if config.Journal.Topic == "" {
		config.Journal.Topic = DefaultJournalTopic
	}
	if config.Journal.Retry.Interval <= 0 {
		config.Journal.Retry.Interval = DefaultRetryInterval
	}
	if config.Journal.Retry.MaxRetries <= 0 {
		config.Journal.Retry.MaxRetries = DefaultMaxRetries
	}
	if config.Journal.Retry.MaxPending <= 0 {
		config.Journal.Retry.MaxPending = DefaultMaxPending
	}
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.Format == "" {
		config.Logging.Format = DefaultLogFormat
	}
}

// allowedKeystoreDirs lists where TLS material may live.
func allowedKeystoreDirs() []string {
	dirs := []string{"/etc/ssl", "/etc/mqttaction", "./ssl", "./certs", "./configs"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(homeDir, ".mqttaction"), filepath.Join(homeDir, ".ssl"))
	}
	return dirs
}

// validate checks configuration for required fields and logical consistency
// and sanitizes credentials in place.
func validate(config *types.Config, checkFiles bool) error {
	conn := &config.MQTT.Connection
	if err := validation.ValidateMQTTBroker(conn.Host, int(conn.Port)); err != nil {
		return fmt.Errorf("invalid MQTT broker configuration: %w", err)
	}
	if err := validation.ValidateTopicFilter(conn.Topic); err != nil {
		return fmt.Errorf("invalid MQTT topic: %w", err)
	}
	if config.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT qos %d: must be 0, 1 or 2", config.MQTT.QoS)
	}

	conn.Username = validation.SanitizeUsername(conn.Username)
	conn.Password = validation.SanitizePassword(conn.Password)
	config.MQTT.ClientIDPrefix = validation.SanitizeClientID(config.MQTT.ClientIDPrefix)

	if checkFiles && conn.TLS.Enabled {
		dirs := allowedKeystoreDirs()
		if conn.TLS.TruststorePath != "" {
			if err := validation.ValidateKeystorePath(conn.TLS.TruststorePath, dirs); err != nil {
				return fmt.Errorf("invalid MQTT truststore path: %w", err)
			}
		}
		if conn.TLS.KeystorePath != "" {
			if err := validation.ValidateKeystorePath(conn.TLS.KeystorePath, dirs); err != nil {
				return fmt.Errorf("invalid MQTT keystore path: %w", err)
			}
		}
	}

	if config.Journal.Enabled {
		if len(config.Journal.Brokers) == 0 {
			return fmt.Errorf("at least one Kafka broker is required when the journal is enabled")
		}
		for _, broker := range config.Journal.Brokers {
			if err := validation.ValidateBrokerAddress(broker); err != nil {
				return fmt.Errorf("invalid Kafka broker address %s: %w", broker, err)
			}
		}

		sec := config.Journal.Security
		if sec.Protocol != "" && sec.Protocol != "PLAINTEXT" && sec.Protocol != "SSL" {
			return fmt.Errorf("unsupported journal security protocol %q", sec.Protocol)
		}
		if checkFiles && sec.Protocol == "SSL" {
			dirs := allowedKeystoreDirs()
			if sec.KeystorePath != "" {
				if err := validation.ValidateKeystorePath(sec.KeystorePath, dirs); err != nil {
					return fmt.Errorf("invalid keystore path: %w", err)
				}
			}
			if sec.TruststorePath != "" {
				if err := validation.ValidateKeystorePath(sec.TruststorePath, dirs); err != nil {
					return fmt.Errorf("invalid truststore path: %w", err)
				}
			}
		}
	}

	switch config.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", config.Logging.Format)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mqttaction/pkg/types"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoading(t *testing.T) {
	path := writeFile(t, `
mqtt:
  host: broker.local
  port: 8883
  topic: car/+/message
  username: "  driver "
  password: secret
  qos: 2
dispatch:
  max_age: 90s
  open_urls: false
  popup_command: ["notify-send", "{text}"]
journal:
  enabled: true
  brokers: ["localhost:9092"]
logging:
  level: debug
  format: console
`)

	cfg, err := LoadForTesting(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	want := types.ConnectionConfig{
		Host:     "broker.local",
		Port:     8883,
		Topic:    "car/+/message",
		Username: "driver",
		Password: "secret",
	}
	if cfg.MQTT.Connection != want {
		t.Errorf("connection = %+v, want %+v", cfg.MQTT.Connection, want)
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("Expected qos 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.Dispatch.MaxAge != 90*time.Second {
		t.Errorf("Expected max age 90s, got %s", cfg.Dispatch.MaxAge)
	}
	if cfg.Dispatch.OpenURLs {
		t.Error("Expected open_urls false")
	}
	if len(cfg.Dispatch.PopupCommand) != 2 || cfg.Dispatch.PopupCommand[0] != "notify-send" {
		t.Errorf("unexpected popup command %v", cfg.Dispatch.PopupCommand)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Topic != DefaultJournalTopic {
		t.Errorf("unexpected journal config %+v", cfg.Journal)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.MQTT.Connection != types.DefaultConnectionConfig() {
		t.Errorf("connection = %+v, want defaults", cfg.MQTT.Connection)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("Expected default qos 1, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.ClientIDPrefix != DefaultClientIDPrefix {
		t.Errorf("Expected client id prefix %q, got %q", DefaultClientIDPrefix, cfg.MQTT.ClientIDPrefix)
	}
	if cfg.Dispatch.MaxAge != DefaultMaxAge {
		t.Errorf("Expected max age %s, got %s", DefaultMaxAge, cfg.Dispatch.MaxAge)
	}
	if !cfg.Dispatch.OpenURLs {
		t.Error("Expected open_urls to default to true")
	}
	if cfg.Journal.Enabled {
		t.Error("Expected journal disabled by default")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MQTTACTION_MQTT_HOST", "env.broker")
	t.Setenv("MQTTACTION_MQTT_PORT", "1884")
	t.Setenv("MQTTACTION_JOURNAL_ENABLED", "true")
	t.Setenv("MQTTACTION_JOURNAL_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadForTesting(writeFile(t, "mqtt:\n  host: file.broker\n"))
	if err != nil {
		t.Fatalf("LoadForTesting() error = %v", err)
	}
	if cfg.MQTT.Connection.Host != "env.broker" || cfg.MQTT.Connection.Port != 1884 {
		t.Errorf("env override not applied: %+v", cfg.MQTT.Connection)
	}
	if !cfg.Journal.Enabled {
		t.Error("Expected journal enabled from env")
	}
	if len(cfg.Journal.Brokers) != 2 || cfg.Journal.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Journal.Brokers)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{name: "bad host", content: "mqtt:\n  host: bad;host\n", errContains: "invalid MQTT broker"},
		{name: "bad topic", content: "mqtt:\n  topic: a/#/b\n", errContains: "invalid MQTT topic"},
		{name: "bad qos", content: "mqtt:\n  qos: 3\n", errContains: "qos"},
		{name: "journal without brokers", content: "journal:\n  enabled: true\n", errContains: "at least one Kafka broker"},
		{name: "journal bad broker", content: "journal:\n  enabled: true\n  brokers: [\"nohost\"]\n", errContains: "must include port"},
		{name: "journal bad protocol", content: "journal:\n  enabled: true\n  brokers: [\"k:9092\"]\n  security:\n    protocol: SASL\n", errContains: "security protocol"},
		{name: "bad log format", content: "logging:\n  format: xml\n", errContains: "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadForTesting(writeFile(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error = %v, want error containing %s", err, tt.errContains)
			}
		})
	}
}

func TestTLSPathsCheckedOnlyOutsideTests(t *testing.T) {
	path := writeFile(t, "mqtt:\n  tls:\n    enabled: true\n    truststore: /nonexistent/trust.p12\n")

	if _, err := LoadForTesting(path); err != nil {
		t.Errorf("LoadForTesting() error = %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("LoadFromFile() accepted a missing truststore")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CONFIGS_DIR", "")
	if got := GetConfigPath(); got != "./configs/config.yaml" {
		t.Errorf("GetConfigPath() = %q", got)
	}

	t.Setenv("CONFIGS_DIR", "/tmp/cfg")
	if got := GetConfigPath(); got != filepath.Join("/tmp/cfg", "config.yaml") {
		t.Errorf("GetConfigPath() = %q", got)
	}

	t.Setenv("CONFIG_FILE", "/etc/mqttaction.yaml")
	if got := GetConfigPath(); got != "/etc/mqttaction.yaml" {
		t.Errorf("GetConfigPath() = %q", got)
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"mqttaction/pkg/types"
)

// connectionKeys are the mqtt section keys owned by WriteConnection. Other
// keys of the section, such as qos, are preserved.
var connectionKeys = []string{"host", "port", "topic", "username", "password", "tls"}

// WriteConnection persists cfg as the mqtt section of the file at path. The
// rest of the file is kept, and the file is replaced atomically so a watcher
// never observes a partial write.
func WriteConnection(path string, cfg types.ConnectionConfig) error {
	doc := map[string]any{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse existing config %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("read config %s: %w", path, err)
	}

	section, _ := doc["mqtt"].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	for _, key := range connectionKeys {
		delete(section, key)
	}

	encoded, err := connectionMap(cfg)
	if err != nil {
		return err
	}
	for key, value := range encoded {
		section[key] = value
	}
	doc["mqtt"] = section

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := renameio.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// connectionMap renders cfg through its yaml tags so the persisted keys match
// the ones the loader reads.
func connectionMap(cfg types.ConnectionConfig) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode connection settings: %w", err)
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode connection settings: %w", err)
	}
	return m, nil
}

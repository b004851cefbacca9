package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateKeystorePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "client.p12")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		path        string
		allowedDirs []string
		errContains string
	}{
		{name: "empty path", path: "", errContains: "cannot be empty"},
		{name: "path traversal", path: "../../../etc/passwd", errContains: "path traversal"},
		{name: "valid file no restrictions", path: file},
		{name: "valid file in allowed dir", path: file, allowedDirs: []string{dir}},
		{
			name:        "file outside allowed dirs",
			path:        file,
			allowedDirs: []string{filepath.Join(dir, "other")},
			errContains: "not in allowed directories",
		},
		{name: "directory", path: dir, errContains: "not a regular file"},
		{name: "missing file", path: filepath.Join(dir, "missing.p12"), errContains: "does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeystorePath(tt.path, tt.allowedDirs)
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("ValidateKeystorePath() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidateKeystorePath() error = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

func TestValidateConfigPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("mqtt: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(file); err != nil {
		t.Errorf("ValidateConfigPath(existing) error = %v", err)
	}
	if err := ValidateConfigPath(""); err == nil {
		t.Error("ValidateConfigPath(\"\") accepted empty path")
	}
	if err := ValidateConfigPath(dir); err == nil {
		t.Error("ValidateConfigPath(dir) accepted a directory")
	}

	// Missing files are distinguishable so the loader can fall back to defaults.
	err := ValidateConfigPath(filepath.Join(dir, "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ValidateConfigPath(missing) error = %v, want os.ErrNotExist", err)
	}
}

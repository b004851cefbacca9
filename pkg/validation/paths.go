// Package validation provides input validation for the connection settings:
// broker addresses, topic filters, credentials and the paths of TLS and
// configuration files.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateKeystorePath validates the path of a PKCS#12 truststore or keystore.
// It rejects traversal, optionally restricts the file to allowedDirs, and
// checks that it is a readable regular file.
func ValidateKeystorePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed in file path")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid file path: %w", err)
	}
	cleanPath := filepath.Clean(absPath)

	if len(allowedDirs) > 0 {
		allowed := false
		for _, dir := range allowedDirs {
			absDir, err := filepath.Abs(dir)
			if err != nil {
				continue
			}
			if cleanPath == absDir || strings.HasPrefix(cleanPath, absDir+string(filepath.Separator)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("file path not in allowed directories")
		}
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", cleanPath)
		}
		return fmt.Errorf("file not accessible: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a regular file: %s", cleanPath)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return fmt.Errorf("file not readable: %w", err)
	}
	return f.Close()
}

// ValidateConfigPath checks that the configuration file exists. A missing
// file is reported with os.ErrNotExist so callers can fall back to defaults.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(filepath.Clean(absPath))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file %s: %w", absPath, os.ErrNotExist)
		}
		return fmt.Errorf("config file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path is a directory: %s", absPath)
	}
	return nil
}

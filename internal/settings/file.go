package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"mqttaction/internal/config"
	"mqttaction/pkg/types"
)

// DefaultDebounce collapses the burst of events an editor or an atomic
// rename produces into one reload.
const DefaultDebounce = 500 * time.Millisecond

// FileSource follows the mqtt section of a YAML configuration file. A
// snapshot is emitted only when the reloaded settings differ from the last
// emitted ones; a file that fails to load or validate keeps the previous
// settings.
type FileSource struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger
	mem      *MemorySource

	reloadMu sync.Mutex
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) FileOption {
	return func(f *FileSource) {
		if d > 0 {
			f.debounce = d
		}
	}
}

// WithFileLogger sets the logger.
func WithFileLogger(l zerolog.Logger) FileOption {
	return func(f *FileSource) { f.logger = l }
}

// NewFileSource loads the initial snapshot from path. A missing file yields
// the default settings.
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("settings path: %w", err)
	}

	f := &FileSource{
		path:     filepath.Clean(abs),
		debounce: DefaultDebounce,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	initial, err := config.LoadConnection(f.path)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	f.mem = NewMemorySource(initial)
	return f, nil
}

// Path returns the absolute path of the followed file.
func (f *FileSource) Path() string { return f.path }

// Current returns the latest loaded snapshot.
func (f *FileSource) Current() types.ConnectionConfig { return f.mem.Current() }

// Watch delivers the current snapshot followed by every change.
func (f *FileSource) Watch(ctx context.Context) <-chan types.ConnectionConfig {
	return f.mem.Watch(ctx)
}

// Update persists cfg atomically and publishes it right away. The file
// watcher sees the same content afterwards and emits nothing more.
func (f *FileSource) Update(cfg types.ConnectionConfig) error {
	if err := config.WriteConnection(f.path, cfg); err != nil {
		return err
	}
	// Reload so the published snapshot is the sanitized one
	return f.Reload()
}

// Reload reads the file and publishes the settings if they changed.
func (f *FileSource) Reload() error {
	f.reloadMu.Lock()
	defer f.reloadMu.Unlock()

	next, err := config.LoadConnection(f.path)
	if err != nil {
		f.logger.Error().
			Err(err).
			Str("event", "settings.reload_failed").
			Str("path", f.path).
			Msg("keeping previous settings")
		return err
	}

	if next == f.mem.Current() {
		f.logger.Debug().Str("event", "settings.unchanged").Msg("settings file touched without changes")
		return nil
	}

	f.mem.Set(next)
	f.logger.Info().
		Str("event", "settings.changed").
		Str("host", next.Host).
		Uint16("port", next.Port).
		Str("topic", next.Topic).
		Bool("auth", next.Username != "").
		Msg("connection settings changed")
	return nil
}

// Run watches the file until ctx is done. The directory is watched rather
// than the file so replacing the file by rename keeps being observed.
func (f *FileSource) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	f.logger.Info().
		Str("event", "settings.watcher_started").
		Str("path", f.path).
		Msg("watching settings file for changes")

	debounce := time.NewTimer(f.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info().Str("event", "settings.watcher_stopped").Msg("settings watcher stopped")
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				f.logger.Debug().
					Str("event", "settings.file_changed").
					Str("op", ev.Op.String()).
					Msg("settings file changed")
				debounce.Reset(f.debounce)
			}

		case <-debounce.C:
			_ = f.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error().
				Err(err).
				Str("event", "settings.watcher_error").
				Msg("settings watcher error")
		}
	}
}

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long a file must stay quiet before a rebuild.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls onChange whenever the file at path is written, created or
// renamed into place, once the changes have settled for debounce. The
// parent directory is watched so editors that replace the file are seen.
// Watch blocks until ctx is done. Errors from onChange are logged and do
// not stop watching.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *zerolog.Logger, onChange func(context.Context) error) error {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(absPath), err)
	}
	logger.Info().Str("path", absPath).Msg("Watching for changes")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug().Str("path", name).Str("event", event.Op.String()).Msg("Change detected")
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("File watcher error")

		case <-timer.C:
			logger.Info().Str("path", absPath).Msg("Source changed, rebuilding")
			if err := onChange(ctx); err != nil {
				logger.Error().Err(err).Msg("Rebuild failed")
			}
		}
	}
}

package schemafile

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long Watch waits after the last event before reloading.
// Editors often write a file in several steps.
const settle = 150 * time.Millisecond

// Watch calls fn with the freshly loaded document every time the file at
// path changes, until ctx is done. The parent directory is watched so that
// editors replacing the file are noticed. Load and fn errors are logged and
// watching continues. A nil logger discards those reports.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(context.Context, *Document) error) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info("watching schema file", "path", abs)

	timer := time.NewTimer(settle)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(settle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("schema watcher error", "error", err)
		case <-timer.C:
			doc, err := Load(abs)
			if err != nil {
				logger.Error("schema file not applied", "path", abs, "error", err)
				continue
			}
			if err := fn(ctx, doc); err != nil {
				logger.Error("schema file not applied", "path", abs, "error", err)
			}
		}
	}
}

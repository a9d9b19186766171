package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch starts watching path for changes and hot-reloads cfg via
// ReplaceFrom whenever the file is rewritten, so code holding cfg sees
// edited settings without a restart. The returned stop function closes the underlying watcher;
// callers should defer it. Reload errors are logged and otherwise
// ignored — the previous in-memory config keeps serving.
func Watch(path string, cfg *Config) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := Load(path)
				if err != nil {
					slog.Warn("config reload failed, keeping previous config", "component", "config", "path", path, "error", err)
					continue
				}
				cfg.ReplaceFrom(reloaded)
				slog.Info("config reloaded", "component", "config", "path", path)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "component", "config", "error", werr)
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}

package easymodel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig calls fn with the configuration parsed from path each time the
// file is written, until ctx is done. The directory is watched, so editors
// that replace the file are seen too. Documents that fail to parse are
// logged and skipped.
//
//	go easymodel.WatchConfig(ctx, "database.yaml", log, func(cfg *easymodel.Config) {
//	    _ = conns.Reload(cfg)
//	})
func WatchConfig(ctx context.Context, path string, log *slog.Logger, fn func(*Config)) error {
	if log == nil {
		log = slog.Default()
	}
	path = filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("easymodel: watch config: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("easymodel: watch config: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				log.WarnContext(ctx, "config reload skipped", "path", path, "error", err)
				continue
			}
			log.InfoContext(ctx, "config reloaded", "path", path, "datasources", cfg.Names())
			fn(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "config watcher error", "path", path, "error", err)
		}
	}
}

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/muurk/wifiportal/internal/logging"
	"go.uber.org/zap"
)

// Watch emits the settings at path every time the file is written. The
// directory is watched rather than the file so that the atomic rename in
// Save is seen. Files that fail to parse or validate are logged and skipped.
// The channel closes when ctx ends.
func Watch(ctx context.Context, path string) (<-chan *Settings, error) {
	path, err := ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	out := make(chan *Settings)
	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				s, err := reload(path)
				if err != nil {
					logging.Warn("Ignoring settings change", zap.String("path", path), zap.Error(err))
					continue
				}
				logging.Info("Settings reloaded", zap.String("path", path))

				select {
				case out <- s:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("Settings watcher error", zap.Error(err))
			}
		}
	}()

	return out, nil
}

func reload(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if errs := s.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	return s, nil
}

package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theirongolddev/redline/internal/watcher"
)

// Watch reloads the config file at path whenever it changes and hands the
// result to onChange. Configs that fail to load or validate are logged and
// skipped. It returns a close function to stop watching.
func Watch(path string, onChange func(*Config), log *logrus.Entry) (func(), error) {
	if path == "" {
		path = DefaultPath()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	w, err := watcher.New(func(events []watcher.Event) {
		cfg, err := Load(absPath)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			if log != nil {
				log.WithError(err).Warn("ignoring changed config")
			}
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	}, watcher.WithDebounceDuration(500*time.Millisecond), watcher.WithEventFilter(watcher.Create|watcher.Write|watcher.Rename))
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}

	if err := w.Add(absPath); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config path %s: %w", absPath, err)
	}

	return func() {
		w.Close()
	}, nil
}

// Package confwatch reloads selected configuration settings at runtime.
package confwatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Settings are the configuration values that may change at runtime.
type Settings struct {
	LogLevel     slog.Level
	BackendToken string
}

// ReloadFunc loads the config file at path and returns the runtime
// settings. An error leaves the current settings in place.
type ReloadFunc func(path string) (Settings, error)

// TokenSetter receives a rotated backend auth token.
type TokenSetter interface {
	SetAuthToken(token string)
}

// Watch monitors a config file and reapplies the log level and backend
// token when the file changes, until ctx is cancelled. tokens may be nil
// when no backend client should follow rotations.
//
// The parent directory is watched rather than the file itself: editors and
// config-management tools typically replace the file (write temp, rename),
// which drops a watch held on the inode. Events are debounced so a
// write-then-rename sequence triggers a single reload.
func Watch(ctx context.Context, path string, levelVar *slog.LevelVar, tokens TokenSetter, reload ReloadFunc, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("confwatch: started", slog.String("path", abs))

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(200 * time.Millisecond)
			debounceCh = debounce.C
		} else {
			debounce.Reset(200 * time.Millisecond)
		}
	}

	var lastToken string
	tokenSeen := false

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("confwatch: stopped")
			return nil

		case <-debounceCh:
			settings, loadErr := reload(abs)
			if loadErr != nil {
				logger.Warn("confwatch: reload failed, keeping current settings",
					slog.String("error", loadErr.Error()))
				continue
			}
			if settings.LogLevel != levelVar.Level() {
				logger.Info("confwatch: log level changed",
					slog.String("from", levelVar.Level().String()),
					slog.String("to", settings.LogLevel.String()))
				levelVar.Set(settings.LogLevel)
			}
			if tokens != nil && (!tokenSeen || settings.BackendToken != lastToken) {
				tokens.SetAuthToken(settings.BackendToken)
				if tokenSeen {
					// The token value itself never reaches the log.
					logger.Info("confwatch: backend token rotated")
				}
				lastToken = settings.BackendToken
				tokenSeen = true
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("confwatch: error", slog.String("error", watchErr.Error()))
		}
	}
}

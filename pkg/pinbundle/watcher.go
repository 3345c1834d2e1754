// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinbundle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeremyhahn/go-certpin/pkg/certpin"
)

// DefaultReloadDelay is the default debounce window for filesystem events.
// Pin rotations usually touch several files; one reload covers the burst.
const DefaultReloadDelay = 500 * time.Millisecond

// WatcherConfig configures a bundle watcher.
type WatcherConfig struct {

	// Dir is the bundle directory to watch. Required.
	Dir string

	// Policy receives the reloaded pinned set. Required.
	Policy *certpin.Policy

	// ReloadDelay debounces bursts of filesystem events.
	// Defaults to DefaultReloadDelay.
	ReloadDelay time.Duration

	// OnError, when set, is called for reload and watch errors. The
	// watcher keeps running; the policy keeps its last good pinned set.
	OnError func(error)

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher keeps a policy's pinned set synchronized with a bundle directory.
// A failed reload leaves the previous pinned set in effect.
type Watcher struct {
	dir       string
	policy    *certpin.Policy
	delay     time.Duration
	onError   func(error)
	logger    *slog.Logger
	loader    *Loader
	fsw       *fsnotify.Watcher
	closeOnce sync.Once
}

// NewWatcher creates a watcher for the given bundle directory.
func NewWatcher(cfg *WatcherConfig) (*Watcher, error) {
	if cfg == nil || cfg.Dir == "" || cfg.Policy == nil {
		return nil, fmt.Errorf("%w: dir and policy are required", ErrInvalidConfig)
	}

	delay := cfg.ReloadDelay
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bundle_watcher")

	loader, err := NewLoader(&LoaderConfig{Logger: logger})
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWatchFailed, err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("%w: %w", ErrWatchFailed, err)
	}

	return &Watcher{
		dir:     cfg.Dir,
		policy:  cfg.Policy,
		delay:   delay,
		onError: cfg.OnError,
		logger:  logger,
		loader:  loader,
		fsw:     fsw,
	}, nil
}

// Start performs an initial load and then blocks, reloading the bundle
// after each debounced burst of filesystem changes, until ctx is done or
// the watcher is closed.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.reload(); err != nil {
		w.fail(err)
	}

	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.logger.Debug("bundle change detected",
					"file", event.Name, "op", event.Op.String())
				timer.Reset(w.delay)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.fail(fmt.Errorf("%w: %w", ErrWatchFailed, err))
		case <-timer.C:
			if err := w.reload(); err != nil {
				w.fail(err)
			}
		}
	}
}

// Close stops the watcher. A blocked Start returns nil.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) reload() error {
	certs, err := w.loader.Load(w.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	w.policy.SetPins(certs)
	w.logger.Info("pinned certificates reloaded",
		"dir", w.dir, "certificates", len(certs))
	return nil
}

func (w *Watcher) fail(err error) {
	w.logger.Warn("bundle watch error", "error", err)
	if w.onError != nil {
		w.onError(err)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/fsnotify.v1"

	"github.com/coolbeans/codetree/pkg/profile"
)

const watchDebounce = 250 * time.Millisecond

// watchParse runs the parse once, then again after every change to the input file or,
// when a profile directory is configured, to a profile. It returns when ctx is done.
func watchParse(ctx context.Context, run *parseRun, registry *profile.DefaultRegistry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	input, err := filepath.Abs(run.input)
	if err != nil {
		return err
	}
	// Editors often replace files on save; watch the directory and filter by name.
	if err := watcher.Add(filepath.Dir(input)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(input), err)
	}

	changed := make(chan struct{}, 1)
	trigger := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	registry.SetOnChange(func(event string, p *profile.Profile) {
		slog.Info("profile.changed", "event", event, "profile", p.ProfileID)
		trigger()
	})
	if err := registry.Watch(); err == nil {
		defer registry.StopWatch()
	}

	reparse := func() {
		if _, err := run.run(ctx); err != nil {
			slog.Error("parse.err", "input", run.input, "err", err)
		}
		fmt.Fprintf(run.out, "\nWatching %s for changes (Ctrl+C to stop)\n", run.input)
	}
	reparse()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != input {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				trigger()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("parse.watch.err", "input", run.input, "err", err)

		case <-changed:
			debounce = time.After(watchDebounce)

		case <-debounce:
			debounce = nil
			reparse()
		}
	}
}

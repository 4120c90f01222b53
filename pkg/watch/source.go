// Package watch monitors a directory of page sources and keeps a library in step with it:
// new and changed files are parsed into the library as they appear.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/fsnotify.v1"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/library"
	"github.com/coolbeans/codetree/pkg/profile"
)

// DefaultPatterns are the page source files a watcher picks up.
var DefaultPatterns = []string{"*.txt", "*.jsonl", "*.ndjson"}

// Action describes what happened to one source file.
type Action string

const (
	ActionIngested Action = "ingested"
	ActionSkipped  Action = "skipped"
	ActionRemoved  Action = "removed"
	ActionFailed   Action = "failed"
)

// Config configures a directory watcher.
type Config struct {
	// Dir is the directory holding page sources. Subdirectories are not watched.
	Dir string

	// Patterns are glob patterns for file names (default DefaultPatterns).
	Patterns []string

	// Debounce is how long a file must stay quiet before it is parsed (default 500ms).
	Debounce time.Duration

	// Profile configures parsing; nil uses the embedded default.
	Profile *profile.Profile

	// RemoveDeleted drops a document from the library when its source file goes away.
	RemoveDeleted bool
}

// Event reports the outcome for one source file.
type Event struct {
	Path       string                 `json:"path"`
	DocumentID string                 `json:"document_id"`
	Action     Action                 `json:"action"`
	Entry      *library.DocumentEntry `json:"entry,omitempty"`
	Err        error                  `json:"-"`
}

// Watcher ingests page sources from a directory into a library.
type Watcher struct {
	lib    *library.Library
	cfg    Config
	logger *slog.Logger
	sinks  []diag.Sink

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a watcher for cfg.Dir that writes into lib.
func New(lib *library.Library, cfg Config) *Watcher {
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	return &Watcher{
		lib:    lib,
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// SetLogger replaces the logger used for watch events.
func (w *Watcher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// SetDiagnostics sends the parse diagnostics of every ingested file to sinks.
func (w *Watcher) SetDiagnostics(sinks ...diag.Sink) {
	w.sinks = sinks
}

// Matches reports whether a file name matches one of the configured patterns.
func (w *Watcher) Matches(name string) bool {
	for _, pattern := range w.cfg.Patterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Scan ingests every matching file currently in the directory, in name order.
// Unchanged sources are reported as skipped.
func (w *Watcher) Scan(ctx context.Context) ([]Event, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", w.cfg.Dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !w.Matches(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(w.cfg.Dir, entry.Name()))
	}
	sort.Strings(paths)

	events := make([]Event, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		events = append(events, w.Ingest(path))
	}
	return events, nil
}

// Ingest parses one source file into the library.
func (w *Watcher) Ingest(path string) Event {
	documentID := library.DeriveDocumentID(path)
	event := Event{Path: path, DocumentID: documentID}

	sourceText, err := os.ReadFile(path)
	if err != nil {
		event.Action, event.Err = ActionFailed, err
		return event
	}

	previous := w.lib.GetDocument(documentID)
	entry, err := w.lib.AddDocument(documentID, sourceText, library.AddOptions{
		Name:       documentID,
		Format:     library.DetectFormat(path),
		Profile:    w.cfg.Profile,
		SourceInfo: path,
	}, w.sinks...)
	if err != nil {
		event.Action, event.Err = ActionFailed, err
		event.Entry = w.lib.GetDocument(documentID)
		return event
	}

	event.Entry = entry
	if previous != nil && entry == previous {
		event.Action = ActionSkipped
	} else {
		event.Action = ActionIngested
	}
	return event
}

func (w *Watcher) remove(path string) Event {
	documentID := library.DeriveDocumentID(path)
	event := Event{Path: path, DocumentID: documentID, Action: ActionRemoved}
	if w.lib.GetDocument(documentID) == nil {
		event.Action = ActionSkipped
		return event
	}
	if err := w.lib.RemoveDocument(documentID); err != nil {
		event.Action, event.Err = ActionFailed, err
	}
	return event
}

// Start begins watching the directory. fn receives one Event per debounced change and
// is called from the watch goroutine.
func (w *Watcher) Start(fn func(Event)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return fmt.Errorf("watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(w.cfg.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching directory %s: %w", w.cfg.Dir, err)
	}

	w.watcher = watcher
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})

	go w.watchLoop(watcher, w.stopChan, w.done, fn)
	return nil
}

// Stop stops watching and waits for the watch goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stop, done, watcher := w.stopChan, w.done, w.watcher
	w.stopChan, w.done, w.watcher = nil, nil, nil
	w.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	watcher.Close()
	<-done
}

func (w *Watcher) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}, done chan<- struct{}, fn func(Event)) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.Debounce / 2)
	defer ticker.Stop()

	// path -> time after which the file is considered settled
	pending := make(map[string]time.Time)

	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !w.Matches(filepath.Base(event.Name)) {
				continue
			}

			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[event.Name] = time.Now().Add(w.cfg.Debounce)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, event.Name)
				if w.cfg.RemoveDeleted {
					fn(w.remove(event.Name))
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch.err", "dir", w.cfg.Dir, "err", err)

		case now := <-ticker.C:
			for path, due := range pending {
				if now.Before(due) {
					continue
				}
				delete(pending, path)
				result := w.Ingest(path)
				w.logger.Info("watch.ingest", "path", path, "action", result.Action, "err", result.Err)
				fn(result)
			}
		}
	}
}

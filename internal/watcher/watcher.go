// Package watcher observes a single directory for markdown files, emitting
// an event only after a file has stopped changing. Detection is two-stage:
// a per-path debounce timer absorbs bursts of write events, then a
// stability check confirms the file is no longer growing before it is read.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/orchd-dev/orchd/internal/fileutil"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
)

// stabilityBackoff is the wait schedule between stat snapshots.
var stabilityBackoff = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

// FileReady is emitted when a watched file has settled and been read.
type FileReady struct {
	Path    string
	Content string
}

// Handler receives FileReady events. Handlers run on their own goroutines;
// a slow handler does not block event ingestion.
type Handler func(ctx context.Context, event FileReady)

// Watcher observes one directory, non-recursively, for .md files.
type Watcher struct {
	dir       string
	debounce  time.Duration
	suffix    string
	stability bool
	handler   Handler

	mu        sync.Mutex
	timers    map[string]*time.Timer
	inFlight  map[string]struct{}
	stopped   bool
	stopOnce  sync.Once
	cancel    context.CancelFunc
	loopDone  chan struct{}
	callbacks sync.WaitGroup

	fsw *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the per-path quiet interval before stability checks.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithSuffix restricts events to paths with the given filename suffix,
// e.g. "_plan.md".
func WithSuffix(suffix string) Option {
	return func(w *Watcher) { w.suffix = suffix }
}

// WithStabilityCheck toggles size-stability verification after the
// debounce. When disabled a file is read as soon as its timer fires.
func WithStabilityCheck(enabled bool) Option {
	return func(w *Watcher) { w.stability = enabled }
}

// New creates a watcher over dir. Start must be called to begin watching.
func New(dir string, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:       dir,
		debounce:  500 * time.Millisecond,
		stability: true,
		handler:   handler,
		timers:    make(map[string]*time.Timer),
		inFlight:  make(map[string]struct{}),
		loopDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The watch loop runs until Stop is called or the
// context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return err
	}
	w.fsw = fsw

	ctx, w.cancel = context.WithCancel(ctx)
	go w.watchLoop(ctx)

	logger.Info(ctx, "Watching directory", tag.Dir(w.dir))
	return nil
}

// Stop cancels the watch loop, clears pending timers and waits for the
// loop to exit. In-flight callbacks are allowed to finish. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		for path, timer := range w.timers {
			timer.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()

		if w.cancel != nil {
			w.cancel()
			<-w.loopDone
		}
		w.callbacks.Wait()
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.loopDone)
	defer func() {
		_ = w.fsw.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}
			w.scheduleCheck(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "Watch error", tag.Dir(w.dir), tag.Error(err))
		}
	}
}

// accepts filters paths: markdown only, no dotfiles, optional suffix.
func (w *Watcher) accepts(path string) bool {
	if !fileutil.IsMarkdownFile(path) {
		return false
	}
	if w.suffix != "" && !strings.HasSuffix(filepath.Base(path), w.suffix) {
		return false
	}
	return true
}

// scheduleCheck restarts the debounce timer for path. Only when the timer
// fires without further events does the stability check begin.
func (w *Watcher) scheduleCheck(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		if w.stopped {
			w.mu.Unlock()
			return
		}
		if _, busy := w.inFlight[path]; busy {
			w.mu.Unlock()
			return
		}
		w.inFlight[path] = struct{}{}
		w.callbacks.Add(1)
		w.mu.Unlock()

		go func() {
			defer w.callbacks.Done()
			defer func() {
				w.mu.Lock()
				delete(w.inFlight, path)
				w.mu.Unlock()
			}()
			w.verifyAndEmit(ctx, path)
		}()
	})
}

// verifyAndEmit confirms the file is stable, reads it and calls the
// handler. With stability checking disabled the file is read right after
// the debounce. An unstable file is dropped after the backoff schedule
// runs out; an empty file is never emitted either way.
func (w *Watcher) verifyAndEmit(ctx context.Context, path string) {
	if !w.stability {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			return
		}
		w.emit(ctx, path)
		return
	}

	for attempt := 0; attempt < len(stabilityBackoff); attempt++ {
		before, err := os.Stat(path)
		if err != nil {
			logger.Debug(ctx, "File vanished before stability check", tag.File(path))
			return
		}

		select {
		case <-time.After(stabilityBackoff[attempt]):
		case <-ctx.Done():
			return
		}

		after, err := os.Stat(path)
		if err != nil {
			return
		}
		if before.Size() > 0 && before.Size() == after.Size() &&
			before.ModTime().Equal(after.ModTime()) {
			w.emit(ctx, path)
			return
		}
	}
	logger.Warn(ctx, "File never stabilized, dropping",
		tag.File(path), tag.Reason("watcher.file_unstable"))
}

// emit reads the settled file and runs the handler unless stopped.
func (w *Watcher) emit(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Warn(ctx, "Failed to read settled file", tag.File(path), tag.Error(err))
		return
	}
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped || ctx.Err() != nil {
		return
	}
	w.handler(ctx, FileReady{Path: path, Content: string(content)})
}

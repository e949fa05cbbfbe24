package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// RunFunc performs one full validation pass. It is supplied by the caller
// (typically a cmd entrypoint that owns the archive path, evaluator set,
// and accumulator) so this package stays ignorant of how an archive is
// read or how evaluators are wired — it only decides when to run them
// again.
type RunFunc func(ctx context.Context) error

// runningGuard prevents two revalidation passes from running at once: the
// core's evaluators are single-threaded per run, so an overlapping second
// run would corrupt their working-folder spill files.
type runningGuard struct {
	mu      sync.Mutex
	running bool
}

func (g *runningGuard) tryLock() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

func (g *runningGuard) unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

// Watcher re-triggers a validation run on a file-system change to a
// watched path, or on a cron schedule, or both. At most one run is ever
// in flight; a trigger that arrives mid-run is dropped rather than
// queued, matching the once-per-request nature of a validation pass.
type Watcher struct {
	run   RunFunc
	guard runningGuard

	watchCancel context.CancelFunc
	fsWatcher   *fsnotify.Watcher
	cronSched   *cron.Cron
}

// New creates a Watcher bound to run. Call WatchPath and/or Schedule to
// arm triggers, then Stop when done.
func New(run RunFunc) *Watcher {
	return &Watcher{run: run}
}

// trigger runs the bound RunFunc if no run is already in flight. Overlap
// is silently dropped and logged rather than queued.
func (w *Watcher) trigger(ctx context.Context, reason string) {
	if !w.guard.tryLock() {
		log.Printf("[watch] %s: skipped, a validation run is already in progress", reason)
		return
	}
	defer w.guard.unlock()

	log.Printf("[watch] %s: starting validation run", reason)
	if err := w.run(ctx); err != nil {
		log.Printf("[watch] %s: validation run failed: %v", reason, err)
		return
	}
	log.Printf("[watch] %s: validation run complete", reason)
}

// WatchPath arms an fsnotify watch on the directory containing path: any
// create/write event targeting path itself re-triggers a run, debounced
// by 500ms so a multi-write copy doesn't fire repeatedly.
func (w *Watcher) WatchPath(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve watch path %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	dir := filepath.Dir(absPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	w.fsWatcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	w.watchCancel = cancel

	go func() {
		var timer *time.Timer
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				eventPath, _ := filepath.Abs(event.Name)
				if eventPath != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(500*time.Millisecond, func() {
					w.trigger(ctx, fmt.Sprintf("file changed: %s", absPath))
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[watch] file watcher error: %v", err)
			}
		}
	}()

	log.Printf("[watch] watching %s for changes", absPath)
	return nil
}

// Schedule arms a cron trigger using the standard five-field expression.
func (w *Watcher) Schedule(ctx context.Context, expr string) error {
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		w.trigger(ctx, fmt.Sprintf("cron %q", expr))
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	c.Start()
	w.cronSched = c
	log.Printf("[watch] scheduled revalidation: %s", expr)
	return nil
}

// Stop tears down any armed file watcher and cron schedule.
func (w *Watcher) Stop() {
	if w.watchCancel != nil {
		w.watchCancel()
		w.watchCancel = nil
	}
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	if w.cronSched != nil {
		w.cronSched.Stop()
		w.cronSched = nil
	}
}

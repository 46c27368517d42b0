package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/buildbeaver/docflow/internal/logger"
)

// Clock supplies the current time, injected for deterministic debounce tests.
type Clock func() time.Time

// Watcher watches a set of configured directories and delivers debounced,
// pattern-matched DetectedEvents to a single sink.
type Watcher struct {
	log     logger.Log
	clock   Clock
	sink    Sink
	configs []*WatchConfig

	mu          sync.Mutex
	seen        map[string]bool // watchName|path -> "has been observed before"
	queue       *debounceQueue
	dirToConfig map[string]*WatchConfig
	fsw         *fsnotify.Watcher

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New constructs a Watcher over configs, delivering matched events to sink.
// Disabled configs are kept (so a caller can inspect them) but never watched.
func New(logFactory logger.LogFactory, clock Clock, configs []*WatchConfig, sink Sink) *Watcher {
	return &Watcher{
		log:         logFactory("watcher"),
		clock:       clock,
		sink:        sink,
		configs:     configs,
		seen:        make(map[string]bool),
		queue:       newDebounceQueue(),
		dirToConfig: make(map[string]*WatchConfig),
	}
}

// Start begins watching every enabled config's directory, recursively if
// configured, and launches the background event-consuming and debounce-drain
// goroutines. Calling Start twice without an intervening Stop is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	for _, c := range w.configs {
		if !c.Enabled {
			continue
		}
		if err := w.addDirRecursive(c, c.Path); err != nil {
			w.log.Warnf("error watching %q for %q: %s", c.Path, c.Name, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(2)
	go w.consumeEvents(runCtx)
	go w.drainLoop(runCtx)

	w.log.Infof("started watching %d configured director(ies)", len(w.configs))
	return nil
}

// Stop halts the background goroutines and closes the underlying OS watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	fsw := w.fsw
	w.mu.Unlock()

	cancel()
	if fsw != nil {
		_ = fsw.Close()
	}
	w.wg.Wait()
}

// addDirRecursive registers dir (and, if c.Recursive, every subdirectory)
// with the underlying fsnotify watcher.
func (w *Watcher) addDirRecursive(c *WatchConfig, dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirToConfig[dir] = c
	if !c.Recursive {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == dir || !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr == nil {
			w.dirToConfig[path] = c
		}
		return nil
	})
}

func (w *Watcher) consumeEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnf("filesystem watch error: %s", err)
		}
	}
}

func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	dir := filepath.Dir(ev.Name)
	w.mu.Lock()
	cfg, ok := w.dirToConfig[dir]
	w.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if cfg.Recursive {
				w.mu.Lock()
				_ = w.addDirRecursive(cfg, ev.Name)
				w.mu.Unlock()
			}
			return // directories are never events
		}
		w.scheduleEvent(cfg, ev.Name, EventCreated)
	case ev.Op&fsnotify.Write != 0:
		w.scheduleEvent(cfg, ev.Name, EventModified)
	case ev.Op&fsnotify.Remove != 0:
		w.scheduleEvent(cfg, ev.Name, EventDeleted)
	case ev.Op&fsnotify.Rename != 0:
		// The OS delivers a Rename for the vacated path; the destination (if
		// still inside a watched directory) arrives separately as a Create.
		w.scheduleEvent(cfg, ev.Name, EventMoved)
	}
}

// scheduleEvent applies the seen-set promotion (a modified event for a path
// never observed before is promoted to created) and queues et for debounced
// delivery.
func (w *Watcher) scheduleEvent(cfg *WatchConfig, path string, et EventType) {
	if !shouldEmit(cfg, path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// A modified event may be promoted to created below, so the interest
	// check happens after promotion, not before.
	seenKey := cfg.Name + "|" + path
	if et == EventModified && !w.seen[seenKey] {
		et = EventCreated
	}
	switch et {
	case EventCreated, EventModified:
		w.seen[seenKey] = true
	case EventDeleted:
		// Forget the path so a later recreate that surfaces as a bare
		// write is promoted back to created.
		delete(w.seen, seenKey)
	}
	if !cfg.wantsEvent(et) {
		return
	}

	queueKey := seenKey
	debounce := time.Duration(cfg.DebounceSeconds * float64(time.Second))
	w.queue.schedule(queueKey, DetectedEvent{
		WatchName: cfg.Name,
		Config:    cfg,
		Path:      path,
		EventType: et,
	}, w.clock(), debounce)
}

func (w *Watcher) drainLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			ready := w.queue.drain(w.clock())
			w.mu.Unlock()
			for _, ev := range ready {
				w.emit(ev)
			}
		}
	}
}

func (w *Watcher) emit(ev DetectedEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorf("recovered panic in watcher sink for %q: %v", ev.Path, r)
		}
	}()
	w.sink(ev)
}

// ScanExisting enumerates an already-configured directory (recursively if
// configured) and synthesizes a created DetectedEvent for every matching
// file, used to back-fill on startup. If name is empty, every
// enabled config is scanned.
func (w *Watcher) ScanExisting(ctx context.Context, name string) error {
	for _, c := range w.configs {
		if !c.Enabled {
			continue
		}
		if name != "" && c.Name != name {
			continue
		}
		if err := w.scanConfig(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) scanConfig(ctx context.Context, c *WatchConfig) error {
	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != c.Path && !c.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !shouldEmit(c, path) {
			return nil
		}
		// Mark the path observed so a later modify isn't promoted back to
		// created by scheduleEvent.
		w.mu.Lock()
		w.seen[c.Name+"|"+path] = true
		w.mu.Unlock()
		w.emit(DetectedEvent{
			WatchName: c.Name,
			Config:    c,
			Path:      path,
			EventType: EventCreated,
		})
		return nil
	}
	return filepath.WalkDir(c.Path, walkFn)
}

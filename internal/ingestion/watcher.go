package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/logging"
)

// DefaultDebounce is how long a source must be quiet before it is re-ingested.
const DefaultDebounce = 2 * time.Second

// Ingester is the surface of Pipeline the Watcher depends on.
type Ingester interface {
	// IngestOne rebuilds the collection for one source.
	IngestOne(ctx context.Context, src corpus.Source) Report
}

// Watcher re-ingests a language whenever its source document is created or
// written. Bursts of events for one file are collapsed into a single run.
type Watcher struct {
	// ing performs the re-ingestion.
	ing Ingester
	// sources maps a cleaned document path to its source.
	sources map[string]corpus.Source
	// debounce is the quiet period before a run starts.
	debounce time.Duration
}

// NewWatcher constructs a Watcher over sources resolved against dataDir.
// debounce <= 0 selects DefaultDebounce.
func NewWatcher(ing Ingester, dataDir string, sources []corpus.Source, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	m := make(map[string]corpus.Source, len(sources))
	for _, s := range sources {
		m[filepath.Clean(s.Path(dataDir))] = s
	}
	return &Watcher{ing: ing, sources: m, debounce: debounce}
}

// Start installs filesystem watches on every source directory and returns
// a channel of reports, one per re-ingestion. The channel is closed once ctx
// is done. Watches are in place when Start returns.
func (w *Watcher) Start(ctx context.Context) (<-chan Report, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ingestion: create watcher: %w", err)
	}
	dirs := map[string]bool{}
	for path := range w.sources {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		// Directories are watched rather than files so editors that replace
		// a file via rename keep triggering events.
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("ingestion: watch %s: %w", dir, err)
		}
	}

	out := make(chan Report)
	go w.loop(ctx, fw, out)
	return out, nil
}

// loop debounces events and runs ingestion until ctx is done.
func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, out chan<- Report) {
	log := logging.FromContext(ctx)
	deb := newDebouncer(w.debounce, ctx.Done())
	defer func() {
		deb.stop()
		_ = fw.Close()
		close(out)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if path, ok := w.match(ev); ok {
				deb.trigger(path)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn("ingestion: watcher error", slog.Any("error", err))

		case path := <-deb.due:
			src := w.sources[path]
			log.Info("ingestion: source changed, re-ingesting",
				slog.String("language", string(src.Language)),
				slog.String("source", path),
			)
			r := w.ing.IngestOne(ctx, src)
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}
}

// match reports whether ev is a create or write of a watched source.
func (w *Watcher) match(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	path := filepath.Clean(ev.Name)
	if _, ok := w.sources[path]; !ok {
		return "", false
	}
	return path, true
}

// timer is the part of *time.Timer the debouncer uses.
type timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// debouncer delivers a key on due once no trigger for it has arrived for
// delay. Each quiet period delivers the key at most once.
type debouncer struct {
	delay time.Duration
	due   chan string
	done  <-chan struct{}
	// afterFunc starts a timer; tests replace it.
	afterFunc func(time.Duration, func()) timer

	mu      sync.Mutex
	pending map[string]timer
}

func newDebouncer(delay time.Duration, done <-chan struct{}) *debouncer {
	return &debouncer{
		delay:     delay,
		due:       make(chan string),
		done:      done,
		afterFunc: afterFunc,
		pending:   map[string]timer{},
	}
}

func afterFunc(d time.Duration, f func()) timer { return time.AfterFunc(d, f) }

// trigger restarts the quiet period for key. A timer that has already
// expired is replaced rather than reset, and its callback finds it is no
// longer pending and delivers nothing.
func (d *debouncer) trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pending[key]; ok && t.Stop() {
		t.Reset(d.delay)
		return
	}
	var t timer
	t = d.afterFunc(d.delay, func() {
		d.mu.Lock()
		current := d.pending[key] == t
		if current {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		if !current {
			return
		}
		select {
		case d.due <- key:
		case <-d.done:
		}
	})
	d.pending[key] = t
}

// stop cancels every pending delivery.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.pending {
		t.Stop()
		delete(d.pending, key)
	}
}

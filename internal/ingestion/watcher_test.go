package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/icrag-go/internal/corpus"
)

// recordingIngester records every source it is asked to ingest.
type recordingIngester struct {
	mu   sync.Mutex
	seen []corpus.Language
}

func (r *recordingIngester) IngestOne(_ context.Context, src corpus.Source) Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, src.Language)
	return Report{Language: src.Language, ChunksWritten: 1}
}

func TestWatcher_Match(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w := NewWatcher(&recordingIngester{}, dir, []corpus.Source{{Language: corpus.Hindi, File: "ic-hindi.txt"}}, 0)
	assert.Equal(t, DefaultDebounce, w.debounce)

	target := filepath.Join(dir, "ic-hindi.txt")
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{name: "write", ev: fsnotify.Event{Name: target, Op: fsnotify.Write}, want: true},
		{name: "create", ev: fsnotify.Event{Name: target, Op: fsnotify.Create}, want: true},
		{name: "chmod", ev: fsnotify.Event{Name: target, Op: fsnotify.Chmod}, want: false},
		{name: "remove", ev: fsnotify.Event{Name: target, Op: fsnotify.Remove}, want: false},
		{name: "other file", ev: fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write}, want: false},
		{name: "unclean path", ev: fsnotify.Event{Name: dir + "/./ic-hindi.txt", Op: fsnotify.Write}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := w.match(tt.ev)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestWatcher_DebouncedReingest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := NewWatcher(ing, dir, []corpus.Source{{Language: corpus.Tamil, File: "ic-tamil.txt"}}, 200*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reports, err := w.Start(ctx)
	require.NoError(t, err)

	path := filepath.Join(dir, "ic-tamil.txt")
	for i := range 3 {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o600))
	}

	select {
	case r := <-reports:
		assert.Equal(t, corpus.Tamil, r.Language)
	case <-time.After(5 * time.Second):
		t.Fatal("no re-ingestion after write")
	}

	cancel()
	for range reports {
	}
	ing.mu.Lock()
	defer ing.mu.Unlock()
	assert.Equal(t, []corpus.Language{corpus.Tamil}, ing.seen, "burst collapses into one run")
}

func TestWatcher_StartFailsOnMissingDirectory(t *testing.T) {
	t.Parallel()
	w := NewWatcher(&recordingIngester{}, filepath.Join(t.TempDir(), "absent"), []corpus.Source{{Language: corpus.English, File: "x.txt"}}, time.Millisecond)
	_, err := w.Start(context.Background())
	assert.Error(t, err)
}

// manualTimer is a timer whose expiry the test controls.
type manualTimer struct {
	f       func()
	fired   bool
	stopped bool
	resets  int
}

func (m *manualTimer) Stop() bool {
	active := !m.fired && !m.stopped
	m.stopped = true
	return active
}

func (m *manualTimer) Reset(time.Duration) bool {
	m.stopped = false
	m.resets++
	return false
}

// expire marks the timer fired and runs its callback.
func (m *manualTimer) expire() {
	m.fired = true
	m.f()
}

func newManualDebouncer() (*debouncer, *[]*manualTimer) {
	var timers []*manualTimer
	d := newDebouncer(time.Second, nil)
	d.due = make(chan string, 4)
	d.afterFunc = func(_ time.Duration, f func()) timer {
		m := &manualTimer{f: f}
		timers = append(timers, m)
		return m
	}
	return d, &timers
}

func TestDebouncer_TriggersWithinQuietPeriodReset(t *testing.T) {
	t.Parallel()
	d, timers := newManualDebouncer()

	d.trigger("ic-tamil.pdf")
	d.trigger("ic-tamil.pdf")
	d.trigger("ic-tamil.pdf")
	require.Len(t, *timers, 1)
	assert.Equal(t, 2, (*timers)[0].resets)

	(*timers)[0].expire()
	require.Len(t, d.due, 1)
	assert.Equal(t, "ic-tamil.pdf", <-d.due)
	assert.Empty(t, d.pending)
}

func TestDebouncer_TriggerAfterExpiryDeliversOnce(t *testing.T) {
	t.Parallel()
	d, timers := newManualDebouncer()

	d.trigger("ic-hindi.pdf")
	// The timer expires but its callback has not run yet.
	(*timers)[0].fired = true
	d.trigger("ic-hindi.pdf")
	require.Len(t, *timers, 2)
	assert.Zero(t, (*timers)[0].resets)

	(*timers)[0].f()
	assert.Empty(t, d.due, "superseded timer must not deliver")

	(*timers)[1].expire()
	require.Len(t, d.due, 1)
	assert.Equal(t, "ic-hindi.pdf", <-d.due)
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	t.Parallel()
	d, timers := newManualDebouncer()

	d.trigger("ic-marathi.pdf")
	d.stop()
	assert.True(t, (*timers)[0].stopped)

	(*timers)[0].f()
	assert.Empty(t, d.due)
}

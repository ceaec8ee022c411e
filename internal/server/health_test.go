package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/54b3r/icrag-go/internal/version"
)

// fakePinger reports err for the dependency name.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// barrierPinger succeeds only once every pinger sharing wg has been called,
// which never happens if probes run one after another.
type barrierPinger struct {
	name string
	wg   *sync.WaitGroup
}

func (b *barrierPinger) Name() string { return b.name }
func (b *barrierPinger) Ping(ctx context.Context) error {
	b.wg.Done()
	done := make(chan struct{})
	go func() { b.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newReadyTestServer builds a Server probing pingers.
func newReadyTestServer(t *testing.T, pingers ...Pinger) *Server {
	t.Helper()
	s, _ := newTestServer(t, &fakeAsker{ans: cannedAnswer()}, nil)
	s.pingers = pingers
	return s
}

func decodeReady(t *testing.T, body []byte) readyResponse {
	t.Helper()
	var resp readyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode ready body %q: %v", body, err)
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeAsker{ans: cannedAnswer()}, nil)
	w := do(s, http.MethodGet, "/api/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != version.Version {
		t.Errorf("body = %v", body)
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	refused := errors.New("dial tcp 127.0.0.1:6334: connection refused")
	tests := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantReady  bool
		wantOK     []bool
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			wantReady:  true,
			wantOK:     []bool{},
		},
		{
			name:       "store and model healthy",
			pingers:    []Pinger{&fakePinger{name: "sqlite"}, &fakePinger{name: "ollama"}},
			wantStatus: http.StatusOK,
			wantReady:  true,
			wantOK:     []bool{true, true},
		},
		{
			name:       "qdrant down",
			pingers:    []Pinger{&fakePinger{name: "qdrant", err: refused}, &fakePinger{name: "ollama"}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{false, true},
		},
		{
			name:       "everything down",
			pingers:    []Pinger{&fakePinger{name: "sqlite", err: refused}, &fakePinger{name: "ollama", err: context.DeadlineExceeded}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{false, false},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newReadyTestServer(t, tc.pingers...)
			w := do(s, http.MethodGet, "/api/ready", "")
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tc.wantStatus, w.Body.String())
			}
			resp := decodeReady(t, w.Body.Bytes())
			if resp.Ready != tc.wantReady {
				t.Errorf("ready = %v, want %v", resp.Ready, tc.wantReady)
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("got %d checks, want %d", len(resp.Checks), len(tc.wantOK))
			}
			for i, c := range resp.Checks {
				if c.Name != tc.pingers[i].Name() {
					t.Errorf("check %d name = %q, want %q", i, c.Name, tc.pingers[i].Name())
				}
				if c.OK != tc.wantOK[i] {
					t.Errorf("check %q ok = %v, want %v", c.Name, c.OK, tc.wantOK[i])
				}
				if c.OK == (c.Error != "") {
					t.Errorf("check %q: ok=%v with error %q", c.Name, c.OK, c.Error)
				}
			}
		})
	}
}

func TestHandleReady_ProbesRunConcurrently(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	wg.Add(3)
	s := newReadyTestServer(t,
		&barrierPinger{name: "sqlite", wg: &wg},
		&barrierPinger{name: "qdrant", wg: &wg},
		&barrierPinger{name: "ollama", wg: &wg},
	)
	w := do(s, http.MethodGet, "/api/ready", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	resp := decodeReady(t, w.Body.Bytes())
	names := []string{"sqlite", "qdrant", "ollama"}
	for i, c := range resp.Checks {
		if c.Name != names[i] {
			t.Errorf("check %d = %q, want %q", i, c.Name, names[i])
		}
	}
}

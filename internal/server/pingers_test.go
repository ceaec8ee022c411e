package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPPinger(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"not found still reachable", http.StatusNotFound, false},
		{"server error", http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			t.Cleanup(srv.Close)

			p := NewHTTPPinger("ollama", srv.URL+"/api/tags", srv.Client())
			err := p.Ping(t.Context())
			if (err != nil) != tc.wantErr {
				t.Errorf("Ping: err=%v, wantErr=%v", err, tc.wantErr)
			}
			if p.Name() != "ollama" {
				t.Errorf("Name: got %q", p.Name())
			}
		})
	}
}

func TestHTTPPinger_Unreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := NewHTTPPinger("ollama", url, nil).Ping(t.Context()); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestPingFunc(t *testing.T) {
	t.Parallel()
	want := errors.New("database is locked")
	p := NewPingFunc("sqlite", func(context.Context) error { return want })
	if p.Name() != "sqlite" {
		t.Errorf("Name: got %q", p.Name())
	}
	if err := p.Ping(t.Context()); !errors.Is(err, want) {
		t.Errorf("Ping: got %v", err)
	}
}

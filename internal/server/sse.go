package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// sseWriter emits Server-Sent Event frames and flushes after each one.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter
	// flusher flushes buffered data to the client after each frame.
	flusher http.Flusher
	// mu serialises frames.
	mu sync.Mutex
}

// event writes one named frame. Each line of data gets its own "data: "
// prefix so multi-line payloads never break the frame boundary.
func (s *sseWriter) event(name string, data []byte) error {
	var buf strings.Builder
	buf.WriteString("event: ")
	buf.WriteString(name)
	buf.WriteString("\n")
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, buf.String()); err != nil {
		return fmt.Errorf("server: write event %s: %w", name, err)
	}
	s.flusher.Flush()
	return nil
}

// json writes v as a single-line JSON frame.
func (s *sseWriter) json(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("server: encode event %s: %w", name, err)
	}
	return s.event(name, data)
}

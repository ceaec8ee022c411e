package server

import (
	"log/slog"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/icrag-go/internal/logging"
)

// Defaults for the per-client question limit.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Idle clients are forgotten after staleAfter; the sweep runs every sweepEvery.
const (
	staleAfter = 5 * time.Minute
	sweepEvery = time.Minute
)

// visitor is one client's token bucket.
type visitor struct {
	// lim holds the tokens.
	lim *rate.Limiter
	// seen is the time of the client's last question.
	seen time.Time
}

// askLimiter throttles the ask endpoints per client address. Answers are
// expensive, so a client that exceeds its bucket is told how long to wait
// rather than queued.
type askLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	// limit is the sustained questions per second per client.
	limit rate.Limit
	// burst is the bucket size.
	burst int
	// now is the clock; tests replace it.
	now func() time.Time
}

// newAskLimiter returns a limiter and a stop function for its sweeper.
func newAskLimiter(rps float64, burst int) (*askLimiter, func()) {
	l := &askLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				l.sweep(staleAfter)
			}
		}
	}()
	return l, func() { close(done) }
}

// wait takes one token for client and returns zero, or returns how long the
// client must wait for the next token without consuming one.
func (l *askLimiter) wait(client string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[client]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[client] = v
	}
	v.seen = now

	r := v.lim.ReserveN(now, 1)
	if !r.OK() {
		return time.Duration(math.MaxInt64)
	}
	d := r.DelayFrom(now)
	if d > 0 {
		r.CancelAt(now)
	}
	return d
}

// sweep forgets clients idle for longer than idle.
func (l *askLimiter) sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	for client, v := range l.visitors {
		if v.seen.Before(cutoff) {
			delete(l.visitors, client)
		}
	}
}

// middleware rejects a client over its limit with 429 and a Retry-After in
// whole seconds.
func (l *askLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		d := l.wait(client)
		if d <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("ask rate limited",
			slog.String("client", client),
			slog.Duration("retry_after", d),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d)))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many questions, slow down"})
	})
}

// retryAfterSeconds rounds d up to whole seconds, at least 1.
func retryAfterSeconds(d time.Duration) int {
	if d >= time.Duration(math.MaxInt64) {
		return int(staleAfter / time.Second)
	}
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// clientIP is the canonical remote address without port. IPv4-mapped IPv6
// addresses collapse to IPv4. X-Forwarded-For is not trusted.
func clientIP(r *http.Request) string {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if a, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return a.Unmap().String()
	}
	return r.RemoteAddr
}

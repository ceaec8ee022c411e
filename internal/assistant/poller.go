package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/icrag-go/internal/logging"
)

// Poll defaults.
const (
	DefaultPollInitial = 500 * time.Millisecond
	DefaultPollMax     = 5 * time.Second
	DefaultDeadline    = 2 * time.Minute
)

// Observation is one status report for a run.
type Observation struct {
	// State is the mapped run state.
	State RunState
	// Detail is the vendor's failure message, if any.
	Detail string
}

// FetchFunc reports the current state of a run.
type FetchFunc func(ctx context.Context) (Observation, error)

// Poller drives a run from Created to a terminal state.
type Poller struct {
	// Initial is the first wait between polls.
	Initial time.Duration
	// Max caps the wait between polls.
	Max time.Duration
	// Deadline bounds the whole poll. Zero or negative disables it.
	Deadline time.Duration
	// OnTransition, when set, is called for every state change.
	OnTransition func(from, to RunState)
}

// NewPoller returns a Poller, defaulting zero durations.
func NewPoller(initial, maxInterval, deadline time.Duration) *Poller {
	if initial <= 0 {
		initial = DefaultPollInitial
	}
	if maxInterval <= 0 {
		maxInterval = DefaultPollMax
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	if deadline == 0 {
		deadline = DefaultDeadline
	}
	return &Poller{Initial: initial, Max: maxInterval, Deadline: deadline}
}

// newBackOff returns the wait schedule between polls.
func (p *Poller) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Initial
	bo.MaxInterval = p.Max
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// wait returns the next interval, never more than Max.
func (p *Poller) wait(bo backoff.BackOff) time.Duration {
	d := bo.NextBackOff()
	if d == backoff.Stop || d > p.Max {
		d = p.Max
	}
	return d
}

// Wait polls fetch until the run is terminal and returns the final state.
// A Failed run returns ErrRunFailed. Fetch errors are returned immediately.
// When the deadline passes or ctx is cancelled the context error is
// returned and the last observed state is reported.
func (p *Poller) Wait(ctx context.Context, fetch FetchFunc) (RunState, error) {
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}
	log := logging.FromContext(ctx)
	bo := p.newBackOff()
	state := Created
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return state, fmt.Errorf("assistant: run still %s: %w", state, ctx.Err())
		case <-timer.C:
		}

		obs, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return state, fmt.Errorf("assistant: run still %s: %w", state, ctx.Err())
			}
			return state, fmt.Errorf("assistant: retrieve run: %w", err)
		}
		if to := next(state, obs.State); to != state {
			log.Debug("assistant: run transition", slog.String("from", state.String()), slog.String("to", to.String()))
			if p.OnTransition != nil {
				p.OnTransition(state, to)
			}
			state = to
		}
		switch state {
		case Completed:
			return state, nil
		case Failed:
			if obs.Detail != "" {
				return state, fmt.Errorf("%w: %s", ErrRunFailed, obs.Detail)
			}
			return state, ErrRunFailed
		}
		timer.Reset(p.wait(bo))
	}
}

// Package poll implements the reconciliation loop used to follow remote
// jobs that give no push notification: wait, fetch, report, decide whether
// to schedule the next tick.
//
// Ticks are chained rather than interval-driven. The next wait only starts
// once the previous fetch has settled, so a slow remote never sees
// overlapping requests from one handle. Fetch errors are not terminal.
package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
)

var (
	// ErrCancelled is reported by Handle.Err after Cancel.
	ErrCancelled = errors.New("poll: cancelled")
	// ErrMaxAttempts is reported when a capped loop ran out of attempts
	// before observing a terminal state.
	ErrMaxAttempts = errors.New("poll: max attempts reached")
	// ErrRunning is returned by Err while the loop is still active.
	ErrRunning = errors.New("poll: still running")
)

// FetchFunc reads the current remote state.
type FetchFunc[S any] func(ctx context.Context) (S, error)

// Loop describes one reconciliation loop. Fetch and IsTerminal are
// required; OnUpdate may be nil.
type Loop[S any] struct {
	Fetch      FetchFunc[S]
	IsTerminal func(S) bool
	OnUpdate   func(S)
	Interval   time.Duration
}

// Start launches the loop on its own goroutine and returns its handle.
func (l Loop[S]) Start(ctx context.Context, opts ...Option) *Handle {
	return Start(ctx, l.Fetch, l.IsTerminal, l.OnUpdate, l.Interval, opts...)
}

// Option configures a loop.
type Option func(*options)

type options struct {
	maxAttempts int
	logger      logging.Logger
	onError     func(attempt int, err error)
	name        string
}

// WithMaxAttempts caps the number of fetches. Zero means unlimited.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithLogger logs swallowed fetch errors and loop termination.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOnError observes fetch errors. The loop keeps running regardless.
func WithOnError(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithName sets the "poller" log field.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Handle controls a running loop. All methods are safe for concurrent use.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	// deliverMu is held from the liveness check until OnUpdate returns.
	deliverMu  sync.Mutex
	cancelled  atomic.Bool
	delivering atomic.Bool

	mu       sync.Mutex
	err      error
	attempts int
}

// Start runs fetch every interval until isTerminal holds for a fetched
// state, ctx ends, the attempt cap is reached, or the handle is cancelled.
// onUpdate receives every successfully fetched state, the terminal one
// included, and is never invoked after Cancel has returned.
func Start[S any](ctx context.Context, fetch FetchFunc[S], isTerminal func(S) bool, onUpdate func(S), interval time.Duration, opts ...Option) *Handle {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)
	if o.name != "" {
		logger = logger.With(logging.Field{Key: "poller", Value: o.name})
	}
	if interval <= 0 {
		interval = time.Millisecond
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go h.run(loopCtx, logger, o, interval, func(ctx context.Context) (bool, error) {
		s, err := fetch(ctx)
		if err != nil {
			return false, err
		}
		terminal := isTerminal != nil && isTerminal(s)
		if !h.deliver(func() {
			if onUpdate != nil {
				onUpdate(s)
			}
		}) {
			return false, ErrCancelled
		}
		return terminal, nil
	})
	return h
}

func (h *Handle) run(ctx context.Context, logger logging.Logger, o options, interval time.Duration, tick func(context.Context) (bool, error)) {
	defer close(h.done)
	defer h.cancel()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.finish(h.stopReason(ctx.Err()))
			return
		case <-timer.C:
		}

		attempt := h.incAttempts()
		terminal, err := tick(ctx)
		switch {
		case h.cancelled.Load() || errors.Is(err, ErrCancelled):
			h.finish(ErrCancelled)
			return
		case err != nil:
			if ctx.Err() != nil {
				h.finish(h.stopReason(ctx.Err()))
				return
			}
			logger.Warn("poll fetch failed, retrying on next tick",
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "error", Value: err.Error()})
			if o.onError != nil {
				o.onError(attempt, err)
			}
		case terminal:
			logger.Debug("poll reached terminal state", logging.Field{Key: "attempts", Value: attempt})
			h.finish(nil)
			return
		}

		if o.maxAttempts > 0 && attempt >= o.maxAttempts {
			logger.Warn("poll gave up", logging.Field{Key: "attempts", Value: attempt})
			h.finish(ErrMaxAttempts)
			return
		}
		timer.Reset(interval)
	}
}

// deliver runs fn unless the handle was cancelled. It reports whether fn ran.
func (h *Handle) deliver(fn func()) bool {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	h.delivering.Store(true)
	defer h.delivering.Store(false)
	if h.cancelled.Load() {
		return false
	}
	fn()
	return true
}

func (h *Handle) stopReason(ctxErr error) error {
	if h.cancelled.Load() {
		return ErrCancelled
	}
	return ctxErr
}

func (h *Handle) incAttempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts++
	return h.attempts
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// Cancel stops the loop. It is idempotent and safe to call after the loop
// ended on its own. Once Cancel returns no further OnUpdate call starts; a
// fetch still in flight has its context cancelled and its result dropped.
// Cancel may be called from inside OnUpdate.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	if h.cancelled.Swap(true) {
		return
	}
	h.cancel()
	if !h.delivering.Load() {
		// wait out a delivery that took the lock but not the flag yet
		h.deliverMu.Lock()
		h.deliverMu.Unlock() //nolint:staticcheck
	}
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// Done is closed when the loop goroutine exits.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err reports why the loop stopped: nil after a terminal state, ErrCancelled,
// ErrMaxAttempts or the parent context's error. ErrRunning while active.
func (h *Handle) Err() error {
	select {
	case <-h.done:
	default:
		return ErrRunning
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Attempts returns how many fetches have been started.
func (h *Handle) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// Wait blocks until the loop exits or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

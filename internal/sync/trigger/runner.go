// Package trigger drives sync passes from the events that should start
// them: a periodic timer with failure backoff, app foreground transitions,
// and explicit user requests.
package trigger

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/sirupsen/logrus"

	syncpkg "github.com/kwlin/studyloop/internal/sync"
)

// Syncer runs one sync pass. *sync.Orchestrator satisfies it.
type Syncer interface {
	PerformSync(ctx context.Context) (*syncpkg.Result, error)
}

// StatusReader exposes the persisted sync status for staleness checks.
// *db.Repository satisfies it.
type StatusReader interface {
	LastSuccessfulSync() (time.Time, error)
}

// Options tunes the runner.
type Options struct {
	// Interval is the base period between automatic passes.
	Interval time.Duration
	// MaxBackoff caps the failure backoff.
	MaxBackoff time.Duration
	// ResumeStaleAfter is how old the last successful sync must be before
	// a foreground event triggers a pass.
	ResumeStaleAfter time.Duration
	// PassTimeout bounds a single pass.
	PassTimeout time.Duration
}

func (o *Options) fill() {
	if o.Interval <= 0 {
		o.Interval = 15 * time.Minute
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Hour
	}
	if o.ResumeStaleAfter <= 0 {
		o.ResumeStaleAfter = time.Hour
	}
	if o.PassTimeout <= 0 {
		o.PassTimeout = 5 * time.Minute
	}
}

// Runner schedules sync passes. A failed pass doubles the wait before the
// next automatic attempt, up to MaxBackoff; a successful pass resets it to
// the base interval.
type Runner struct {
	syncer Syncer
	status StatusReader
	log    *logrus.Logger
	opts   Options

	mu      stdsync.Mutex
	wait    time.Duration
	running bool

	stopCh chan struct{}
	kickCh chan struct{}
	wg     stdsync.WaitGroup

	now func() time.Time
}

// NewRunner wires a runner. Start must be called before it does anything.
func NewRunner(syncer Syncer, status StatusReader, log *logrus.Logger, opts Options) *Runner {
	opts.fill()
	return &Runner{
		syncer: syncer,
		status: status,
		log:    log,
		opts:   opts,
		wait:   opts.Interval,
		stopCh: make(chan struct{}),
		kickCh: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)
	r.log.WithField("interval", r.opts.Interval).Info("sync trigger started")
}

// Stop shuts the loop down and waits for an in-flight pass to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.log.Info("sync trigger stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	timer := time.NewTimer(r.currentWait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-r.kickCh:
			r.runPass(ctx)
		case <-timer.C:
			r.runPass(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.currentWait())
	}
}

// runPass executes one pass and adjusts the backoff from its outcome.
// Skipped and already-running passes are not failures; the backoff only
// reacts to passes that tried and could not finish.
func (r *Runner) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, r.opts.PassTimeout)
	defer cancel()

	result, err := r.syncer.PerformSync(passCtx)
	if err != nil {
		next := r.backoff()
		r.log.WithError(err).WithField("next_attempt_in", next).Warn("sync pass failed")
		return
	}

	switch result.Outcome {
	case syncpkg.OutcomeCompleted:
		r.resetBackoff()
	case syncpkg.OutcomeFailed:
		r.backoff()
	default:
		// Skipped or already running: keep the current cadence.
	}
}

// SyncNow requests an immediate pass from the background loop. It returns
// without waiting for the pass to finish; a request while one is already
// queued coalesces.
func (r *Runner) SyncNow() {
	select {
	case r.kickCh <- struct{}{}:
	default:
	}
}

// OnForeground handles an app-resume event: it requests a pass only when
// the last successful sync is older than ResumeStaleAfter.
func (r *Runner) OnForeground() {
	last, err := r.status.LastSuccessfulSync()
	if err != nil {
		r.log.WithError(err).Warn("failed to read sync status on resume")
		return
	}
	age := r.now().Sub(last)
	if !last.IsZero() && age < r.opts.ResumeStaleAfter {
		r.log.WithField("age", age).Debug("resume sync skipped, recent enough")
		return
	}
	r.log.WithField("age", age).Info("stale on resume, requesting sync")
	r.SyncNow()
}

func (r *Runner) currentWait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wait
}

func (r *Runner) backoff() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wait *= 2
	if r.wait > r.opts.MaxBackoff {
		r.wait = r.opts.MaxBackoff
	}
	return r.wait
}

func (r *Runner) resetBackoff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wait = r.opts.Interval
}

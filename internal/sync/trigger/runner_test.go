package trigger

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/kwlin/studyloop/internal/logging"
	syncpkg "github.com/kwlin/studyloop/internal/sync"
)

type fakeSyncer struct {
	mu      stdsync.Mutex
	calls   int
	results []*syncpkg.Result
	errs    []error
}

func (f *fakeSyncer) PerformSync(ctx context.Context) (*syncpkg.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return &syncpkg.Result{Outcome: syncpkg.OutcomeCompleted}, nil
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStatus struct {
	last time.Time
	err  error
}

func (f *fakeStatus) LastSuccessfulSync() (time.Time, error) {
	return f.last, f.err
}

func newTestRunner(syncer Syncer, status StatusReader) *Runner {
	return NewRunner(syncer, status, logging.Discard(), Options{
		Interval:         50 * time.Millisecond,
		MaxBackoff:       400 * time.Millisecond,
		ResumeStaleAfter: time.Hour,
		PassTimeout:      time.Second,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRunnerPeriodicPasses(t *testing.T) {
	syncer := &fakeSyncer{}
	r := newTestRunner(syncer, &fakeStatus{})
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool { return syncer.callCount() >= 2 })
}

func TestRunnerStartIsIdempotent(t *testing.T) {
	syncer := &fakeSyncer{}
	r := newTestRunner(syncer, &fakeStatus{})
	r.Start(context.Background())
	r.Start(context.Background())
	r.Stop()
	// Second Stop must not panic on a closed channel.
	r.Stop()
}

func TestRunnerSyncNow(t *testing.T) {
	syncer := &fakeSyncer{}
	r := NewRunner(syncer, &fakeStatus{}, logging.Discard(), Options{
		Interval: time.Hour, // periodic path effectively disabled
	})
	r.Start(context.Background())
	defer r.Stop()

	r.SyncNow()
	waitFor(t, 2*time.Second, func() bool { return syncer.callCount() >= 1 })
}

func TestRunnerBackoffDoublesOnFailure(t *testing.T) {
	syncer := &fakeSyncer{}
	r := newTestRunner(syncer, &fakeStatus{})

	r.runPassForTest(errors.New("boom"))
	if got := r.currentWait(); got != 100*time.Millisecond {
		t.Errorf("expected doubled wait 100ms, got %v", got)
	}
	r.runPassForTest(errors.New("boom"))
	r.runPassForTest(errors.New("boom"))
	r.runPassForTest(errors.New("boom"))
	if got := r.currentWait(); got != 400*time.Millisecond {
		t.Errorf("expected wait capped at 400ms, got %v", got)
	}

	r.runPassForTest(nil)
	if got := r.currentWait(); got != 50*time.Millisecond {
		t.Errorf("expected reset to base interval, got %v", got)
	}
}

// runPassForTest drives the backoff accounting directly.
func (r *Runner) runPassForTest(err error) {
	if err != nil {
		r.backoff()
		return
	}
	r.resetBackoff()
}

func TestRunnerSkippedPassKeepsCadence(t *testing.T) {
	syncer := &fakeSyncer{
		results: []*syncpkg.Result{{Outcome: syncpkg.OutcomeSkipped, SkipReason: "quiet hours"}},
	}
	r := newTestRunner(syncer, &fakeStatus{})
	r.runPass(context.Background())

	if got := r.currentWait(); got != 50*time.Millisecond {
		t.Errorf("skipped pass must not back off, got %v", got)
	}
}

func TestRunnerFailedOutcomeBacksOff(t *testing.T) {
	syncer := &fakeSyncer{
		results: []*syncpkg.Result{{Outcome: syncpkg.OutcomeFailed}},
	}
	r := newTestRunner(syncer, &fakeStatus{})
	r.runPass(context.Background())

	if got := r.currentWait(); got != 100*time.Millisecond {
		t.Errorf("failed pass must double the wait, got %v", got)
	}
}

func TestOnForegroundStaleTriggersSync(t *testing.T) {
	syncer := &fakeSyncer{}
	status := &fakeStatus{last: time.Now().Add(-2 * time.Hour)}
	r := NewRunner(syncer, status, logging.Discard(), Options{Interval: time.Hour})
	r.Start(context.Background())
	defer r.Stop()

	r.OnForeground()
	waitFor(t, 2*time.Second, func() bool { return syncer.callCount() >= 1 })
}

func TestOnForegroundRecentSyncSkips(t *testing.T) {
	syncer := &fakeSyncer{}
	status := &fakeStatus{last: time.Now().Add(-time.Minute)}
	r := NewRunner(syncer, status, logging.Discard(), Options{Interval: time.Hour})
	r.Start(context.Background())
	defer r.Stop()

	r.OnForeground()
	time.Sleep(50 * time.Millisecond)
	if syncer.callCount() != 0 {
		t.Error("recent sync must suppress the resume trigger")
	}
}

func TestOnForegroundNeverSyncedTriggers(t *testing.T) {
	syncer := &fakeSyncer{}
	r := NewRunner(syncer, &fakeStatus{}, logging.Discard(), Options{Interval: time.Hour})
	r.Start(context.Background())
	defer r.Stop()

	r.OnForeground()
	waitFor(t, 2*time.Second, func() bool { return syncer.callCount() >= 1 })
}

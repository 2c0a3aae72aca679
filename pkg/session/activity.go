package session

import (
	"sync"
	"time"

	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/metrics"
)

// ActivityTracker records the timestamp of the last observed user
// interaction and expires the session after a period of inactivity.
// A background watcher checks the remaining time on a fixed cadence,
// surfaces a one-shot warning below the warn threshold, and raises the
// terminal expiry signal exactly once.
type ActivityTracker struct {
	mu             sync.Mutex
	lastActivityAt time.Time
	warned         bool
	expired        bool

	timeout       time.Duration
	warnThreshold time.Duration
	checkInterval time.Duration

	onWarn   func(remaining time.Duration)
	onExpire func()

	stopChan chan struct{}
	running  bool
	logger   logger.Logger
}

// NewActivityTracker creates a tracker. The warning and expiry callbacks
// are invoked from the watcher goroutine, never while the tracker's own
// lock is held.
func NewActivityTracker(timeout, warnThreshold, checkInterval time.Duration, log logger.Logger) *ActivityTracker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &ActivityTracker{
		lastActivityAt: time.Now(),
		timeout:        timeout,
		warnThreshold:  warnThreshold,
		checkInterval:  checkInterval,
		logger:         log,
	}
}

// OnWarn registers the one-shot low-time warning callback.
func (t *ActivityTracker) OnWarn(fn func(remaining time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onWarn = fn
}

// OnExpire registers the terminal expiry callback.
func (t *ActivityTracker) OnExpire(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// RecordActivity updates the last-activity timestamp and clears any
// pending low-time warning. Idempotent; has no effect after expiry.
func (t *ActivityTracker) RecordActivity() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired {
		return
	}
	t.lastActivityAt = time.Now()
	t.warned = false
}

// Remaining returns the time left before the session expires, never
// negative. Pure function of the tracker state and the given instant.
func (t *ActivityTracker) Remaining(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked(now)
}

func (t *ActivityTracker) remainingLocked(now time.Time) time.Duration {
	remaining := t.timeout - now.Sub(t.lastActivityAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the session has expired.
func (t *ActivityTracker) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// WarningActive reports whether the low-time warning is currently raised.
func (t *ActivityTracker) WarningActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warned && !t.expired
}

// Start launches the background watcher. Calling Start on a running
// tracker has no effect.
func (t *ActivityTracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopChan = make(chan struct{})
	stopChan := t.stopChan
	t.mu.Unlock()

	go t.watch(stopChan)
}

// Stop halts the background watcher.
func (t *ActivityTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	close(t.stopChan)
	t.stopChan = nil
	t.running = false
}

func (t *ActivityTracker) watch(stopChan chan struct{}) {
	ticker := time.NewTicker(t.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			if t.check() {
				return
			}
		}
	}
}

// check evaluates the countdown once. Returns true when the session has
// expired and the watcher should stop.
func (t *ActivityTracker) check() bool {
	t.mu.Lock()
	if t.expired {
		t.mu.Unlock()
		return true
	}

	remaining := t.remainingLocked(time.Now())

	var warnFn func(time.Duration)
	var expireFn func()

	switch {
	case remaining <= 0:
		t.expired = true
		expireFn = t.onExpire
	case remaining <= t.warnThreshold && !t.warned:
		t.warned = true
		warnFn = t.onWarn
	}
	t.mu.Unlock()

	if warnFn != nil {
		t.logger.Notice("Session inactivity warning: %v remaining", remaining)
		warnFn(remaining)
	}
	if expireFn != nil {
		t.logger.Notice("Session expired due to inactivity")
		metrics.SessionsExpired.Inc()
		expireFn()
		return true
	}
	return false
}

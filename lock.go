package pkiconn

import (
	"log/slog"
	"sync"
	"time"
)

// LockStealAfter is how long a holder may keep the context lock before any
// waiter is allowed to steal it.
const LockStealAfter = 2 * time.Minute

// SharedContextLock is the process-wide lock guarding the shared mutable
// TLS conduit. There is one per process, not one per connector: the
// conduit being guarded is framework-owned global state.
var SharedContextLock = NewContextLock(nil)

// ContextLock serializes mutation of a shared TLS configuration object
// across goroutines. Acquire blocks while another holder is active, but
// never longer than the steal window: a holder that crashes or hangs
// without releasing must not starve every future caller, so after
// LockStealAfter the lock is taken over with a loud warning.
//
// Each acquisition carries a holder token; release from a holder whose
// lock was stolen is a no-op rather than unlocking the thief. Waiters are
// woken together on release and any of them may win; ordering is not FIFO.
type ContextLock struct {
	logger *slog.Logger

	mu      sync.Mutex
	held    bool
	stealAt time.Time
	holder  uint64
	nextID  uint64
	// released is closed when the current holder releases, waking waiters.
	// Replaced on every acquisition.
	released chan struct{}
}

// NewContextLock creates an unheld lock. A nil logger falls back to
// slog.Default.
func NewContextLock(logger *slog.Logger) *ContextLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextLock{logger: logger}
}

// Acquire blocks until the lock is obtained, either by a regular handover
// or by stealing it from a holder that exceeded the steal window. It never
// fails. The returned release func must be called on every exit path;
// releasing after the lock was stolen has no effect.
func (l *ContextLock) Acquire() (release func()) {
	l.mu.Lock()
	for l.held {
		now := timeNow()
		if !now.Before(l.stealAt) {
			l.logger.Warn("stealing lock on TLS context: previous holder did not release it within the steal window",
				"steal_after", LockStealAfter,
				"overdue", now.Sub(l.stealAt))
			break
		}
		wait := l.stealAt.Sub(now)
		ch := l.released
		l.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ch:
		case <-t.C:
		}
		t.Stop()

		l.mu.Lock()
	}

	l.held = true
	l.nextID++
	id := l.nextID
	l.holder = id
	l.stealAt = timeNow().Add(LockStealAfter)
	l.released = make(chan struct{})
	done := l.released
	l.mu.Unlock()

	l.logger.Debug("starting communication: TLS context locked")
	return func() { l.release(id, done) }
}

func (l *ContextLock) release(id uint64, done chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || l.holder != id {
		// The lock was stolen from this holder; the thief owns it now.
		return
	}
	l.held = false
	close(done)
	l.logger.Debug("communication finished: TLS context lock released")
}

// With runs fn while holding the lock, releasing on every exit path
// including panics.
func (l *ContextLock) With(fn func()) {
	release := l.Acquire()
	defer release()
	fn()
}

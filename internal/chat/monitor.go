package chat

import (
	"sync"
	"time"
)

// Monitor evicts named sessions that stay idle past the configured
// timeout. Each armed session gets its own timer; Reset does not touch
// the timer, it only stamps the last-activity time. When a timer fires
// the watch re-checks elapsed idle time: a firing that lost a race with
// a reset is stale and simply reschedules for the remaining window, so
// a reset strictly after a fire can never cause a spurious eviction.
//
// A zero timeout disables the monitor entirely: Arm, Reset and Disarm
// become no-ops and sessions never time out.
type Monitor struct {
	timeout time.Duration
	probe   time.Duration
	evict   func(*Session)

	mu      sync.Mutex
	watches map[*Session]*watch
}

type watch struct {
	mu           sync.Mutex
	lastActivity time.Time
	timer        *time.Timer
	stopped      bool
}

// NewMonitor creates a monitor that calls evict for sessions idle
// longer than timeout. probe bounds how soon after arming the first
// check may fire; if zero it defaults to half the timeout.
func NewMonitor(timeout, probe time.Duration, evict func(*Session)) *Monitor {
	if probe <= 0 {
		probe = timeout / 2
	}
	return &Monitor{
		timeout: timeout,
		probe:   probe,
		evict:   evict,
		watches: make(map[*Session]*watch),
	}
}

// Enabled reports whether inactivity supervision is active.
func (m *Monitor) Enabled() bool {
	return m.timeout > 0
}

// Arm starts supervision for a session, recording now as its last
// activity. Arming an already-armed session resets it.
func (m *Monitor) Arm(s *Session) {
	if !m.Enabled() {
		return
	}

	m.mu.Lock()
	if w, ok := m.watches[s]; ok {
		m.mu.Unlock()
		w.mu.Lock()
		w.lastActivity = time.Now()
		w.mu.Unlock()
		return
	}
	w := &watch{lastActivity: time.Now()}
	w.timer = time.AfterFunc(m.timeout, func() { m.fire(s, w) })
	m.watches[s] = w
	m.mu.Unlock()
}

// Reset stamps fresh activity for the session. The pending timer is
// left alone; the next firing observes the new timestamp and
// reschedules instead of evicting.
func (m *Monitor) Reset(s *Session) {
	if !m.Enabled() {
		return
	}

	m.mu.Lock()
	w, ok := m.watches[s]
	m.mu.Unlock()
	if !ok {
		return
	}

	w.mu.Lock()
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

// Disarm cancels supervision for the session. Disarming twice, or
// disarming a session that was never armed, is a no-op.
func (m *Monitor) Disarm(s *Session) {
	if !m.Enabled() {
		return
	}

	m.mu.Lock()
	w, ok := m.watches[s]
	if ok {
		delete(m.watches, s)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	w.mu.Lock()
	w.stopped = true
	w.timer.Stop()
	w.mu.Unlock()
}

// fire runs in the timer goroutine. It evicts only when the session
// has truly been idle past the timeout; otherwise the firing is stale
// and the timer is rescheduled for the remaining idle window. The
// probe interval is the floor for rescheduling so a flood of resets
// cannot produce near-zero re-arms.
func (m *Monitor) fire(s *Session, w *watch) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	idle := time.Since(w.lastActivity)
	if idle <= m.timeout {
		next := m.timeout - idle
		if next < m.probe {
			next = m.probe
		}
		w.timer.Reset(next)
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	// Eviction re-enters the hub and ultimately Disarm; no watch lock
	// may be held here.
	m.evict(s)
}

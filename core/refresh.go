package core

import "time"

// RefreshState is the state of the refresh debouncer.
type RefreshState int

const (
	// RefreshIdle means no refresh request is outstanding.
	RefreshIdle RefreshState = iota
	// RefreshPending means a request was issued and not yet answered.
	RefreshPending
)

func (s RefreshState) String() string {
	switch s {
	case RefreshIdle:
		return "idle"
	case RefreshPending:
		return "pending"
	default:
		return "unknown"
	}
}

// refreshMachine coalesces refresh triggers so that at most one request is
// outstanding. It only leaves RefreshPending through resolve, reset, or an
// expired timeout when one is configured.
type refreshMachine struct {
	state   RefreshState
	since   time.Time
	timeout time.Duration
	issued  uint64
}

// trigger moves Idle to RefreshPending and reports whether the caller must
// issue a request. Triggers while pending are no-ops.
func (m *refreshMachine) trigger(now time.Time) bool {
	if m.state == RefreshPending {
		if m.timeout <= 0 || now.Sub(m.since) < m.timeout {
			return false
		}
	}
	m.state = RefreshPending
	m.since = now
	m.issued++
	return true
}

// resolve returns to Idle after the surface answered. It reports whether a
// request was outstanding.
func (m *refreshMachine) resolve() bool {
	pending := m.state == RefreshPending
	m.state = RefreshIdle
	m.since = time.Time{}
	return pending
}

func (m *refreshMachine) reset() {
	m.state = RefreshIdle
	m.since = time.Time{}
}

// RefreshState reports the debouncer state.
func (b *Bridge) RefreshState() RefreshState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refresh.state
}

// RefreshPending reports whether a refresh request is outstanding.
func (b *Bridge) RefreshPending() bool {
	return b.RefreshState() == RefreshPending
}

// RefreshRequests returns how many refresh requests have been issued.
func (b *Bridge) RefreshRequests() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refresh.issued
}

// scheduleRefresh triggers the debouncer. When it leaves Idle, one deferred
// task asks the surface to emit its full project state.
func (b *Bridge) scheduleRefresh(reason string) {
	if !b.Loaded() {
		b.logger.Trace("bridge refresh skipped", "reason", reason, "loaded", false)
		return
	}
	b.mu.Lock()
	issue := b.refresh.trigger(b.now())
	b.mu.Unlock()
	if !issue {
		b.logger.Trace("bridge refresh coalesced", "reason", reason)
		return
	}
	b.logger.Debug("bridge refresh scheduled", "reason", reason)
	b.schedule(func() {
		b.run("emitProjectState")
	})
}

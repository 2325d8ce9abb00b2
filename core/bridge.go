package core

import (
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/internal/logx"
	"pkt.systems/timelinebridge/schema"
)

// Bridge mediates calls and state between the host and one UI surface.
type Bridge struct {
	cfg      schema.BridgeConfig
	sink     EventSink
	logger   pslog.Logger
	schedule Scheduler
	now      func() time.Time

	pageMu sync.RWMutex
	page   Page

	mu      sync.Mutex
	cache   stateCache
	refresh refreshMachine
	closed  bool
}

var _ Receiver = (*Bridge)(nil)

// New constructs a bridge. The page may be attached later.
func New(cfg schema.BridgeConfig, deps Deps) (*Bridge, error) {
	normalized, err := schema.NormalizeBridgeConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedule := deps.Scheduler
	if schedule == nil {
		schedule = goScheduler
	}
	b := &Bridge{
		cfg:      normalized,
		sink:     deps.EventSink,
		logger:   logx.Or(deps.Logger),
		schedule: schedule,
		now:      time.Now,
		page:     deps.Page,
		cache:    newStateCache(),
		refresh:  refreshMachine{timeout: normalized.RefreshTimeout},
	}
	return b, nil
}

// Config returns the normalized bridge configuration.
func (b *Bridge) Config() schema.BridgeConfig {
	return b.cfg
}

// Attach replaces the page transport. A nil page detaches the surface.
func (b *Bridge) Attach(page Page) {
	b.pageMu.Lock()
	b.page = page
	b.pageMu.Unlock()
	b.logger.Debug("bridge page attached", "attached", page != nil)
}

// Loaded reports whether a live surface is attached.
func (b *Bridge) Loaded() bool {
	_, ok := b.livePage()
	return ok
}

// Close detaches the page and drops both caches.
func (b *Bridge) Close() {
	b.Attach(nil)
	b.mu.Lock()
	b.closed = true
	b.cache = newStateCache()
	b.refresh.reset()
	b.mu.Unlock()
	b.logger.Info("bridge closed")
}

func (b *Bridge) livePage() (Page, bool) {
	b.pageMu.RLock()
	page := b.page
	b.pageMu.RUnlock()
	if page == nil || !page.Loaded() {
		return nil, false
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, false
	}
	return page, true
}

package core

import (
	"context"

	"pkt.systems/timelinebridge/schema"
)

// stateCache holds the last known project state and timeline info. Guarded
// by Bridge.mu; accessors hand out deep copies only.
type stateCache struct {
	state      schema.ProjectState
	stateKnown bool
	info       schema.TimelineInfo
}

func newStateCache() stateCache {
	return stateCache{state: schema.DefaultProjectState()}
}

// replace swaps in a full snapshot; partial patches are never applied.
func (c *stateCache) replace(state schema.ProjectState) {
	c.state = state.Clone()
	c.stateKnown = true
}

// fallbackInfo returns the best available timeline info when a fresh fetch
// is unusable: last good info, then the last good state wrapped under
// "project", then an empty mapping.
func (c *stateCache) fallbackInfo() schema.TimelineInfo {
	if c.info != nil {
		return c.info.Clone()
	}
	if c.stateKnown {
		return schema.TimelineInfo{schema.KeyProject: c.state.Map()}
	}
	return schema.TimelineInfo{}
}

// CachedProjectState returns an independent copy of the cached state.
func (b *Bridge) CachedProjectState() schema.ProjectState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.state.Clone()
}

// ProjectStateKnown reports whether the cache holds a state received from
// or pushed to the surface, as opposed to the construction default.
func (b *Bridge) ProjectStateKnown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.stateKnown
}

// TimelineInfo fetches a fresh snapshot from the surface. A usable reply
// becomes the cached info and any embedded project replaces the cached
// state; otherwise the best cached fallback is returned.
func (b *Bridge) TimelineInfo(ctx context.Context) schema.TimelineInfo {
	script, err := buildOptionalCall(b.cfg.Namespace, "collectTimelineInfo")
	if err != nil {
		b.logger.Warn("bridge timeline info encode failed", "err", err)
	}
	var value any
	if err == nil {
		value = b.Evaluate(ctx, script, nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fresh, ok := value.(map[string]any)
	if !ok {
		b.logger.Debug("bridge timeline info fallback", "have_info", b.cache.info != nil, "have_state", b.cache.stateKnown)
		return b.cache.fallbackInfo()
	}
	info := schema.TimelineInfo(fresh)
	b.cache.info = info.Clone()
	if project, ok := info.Project(); ok {
		b.cache.replace(schema.ParseProjectState(project))
	}
	return info.Clone()
}

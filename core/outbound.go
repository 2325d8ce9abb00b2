package core

import (
	"pkt.systems/timelinebridge/internal/logx"
	"pkt.systems/timelinebridge/schema"
)

// run issues a fire-and-forget command. Commands issued while no surface is
// loaded are dropped.
func (b *Bridge) run(method string, args ...any) bool {
	log := logx.WithMethod(b.logger, method)
	page, ok := b.livePage()
	if !ok {
		log.Debug("bridge command dropped", "reason", "page not loaded")
		return false
	}
	script, err := buildCall(b.cfg.Namespace, method, args...)
	if err != nil {
		log.Warn("bridge command encode failed", "err", err)
		return false
	}
	log.Trace("bridge command", "script", logx.Preview(script, 200))
	page.Run(script)
	return true
}

// mutate issues a structural command and schedules a refresh.
func (b *Bridge) mutate(method string, args ...any) {
	if b.run(method, args...) {
		b.scheduleRefresh(method)
	}
}

// AddTrack adds or updates a track definition.
func (b *Bridge) AddTrack(track schema.Track) {
	b.mutate("addTrack", track.Map())
}

// RemoveTrack removes a track by id or display number.
func (b *Bridge) RemoveTrack(id any, opts schema.RemoveTrackOptions) {
	b.mutate("removeTrack", id, opts)
}

// AddClip adds or updates a clip.
func (b *Bridge) AddClip(clip schema.Clip) {
	if clip == nil {
		clip = schema.Clip{}
	}
	b.mutate("addClip", map[string]any(clip))
}

// RemoveClip removes a clip.
func (b *Bridge) RemoveClip(id string) {
	b.mutate("removeClip", id)
}

// UpdateClip merges patch into an existing clip.
func (b *Bridge) UpdateClip(id string, patch map[string]any) {
	if patch == nil {
		patch = map[string]any{}
	}
	b.mutate("updateClip", id, patch)
}

// MoveClip moves a clip to a new layer and/or position.
func (b *Bridge) MoveClip(id string, opts schema.MoveClipOptions) {
	var position any
	if opts.Position != nil {
		position = *opts.Position
	}
	extra := opts.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	b.mutate("moveClip", id, opts.Layer, position, extra)
}

// SetPlayheadPlaying starts or stops playhead animation. Playback does not
// change the project structure, so no refresh is scheduled.
func (b *Bridge) SetPlayheadPlaying(playing bool, opts schema.PlayOptions) {
	var options any = undefined
	if opts.StartAt != nil {
		options = map[string]any{"startAt": *opts.StartAt}
	}
	b.run("setPlayheadPlaying", playing, options)
}

// PlayPlayhead starts playback, optionally from a position.
func (b *Bridge) PlayPlayhead(opts schema.PlayOptions) {
	b.SetPlayheadPlaying(true, opts)
}

// PausePlayhead pauses playback.
func (b *Bridge) PausePlayhead() {
	b.SetPlayheadPlaying(false, schema.PlayOptions{})
}

// TogglePlayhead toggles between playing and paused.
func (b *Bridge) TogglePlayhead() {
	b.run("togglePlayhead")
}

// SetClipColor updates a clip's colors. An empty textColor leaves it as is.
func (b *Bridge) SetClipColor(id, color, textColor string) {
	var text any
	if textColor != "" {
		text = textColor
	}
	b.mutate("setClipColor", id, color, text)
}

// SetProjectState replaces the surface's project and applies it locally.
func (b *Bridge) SetProjectState(state schema.ProjectState) {
	local := state.Clone()
	local.FrameRate = local.FrameRate.Normalize()
	sent := b.run("setProjectState", local.Map())
	b.mu.Lock()
	b.cache.replace(local)
	b.mu.Unlock()
	if sent {
		b.scheduleRefresh("setProjectState")
	}
}

type frameRateWire struct {
	Num int `json:"num"`
	Den int `json:"den"`
}

// SetFrameRate sets a plain frames-per-second rate, sent unmodified.
func (b *Bridge) SetFrameRate(fps float64) {
	b.mutate("setFrameRate", fps)
}

// SetFrameRateRational sets a num/den rate. A zero denominator becomes 1.
func (b *Bridge) SetFrameRateRational(num, den int) {
	rate := schema.FrameRate{Num: num, Den: den}.Normalize()
	b.mutate("setFrameRate", frameRateWire{Num: rate.Num, Den: rate.Den})
}

// ResizeTimeline changes the timeline duration.
func (b *Bridge) ResizeTimeline(duration float64, opts schema.ResizeOptions) {
	b.mutate("resizeTimeline", duration, opts)
}

// MovePlayhead seeks the playhead. Seeking is playback control and does not
// schedule a refresh.
func (b *Bridge) MovePlayhead(seconds float64) {
	b.run("movePlayhead", seconds)
}

// RequestProjectState asks the surface to emit its full project state. It
// goes through the debouncer, so it is a no-op while a refresh is pending.
func (b *Bridge) RequestProjectState() {
	b.scheduleRefresh("request")
}

package schema

import (
	"encoding/json"
	"errors"
	"math"

	"pkt.systems/timelinebridge/internal/variant"
)

// Wire keys used by the timeline project JSON.
const (
	KeyFrameRate        = "fps"
	KeyLayers           = "layers"
	KeyClips            = "clips"
	KeyEffects          = "effects"
	KeyMarkers          = "markers"
	KeyDuration         = "duration"
	KeyPlayheadPosition = "playhead_position"
	KeyProject          = "project"
)

// FrameRate is a rational frames-per-second value.
type FrameRate struct {
	Num int `json:"num" yaml:"num"`
	Den int `json:"den" yaml:"den"`
}

// DefaultFrameRate is 24/1.
var DefaultFrameRate = FrameRate{Num: 24, Den: 1}

// Normalize replaces a zero denominator with 1.
func (f FrameRate) Normalize() FrameRate {
	if f.Den == 0 {
		f.Den = 1
	}
	return f
}

// FPS returns the rate as a float.
func (f FrameRate) FPS() float64 {
	f = f.Normalize()
	return float64(f.Num) / float64(f.Den)
}

// Map returns the {num, den} wire form.
func (f FrameRate) Map() map[string]any {
	f = f.Normalize()
	return map[string]any{"num": int64(f.Num), "den": int64(f.Den)}
}

// FrameRateFromFloat converts a plain rate into a reduced rational using
// millisecond precision (29.97 -> 2997/100).
func FrameRateFromFloat(fps float64) FrameRate {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) || fps*1000 > math.MaxInt32 {
		return DefaultFrameRate
	}
	if fps == math.Trunc(fps) {
		return FrameRate{Num: int(fps), Den: 1}
	}
	num := int(math.Round(fps * 1000))
	den := 1000
	g := gcd(num, den)
	return FrameRate{Num: num / g, Den: den / g}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	if a == 0 {
		return 1
	}
	return a
}

// Track is a horizontal lane on the timeline. Identity is ID; Number is the
// display order and may be reassigned by the UI surface.
type Track struct {
	ID     string         `json:"id" yaml:"id"`
	Number int            `json:"number" yaml:"number"`
	Label  string         `json:"label" yaml:"label"`
	Color  string         `json:"color,omitempty" yaml:"color,omitempty"`
	Lock   bool           `json:"lock" yaml:"lock"`
	Extra  map[string]any `json:"-" yaml:"extra,omitempty"`
}

var trackKeys = map[string]struct{}{"id": {}, "number": {}, "label": {}, "color": {}, "lock": {}}

// ParseTrack reads a track record, tolerating missing or mistyped fields.
func ParseTrack(value any) Track {
	m, ok := variant.Map(value)
	if !ok {
		return Track{}
	}
	var track Track
	track.ID, _ = variant.String(m["id"])
	track.Number, _ = variant.Int(m["number"])
	track.Label, _ = variant.String(m["label"])
	track.Lock = variant.Bool(m["lock"])
	if raw, present := m["color"]; present {
		if color, ok := raw.(string); ok && color != "" {
			track.Color = color
		} else {
			// Empty or non-text colors ride along untouched so the wire form
			// keeps the key.
			track.Extra = map[string]any{"color": raw}
		}
	}
	for key, item := range m {
		if _, known := trackKeys[key]; known {
			continue
		}
		if track.Extra == nil {
			track.Extra = make(map[string]any)
		}
		track.Extra[key] = item
	}
	return track
}

// Map returns the wire form of the track.
func (t Track) Map() map[string]any {
	out := variant.CloneMap(t.Extra)
	out["id"] = t.ID
	out["number"] = int64(t.Number)
	out["label"] = t.Label
	if t.Color != "" {
		out["color"] = t.Color
	}
	out["lock"] = t.Lock
	return out
}

// Clone returns an independent copy.
func (t Track) Clone() Track {
	if t.Extra != nil {
		t.Extra = variant.CloneMap(t.Extra)
	}
	return t
}

// Clip is an opaque clip record. Only id and layer have meaning to callers
// that need to identify a clip.
type Clip map[string]any

// ID returns the clip id as text.
func (c Clip) ID() string {
	id, _ := variant.String(c["id"])
	return id
}

// Layer returns the referenced track identifier as text.
func (c Clip) Layer() string {
	layer, _ := variant.String(c["layer"])
	return layer
}

// Clone returns an independent copy.
func (c Clip) Clone() Clip {
	if c == nil {
		return nil
	}
	return Clip(variant.CloneMap(c))
}

// ProjectState is the full snapshot of the UI surface's project.
type ProjectState struct {
	FrameRate        FrameRate `json:"fps"`
	Layers           []Track   `json:"layers"`
	Clips            []Clip    `json:"clips"`
	Effects          []any     `json:"effects"`
	Markers          []any     `json:"markers"`
	Duration         float64   `json:"duration"`
	PlayheadPosition float64   `json:"playhead_position"`
}

// DefaultProjectState returns the empty project: 24/1, no content, zero
// duration and playhead.
func DefaultProjectState() ProjectState {
	return ProjectState{
		FrameRate: DefaultFrameRate,
		Layers:    []Track{},
		Clips:     []Clip{},
		Effects:   []any{},
		Markers:   []any{},
	}
}

// ParseProjectState builds a state from a loosely typed mapping. Missing or
// malformed fields fall back to DefaultProjectState values.
func ParseProjectState(value any) ProjectState {
	state := DefaultProjectState()
	m, ok := variant.Map(value)
	if !ok {
		return state
	}
	if raw, ok := firstPresent(m, KeyFrameRate, "frameRate", "frame_rate"); ok {
		state.FrameRate = parseFrameRate(raw)
	}
	if layers, ok := variant.Slice(m[KeyLayers]); ok {
		for _, item := range layers {
			if _, isMap := item.(map[string]any); !isMap {
				continue
			}
			state.Layers = append(state.Layers, ParseTrack(item))
		}
	}
	if clips, ok := variant.Slice(m[KeyClips]); ok {
		for _, item := range clips {
			if clip, isMap := item.(map[string]any); isMap {
				state.Clips = append(state.Clips, Clip(clip))
			}
		}
	}
	if effects, ok := variant.Slice(m[KeyEffects]); ok {
		state.Effects = effects
	}
	if markers, ok := variant.Slice(m[KeyMarkers]); ok {
		state.Markers = markers
	}
	if duration, ok := variant.Float(m[KeyDuration]); ok && duration >= 0 {
		state.Duration = duration
	}
	if raw, ok := firstPresent(m, KeyPlayheadPosition, "playheadPosition"); ok {
		if pos, ok := variant.Float(raw); ok && pos >= 0 {
			state.PlayheadPosition = pos
		}
	}
	return state
}

func firstPresent(m map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := m[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func parseFrameRate(value any) FrameRate {
	if m, ok := variant.Map(value); ok {
		num, okNum := variant.Int(m["num"])
		den, _ := variant.Int(m["den"])
		if !okNum || num <= 0 {
			return DefaultFrameRate
		}
		return FrameRate{Num: num, Den: den}.Normalize()
	}
	if fps, ok := variant.Float(value); ok {
		return FrameRateFromFloat(fps)
	}
	return DefaultFrameRate
}

// Map returns the wire form of the state.
func (s ProjectState) Map() map[string]any {
	layers := make([]any, 0, len(s.Layers))
	for _, layer := range s.Layers {
		layers = append(layers, layer.Map())
	}
	clips := make([]any, 0, len(s.Clips))
	for _, clip := range s.Clips {
		clips = append(clips, variant.CloneMap(clip))
	}
	return map[string]any{
		KeyFrameRate:        s.FrameRate.Map(),
		KeyLayers:           layers,
		KeyClips:            clips,
		KeyEffects:          cloneList(s.Effects),
		KeyMarkers:          cloneList(s.Markers),
		KeyDuration:         s.Duration,
		KeyPlayheadPosition: s.PlayheadPosition,
	}
}

// MarshalJSON encodes the wire form, including unknown track keys.
func (s ProjectState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// UnmarshalJSON decodes leniently; malformed fields take default values.
func (s *ProjectState) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return errors.New("project state: invalid json")
	}
	*s = ParseProjectState(json.RawMessage(data))
	return nil
}

// Clone returns a deep, independently owned copy.
func (s ProjectState) Clone() ProjectState {
	out := ProjectState{
		FrameRate:        s.FrameRate,
		Layers:           make([]Track, len(s.Layers)),
		Clips:            make([]Clip, len(s.Clips)),
		Effects:          cloneList(s.Effects),
		Markers:          cloneList(s.Markers),
		Duration:         s.Duration,
		PlayheadPosition: s.PlayheadPosition,
	}
	for i, layer := range s.Layers {
		out.Layers[i] = layer.Clone()
	}
	for i, clip := range s.Clips {
		out.Clips[i] = clip.Clone()
	}
	return out
}

// ClipByID finds a clip by id.
func (s ProjectState) ClipByID(id string) (Clip, bool) {
	for _, clip := range s.Clips {
		if clip.ID() == id {
			return clip.Clone(), true
		}
	}
	return nil, false
}

// TrackByID finds a track by id.
func (s ProjectState) TrackByID(id string) (Track, bool) {
	for _, track := range s.Layers {
		if track.ID == id {
			return track.Clone(), true
		}
	}
	return Track{}, false
}

func cloneList(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = variant.Clone(item)
	}
	return out
}

// TimelineInfo is the ad-hoc snapshot returned by the UI surface on demand.
// Its shape is not fixed; it may embed a full project under "project".
type TimelineInfo map[string]any

// Project extracts the embedded project mapping, if present and well formed.
func (t TimelineInfo) Project() (map[string]any, bool) {
	if t == nil {
		return nil, false
	}
	return variant.Map(t[KeyProject])
}

// Clone returns an independent copy; nil stays nil.
func (t TimelineInfo) Clone() TimelineInfo {
	if t == nil {
		return nil
	}
	return TimelineInfo(variant.CloneMap(t))
}

package schema

// Outbound command names accepted by the command surface.
const (
	CommandAddTrack            = "add_track"
	CommandRemoveTrack         = "remove_track"
	CommandAddClip             = "add_clip"
	CommandRemoveClip          = "remove_clip"
	CommandUpdateClip          = "update_clip"
	CommandMoveClip            = "move_clip"
	CommandPlay                = "play"
	CommandPause               = "pause"
	CommandToggle              = "toggle"
	CommandSetClipColor        = "set_clip_color"
	CommandSetProjectState     = "set_project_state"
	CommandSetFrameRate        = "set_frame_rate"
	CommandResizeTimeline      = "resize_timeline"
	CommandMovePlayhead        = "move_playhead"
	CommandRequestProjectState = "request_project_state"
)

// RemoveTrackOptions controls what happens to a removed track's clips.
type RemoveTrackOptions struct {
	KeepClips   bool `json:"keepClips"`
	AllowShrink bool `json:"allowShrink"`
}

// MoveClipOptions describes a clip move. Nil Layer or Position leaves that
// coordinate unchanged; Extra is passed through to the surface.
type MoveClipOptions struct {
	Layer    any
	Position *float64
	Extra    map[string]any
}

// PlayOptions controls playhead playback. StartAt seeks before playing.
type PlayOptions struct {
	StartAt *float64
}

// ResizeOptions controls a timeline resize.
type ResizeOptions struct {
	AllowShrink bool `json:"allowShrink"`
}

// DefaultResizeOptions allows shrinking, matching the surface default.
func DefaultResizeOptions() ResizeOptions {
	return ResizeOptions{AllowShrink: true}
}

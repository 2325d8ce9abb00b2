package schema

// Inbound method names sent by the UI surface through invoke.
const (
	// MethodProjectState carries a full project snapshot.
	MethodProjectState = "project_state"
	// MethodUpdateClipData reports a clip edited on the surface.
	MethodUpdateClipData = "update_clip_data"
	// MethodRemoveClip reports a clip removed on the surface.
	MethodRemoveClip = "remove_clip"
	// MethodRemoveTrack reports a track removed on the surface.
	MethodRemoveTrack = "remove_track"
	// MethodAddTrack reports a track added on the surface.
	MethodAddTrack = "add_track"
)

// IsStructuralMethod reports whether an inbound method mutates the project
// structure and therefore requires a cache refresh.
func IsStructuralMethod(method string) bool {
	switch method {
	case MethodUpdateClipData, MethodRemoveClip, MethodRemoveTrack, MethodAddTrack:
		return true
	default:
		return false
	}
}

// NotificationType identifies a notification emitted to collaborators.
type NotificationType string

const (
	// NotifyLog carries a log line from the UI surface.
	NotifyLog NotificationType = "log"
	// NotifyPageReady signals that the UI surface finished loading.
	NotifyPageReady NotificationType = "page_ready"
	// NotifyInvoke carries a generic inbound call.
	NotifyInvoke NotificationType = "invoke"
	// NotifyProjectState carries a replaced project snapshot.
	NotifyProjectState NotificationType = "project_state"
)

// LogEvent is a log line forwarded verbatim from the UI surface.
type LogEvent struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// PageReadyEvent is emitted once per UI surface load.
type PageReadyEvent struct{}

// InvokeEvent is a generic inbound call with normalized arguments.
type InvokeEvent struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

// ProjectStateEvent carries the new cached project state.
type ProjectStateEvent struct {
	State ProjectState `json:"state"`
}

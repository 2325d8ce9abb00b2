package wspage

import "encoding/json"

// Frame types exchanged with the surface.
const (
	// FrameRun asks the surface to execute a script.
	FrameRun = "run"
	// FrameEval asks the surface to execute a script and answer with a result frame.
	FrameEval = "eval"
	// FrameResult answers an eval frame.
	FrameResult = "result"
	// FrameCall carries an inbound call from the surface.
	FrameCall = "call"
	// FrameReturn answers a call frame that carried an id.
	FrameReturn = "return"
)

// Inbound call names carried by call frames.
const (
	CallLog       = "qt_log"
	CallPageReady = "page_ready"
	CallInvoke    = "invoke"
)

// Frame is one JSON text message on the bridge socket.
type Frame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Script string          `json:"script,omitempty"`
	Method string          `json:"method,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

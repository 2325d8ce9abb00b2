package core

import "pkt.systems/timelinebridge/schema"

// EventSink receives notifications emitted by the bridge.
type EventSink interface {
	OnLog(event schema.LogEvent)
	OnPageReady(event schema.PageReadyEvent)
	OnInvoke(event schema.InvokeEvent)
	OnProjectState(event schema.ProjectStateEvent)
}

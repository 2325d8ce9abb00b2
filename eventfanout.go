package timelinebridge

import (
	"pkt.systems/timelinebridge/core"
	"pkt.systems/timelinebridge/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f *eventFanout) add(sink core.EventSink) {
	if sink != nil {
		f.sinks = append(f.sinks, sink)
	}
}

func (f *eventFanout) OnLog(event schema.LogEvent) {
	for _, sink := range f.sinks {
		sink.OnLog(event)
	}
}

func (f *eventFanout) OnPageReady(event schema.PageReadyEvent) {
	for _, sink := range f.sinks {
		sink.OnPageReady(event)
	}
}

func (f *eventFanout) OnInvoke(event schema.InvokeEvent) {
	for _, sink := range f.sinks {
		sink.OnInvoke(event)
	}
}

func (f *eventFanout) OnProjectState(event schema.ProjectStateEvent) {
	for _, sink := range f.sinks {
		sink.OnProjectState(event)
	}
}

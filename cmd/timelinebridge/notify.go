package main

import (
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/internal/eventbus"
	"pkt.systems/timelinebridge/schema"
)

// logNotifications writes bridge notifications to the process log until
// events is closed.
func logNotifications(logger pslog.Logger, events <-chan eventbus.Event) {
	log := logger.With("source", "surface")
	for event := range events {
		logNotification(log, event)
	}
}

func logNotification(log pslog.Logger, event eventbus.Event) {
	switch event.Type {
	case schema.NotifyLog:
		surfaceLog(log, event.Log)
	case schema.NotifyPageReady:
		log.Info("surface page ready")
	case schema.NotifyProjectState:
		state := event.State.State
		log.Info("surface project state", "layers", len(state.Layers), "clips", len(state.Clips), "duration", state.Duration)
	case schema.NotifyInvoke:
		log.Debug("surface invoke", "method", event.Invoke.Method, "args", len(event.Invoke.Args))
	}
}

func surfaceLog(log pslog.Logger, entry schema.LogEvent) {
	switch strings.ToLower(strings.TrimSpace(entry.Level)) {
	case "trace":
		log.Trace(entry.Text)
	case "debug":
		log.Debug(entry.Text)
	case "warn", "warning":
		log.Warn(entry.Text)
	case "error":
		log.Error(entry.Text)
	default:
		log.Info(entry.Text)
	}
}

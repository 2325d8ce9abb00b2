package core

import "pkt.systems/pslog"

// Deps captures optional dependencies for the bridge.
type Deps struct {
	Page      Page
	EventSink EventSink
	Logger    pslog.Logger
	// Scheduler runs deferred refresh emissions. Defaults to a new goroutine.
	Scheduler Scheduler
}

// Scheduler runs task after the current operation returns.
type Scheduler func(task func())

func goScheduler(task func()) {
	go task()
}

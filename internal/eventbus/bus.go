package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/schema"
)

// Event represents a bridge notification delivered to subscribers.
type Event struct {
	Type   schema.NotificationType
	Log    schema.LogEvent
	Invoke schema.InvokeEvent
	State  schema.ProjectStateEvent
}

// Bus fans bridge notifications out to subscribers. Publishing never blocks;
// a subscriber that falls behind loses events.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			b.log.Debug("eventbus unsubscribe")
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// OnLog publishes a surface log line.
func (b *Bus) OnLog(event schema.LogEvent) {
	b.publish(Event{Type: schema.NotifyLog, Log: event})
}

// OnPageReady publishes a page ready signal.
func (b *Bus) OnPageReady(schema.PageReadyEvent) {
	b.publish(Event{Type: schema.NotifyPageReady})
}

// OnInvoke publishes a generic inbound call.
func (b *Bus) OnInvoke(event schema.InvokeEvent) {
	b.publish(Event{Type: schema.NotifyInvoke, Invoke: event})
}

// OnProjectState publishes a replaced project snapshot.
func (b *Bus) OnProjectState(event schema.ProjectStateEvent) {
	b.publish(Event{Type: schema.NotifyProjectState, State: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return
	}
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}

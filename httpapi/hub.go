package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/timelinebridge/core"
	"pkt.systems/timelinebridge/internal/logx"
	"pkt.systems/timelinebridge/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64               `json:"seq"`
	Type      string               `json:"type"`
	Level     string               `json:"level,omitempty"`
	Text      string               `json:"text,omitempty"`
	Method    string               `json:"method,omitempty"`
	Args      []any                `json:"args,omitempty"`
	State     *schema.ProjectState `json:"state,omitempty"`
	Snapshot  *SnapshotPayload     `json:"snapshot,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// SnapshotPayload seeds client state on connect.
type SnapshotPayload struct {
	Loaded       bool                `json:"loaded"`
	StateKnown   bool                `json:"state_known"`
	Refresh      string              `json:"refresh"`
	ProjectState schema.ProjectState `json:"project_state"`
}

// Hub broadcasts bridge notifications to stream subscribers and keeps a
// bounded history for replay.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
}

var _ core.EventSink = (*Hub)(nil)

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
	}
}

// OnLog implements core.EventSink.
func (h *Hub) OnLog(event schema.LogEvent) {
	h.publish(StreamEvent{
		Type:      string(schema.NotifyLog),
		Level:     event.Level,
		Text:      event.Text,
		Timestamp: time.Now(),
	})
}

// OnPageReady implements core.EventSink.
func (h *Hub) OnPageReady(schema.PageReadyEvent) {
	h.publish(StreamEvent{
		Type:      string(schema.NotifyPageReady),
		Timestamp: time.Now(),
	})
}

// OnInvoke implements core.EventSink.
func (h *Hub) OnInvoke(event schema.InvokeEvent) {
	logx.WithMethod(logx.Ctx(context.Background()), event.Method).Trace("hub invoke event", "args", len(event.Args))
	h.publish(StreamEvent{
		Type:      string(schema.NotifyInvoke),
		Method:    event.Method,
		Args:      event.Args,
		Timestamp: time.Now(),
	})
}

// OnProjectState implements core.EventSink.
func (h *Hub) OnProjectState(event schema.ProjectStateEvent) {
	state := event.State.Clone()
	h.publish(StreamEvent{
		Type:      string(schema.NotifyProjectState),
		State:     &state,
		Timestamp: time.Now(),
	})
}

// Subscribe registers a subscriber.
func (h *Hub) Subscribe() (<-chan StreamEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	log := logx.Ctx(context.Background())
	log.Info("hub subscribe", "subs", len(h.subs))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.Ctx(context.Background()).Debug("hub replay", "after", after, "count", len(events))
	return events
}

// Seq returns the sequence number of the newest event.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.Ctx(context.Background()).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

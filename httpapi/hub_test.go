package httpapi

import (
	"os"
	"testing"

	"pkt.systems/timelinebridge/schema"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestHubHistoryBounded(t *testing.T) {
	hub := NewHub(2)
	for i := 0; i < 5; i++ {
		hub.OnLog(schema.LogEvent{Text: "line"})
	}
	if hub.Seq() != 5 {
		t.Fatalf("expected seq 5, got %d", hub.Seq())
	}
	replay := hub.Replay(0)
	if len(replay) != 2 || replay[0].Seq != 4 || replay[1].Seq != 5 {
		t.Fatalf("unexpected replay %+v", replay)
	}
	if len(hub.Replay(5)) != 0 {
		t.Fatalf("expected nothing after newest seq")
	}
}

func TestHubStateEventIsCopy(t *testing.T) {
	hub := NewHub(0)
	ch, cancel := hub.Subscribe()
	defer cancel()
	state := schema.DefaultProjectState()
	state.Clips = append(state.Clips, schema.Clip{"id": "c1"})
	hub.OnProjectState(schema.ProjectStateEvent{State: state})
	state.Clips[0]["id"] = "mutated"
	event := <-ch
	if event.Type != "project_state" || event.State == nil || event.State.Clips[0].ID() != "c1" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(0)
	ch, cancel := hub.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	hub.OnPageReady(schema.PageReadyEvent{})
}

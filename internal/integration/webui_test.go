package integration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"pkt.systems/timelinebridge"
)

func TestChromeSurfaceDrivesBundledUI(t *testing.T) {
	execPath := requireChrome(t)
	ts := newTestServer(t, timelinebridge.ServerConfig{Chrome: chromeConfig(execPath)},
		timelinebridge.WithHTTP(), timelinebridge.WithChromeSurface())
	bridge := ts.server.Bridge()
	waitUntil(t, 20*time.Second, "chrome surface page ready", bridge.Loaded)

	resp := writeJSON(t, ts.baseURL+"/api/commands", map[string]any{
		"command": "add_track",
		"args":    map[string]any{"id": "L1", "label": "Video"},
	})
	resp.Body.Close()
	resp = writeJSON(t, ts.baseURL+"/api/commands", map[string]any{
		"command": "add_clip",
		"args":    map[string]any{"id": "c1", "layer": "L1", "start": 0, "end": 4},
	})
	resp.Body.Close()
	waitUntil(t, 5*time.Second, "project state refresh", func() bool {
		state := bridge.CachedProjectState()
		if len(state.Layers) == 1 && len(state.Clips) == 1 {
			return true
		}
		// A refresh answered between the two commands misses the clip.
		if !bridge.RefreshPending() {
			bridge.RequestProjectState()
		}
		return false
	})

	var info struct {
		Loaded bool           `json:"loaded"`
		Info   map[string]any `json:"info"`
	}
	getJSON(t, ts.baseURL+"/api/timeline", &info)
	if !info.Loaded {
		t.Fatalf("expected loaded surface")
	}
	if playing, ok := info.Info["playing"].(bool); !ok || playing {
		t.Fatalf("expected paused playhead in timeline info, got %+v", info.Info)
	}

	resp = writeJSON(t, ts.baseURL+"/api/commands", map[string]any{
		"command": "remove_clip",
		"args":    map[string]any{"id": "c1"},
	})
	resp.Body.Close()
	waitUntil(t, 5*time.Second, "surface-initiated refresh", func() bool {
		return len(bridge.CachedProjectState().Clips) == 0
	})
}

// TestBrowserSurfaceOverWebSocket loads the bundled surface in a separate
// browser that reaches the host through bridge.js.
func TestBrowserSurfaceOverWebSocket(t *testing.T) {
	execPath := requireChrome(t)
	ts := newTestServer(t, timelinebridge.ServerConfig{}, timelinebridge.WithWebSocketSurface())
	bridge := ts.server.Bridge()

	ctx, cancel := newChromedpContext(t, execPath)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.Navigate(ts.baseURL+"/")); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	waitUntil(t, 10*time.Second, "websocket surface page ready", bridge.Loaded)

	resp := writeJSON(t, ts.baseURL+"/api/commands", map[string]any{
		"command": "add_track",
		"args":    map[string]any{"id": "L9", "label": "Audio"},
	})
	resp.Body.Close()
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return waitForText(ctx, `.track[data-id="L9"] .track-label`, "Audio", 5*time.Second)
	}))
	if err != nil {
		t.Fatal(err)
	}
	waitUntil(t, 5*time.Second, "track refresh", func() bool {
		return len(bridge.CachedProjectState().Layers) == 1 && !bridge.RefreshPending()
	})

	resp = writeJSON(t, ts.baseURL+"/api/commands", map[string]any{
		"command": "set_frame_rate",
		"args":    map[string]any{"num": 30000, "den": 1001},
	})
	resp.Body.Close()
	waitUntil(t, 5*time.Second, "frame rate in cached state", func() bool {
		rate := bridge.CachedProjectState().FrameRate
		return rate.Num == 30000 && rate.Den == 1001
	})
}

func newChromedpContext(t *testing.T, execPath string) (context.Context, context.CancelFunc) {
	t.Helper()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)
	ctx, timeoutCancel := context.WithTimeout(ctx, 30*time.Second)
	return ctx, func() {
		timeoutCancel()
		ctxCancel()
		allocCancel()
	}
}

func waitForText(ctx context.Context, selector, expected string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var last string
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%q); return el ? el.textContent : ''; })()`, selector)
	for time.Now().Before(deadline) {
		var text string
		if err := chromedp.Evaluate(script, &text).Do(ctx); err == nil {
			last = text
			if text == expected {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s text=%q (last=%q)", selector, expected, last)
}

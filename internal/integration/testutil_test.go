package integration_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/timelinebridge"
	"pkt.systems/timelinebridge/httpapi"
	"pkt.systems/timelinebridge/internal/chromepage"
	"pkt.systems/timelinebridge/internal/wspage"
	"pkt.systems/timelinebridge/schema"
)

type testServer struct {
	server  timelinebridge.Server
	baseURL string
}

func newTestServer(t *testing.T, cfg timelinebridge.ServerConfig, opts ...timelinebridge.ServerOption) *testServer {
	t.Helper()
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:0"
	}
	srv, err := timelinebridge.New(cfg, timelinebridge.ServerDeps{}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = srv.Stop(stopCtx)
		cancel()
	})
	return &testServer{server: srv, baseURL: "http://" + srv.Addr()}
}

// fakeSurface speaks the bridge socket protocol the way the bundled
// bridge.js does and keeps a minimal project model.
type fakeSurface struct {
	t    *testing.T
	conn *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	tracks  []map[string]any
	scripts []string
}

func dialSurface(t *testing.T, ts *testServer) *fakeSurface {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.baseURL, "http") + "/bridge"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial surface: %v", err)
	}
	s := &fakeSurface{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	go s.loop()
	s.call(wspage.CallLog, `["info","fake surface loaded"]`)
	s.call(wspage.CallPageReady, "")
	return s
}

func (s *fakeSurface) send(f wspage.Frame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteJSON(f)
}

func (s *fakeSurface) call(method, args string) {
	f := wspage.Frame{Type: wspage.FrameCall, Method: method}
	if args != "" {
		f.Args = json.RawMessage(args)
	}
	s.send(f)
}

func (s *fakeSurface) loop() {
	for {
		var f wspage.Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case wspage.FrameRun:
			s.run(f.Script)
		case wspage.FrameEval:
			s.eval(f)
		}
	}
}

func (s *fakeSurface) run(script string) {
	s.mu.Lock()
	s.scripts = append(s.scripts, script)
	if strings.Contains(script, ".addTrack(") {
		start := strings.Index(script, "(")
		var track map[string]any
		if err := json.Unmarshal([]byte(script[start+1:len(script)-1]), &track); err == nil {
			s.tracks = append(s.tracks, track)
		}
	}
	if strings.Contains(script, ".setProjectState(") {
		start := strings.Index(script, "(")
		var project struct {
			Layers []map[string]any `json:"layers"`
		}
		if err := json.Unmarshal([]byte(script[start+1:len(script)-1]), &project); err == nil {
			s.tracks = project.Layers
		}
	}
	s.mu.Unlock()
	if strings.Contains(script, ".emitProjectState(") {
		s.emitState()
	}
}

func (s *fakeSurface) project() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	layers := make([]any, 0, len(s.tracks))
	for i, track := range s.tracks {
		layer := map[string]any{}
		for k, v := range track {
			layer[k] = v
		}
		layer["number"] = i + 1
		layers = append(layers, layer)
	}
	return map[string]any{
		"fps":               map[string]any{"num": 30, "den": 1},
		"layers":            layers,
		"clips":             []any{},
		"duration":          120,
		"playhead_position": 0,
	}
}

func (s *fakeSurface) emitState() {
	data, _ := json.Marshal([]any{schema.MethodProjectState, s.project()})
	s.send(wspage.Frame{Type: wspage.FrameCall, Method: wspage.CallInvoke, Args: data})
}

func (s *fakeSurface) eval(f wspage.Frame) {
	var value any
	if strings.Contains(f.Script, "collectTimelineInfo") {
		value = map[string]any{"duration": 120, "selected": "clip-1", "project": s.project()}
	}
	data, _ := json.Marshal(value)
	s.send(wspage.Frame{Type: wspage.FrameResult, ID: f.ID, Value: data})
}

func (s *fakeSurface) sawScript(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, script := range s.scripts {
		if strings.HasPrefix(script, prefix) {
			return true
		}
	}
	return false
}

func writeJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode >= 300 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatal(err)
	}
}

func getJSON(t *testing.T, url string, target any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	readJSON(t, resp, target)
}

// sseReader yields decoded stream events.
type sseReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func openStream(t *testing.T, url string) *sseReader {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("stream status %d", resp.StatusCode)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return &sseReader{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}
}

func (r *sseReader) next() (httpapi.StreamEvent, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event httpapi.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			return httpapi.StreamEvent{}, err
		}
		return event, nil
	}
	if err := r.scanner.Err(); err != nil {
		return httpapi.StreamEvent{}, err
	}
	return httpapi.StreamEvent{}, io.EOF
}

// waitFor reads until an event of eventType arrives. The reader must not be
// used concurrently.
func (r *sseReader) waitFor(t *testing.T, eventType string, timeout time.Duration) httpapi.StreamEvent {
	t.Helper()
	type result struct {
		event httpapi.StreamEvent
		err   error
	}
	found := make(chan result, 1)
	go func() {
		for {
			event, err := r.next()
			if err != nil || event.Type == eventType {
				found <- result{event: event, err: err}
				return
			}
		}
	}()
	select {
	case res := <-found:
		if res.err != nil {
			t.Fatalf("waiting for %s stream event: %v", eventType, res.err)
		}
		return res.event
	case <-time.After(timeout):
		_ = r.body.Close()
		t.Fatalf("timed out waiting for %s stream event", eventType)
		return httpapi.StreamEvent{}
	}
}

func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// requireChrome skips unless TIMELINEBRIDGE_CHROME=1 and a browser is found.
func requireChrome(t *testing.T) string {
	t.Helper()
	requireLong(t)
	if os.Getenv("TIMELINEBRIDGE_CHROME") != "1" {
		t.Skip("set TIMELINEBRIDGE_CHROME=1 to run browser tests")
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no chrome binary found")
	return ""
}

func chromeConfig(execPath string) chromepage.Config {
	return chromepage.Config{
		Headless: true,
		ExecPath: execPath,
		Flags: map[string]any{
			"disable-gpu": true,
			"no-sandbox":  true,
		},
		StartTimeout: 30 * time.Second,
	}
}

package chromepage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/timelinebridge/schema"
)

type recordingReceiver struct {
	mu      sync.Mutex
	logs    []string
	ready   int
	invokes []string
	args    [][]any
	result  any
}

func (r *recordingReceiver) LogMessage(level, text string) {
	r.mu.Lock()
	r.logs = append(r.logs, level+":"+text)
	r.mu.Unlock()
}

func (r *recordingReceiver) PageReady() {
	r.mu.Lock()
	r.ready++
	r.mu.Unlock()
}

func (r *recordingReceiver) Invoke(method string, args []any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokes = append(r.invokes, method)
	r.args = append(r.args, args)
	return r.result
}

func (r *recordingReceiver) snapshot() (int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready, append([]string(nil), r.invokes...)
}

func TestShimDefinesTimelineObject(t *testing.T) {
	shim := shimScript("__tb")
	for _, want := range []string{`const binding = "__tb";`, "qt_log:", "page_ready:", "invoke:", `binding + "Resolve"`} {
		if !strings.Contains(shim, want) {
			t.Fatalf("shim missing %q", want)
		}
	}
}

func TestResolveScript(t *testing.T) {
	got, err := resolveScript("__tb", "c1", map[string]any{"ok": true})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if want := `window["__tbResolve"]?.("c1", {"ok":true})`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if _, err := resolveScript("__tb", "c1", make(chan int)); err == nil {
		t.Fatalf("expected encode error")
	}
}

func TestHandleBindingDispatches(t *testing.T) {
	p := New(Config{URL: "about:blank"}, nil)
	recv := &recordingReceiver{result: "answer"}
	p.SetReceiver(recv)

	p.handleBinding(`{"method":"qt_log","args":["info","hello"]}`)
	if p.Loaded() {
		t.Fatalf("expected not loaded before page ready")
	}
	p.handleBinding(`{"method":"page_ready","args":[]}`)
	if !p.Loaded() {
		t.Fatalf("expected loaded after page ready")
	}
	p.handleBinding(`{"id":"c7","method":"invoke","args":["update_clip_data",["{\"id\":\"x\"}"]]}`)
	p.handleBinding(`{"method":"invoke","args":["select_clip",[]]}`)
	p.handleBinding(`not json`)
	p.handleBinding(`{"method":"mystery"}`)

	ready, invokes := recv.snapshot()
	if ready != 1 || len(invokes) != 2 || invokes[0] != "update_clip_data" || invokes[1] != "select_clip" {
		t.Fatalf("unexpected dispatch: ready=%d invokes=%v", ready, invokes)
	}
	if len(recv.logs) != 1 || recv.logs[0] != "info:hello" {
		t.Fatalf("unexpected logs %v", recv.logs)
	}
	if len(recv.args[0]) != 1 || recv.args[0][0] != `{"id":"x"}` {
		t.Fatalf("unexpected invoke args %#v", recv.args[0])
	}

	select {
	case task := <-p.queue:
		if task.script != `window["__timelineBridgeResolve"]?.("c7", "answer")` {
			t.Fatalf("unexpected resolve script %q", task.script)
		}
	default:
		t.Fatalf("expected invoke result to be returned to the surface")
	}
	select {
	case task := <-p.queue:
		t.Fatalf("did not expect a return for an invoke without id: %q", task.script)
	default:
	}
}

func TestQueueFullDrops(t *testing.T) {
	p := New(Config{QueueDepth: 1}, nil)
	p.Run("a()")
	p.Run("b()")
	if len(p.queue) != 1 {
		t.Fatalf("expected bounded queue, got %d", len(p.queue))
	}
}

func TestStuckScriptDoesNotHoldWorker(t *testing.T) {
	p := New(Config{ScriptTimeout: 50 * time.Millisecond}, nil)
	var mu sync.Mutex
	var ran []string
	p.exec = func(ctx context.Context, script string, _ bool) (any, error) {
		if script == "hang()" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		mu.Lock()
		ran = append(ran, script)
		mu.Unlock()
		return script, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.workers.Add(1)
	go p.runWorker(ctx)
	t.Cleanup(func() {
		cancel()
		p.workers.Wait()
	})

	hung := make(chan any, 1)
	p.Eval("hang()", func(v any) { hung <- v })
	p.Run("after()")
	got := make(chan any, 1)
	p.Eval("value()", func(v any) { got <- v })

	select {
	case v := <-got:
		if v != "value()" {
			t.Fatalf("unexpected eval value %#v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker stalled behind a script that never settles")
	}
	mu.Lock()
	order := strings.Join(ran, ",")
	mu.Unlock()
	if order != "after(),value()" {
		t.Fatalf("unexpected script order %q", order)
	}
	select {
	case v := <-hung:
		t.Fatalf("timed out eval should not report a value, got %#v", v)
	default:
	}
}

func TestScriptTimeoutDefault(t *testing.T) {
	if got := New(Config{}, nil).cfg.ScriptTimeout; got != schema.DefaultEvalTimeout {
		t.Fatalf("expected default script timeout %v, got %v", schema.DefaultEvalTimeout, got)
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := len(AllocatorOptions(Config{}))
	opts := AllocatorOptions(Config{ExecPath: "/usr/bin/chromium", Flags: map[string]any{"no-sandbox": true}})
	if len(opts) != base+2 {
		t.Fatalf("expected exec path and flag options, got %d (base %d)", len(opts), base)
	}
}

func TestStartRequiresURL(t *testing.T) {
	if err := New(Config{}, nil).Start(context.Background()); err == nil {
		t.Fatalf("expected error without url")
	}
}

const testSurface = `<!doctype html>
<html><body><script>
window.calls = [];
window.timelineApi = {
  addClip: (clip) => { window.calls.push(clip.id); window.timeline.invoke("update_clip_data", JSON.stringify(clip)); },
  collectTimelineInfo: () => ({ calls: window.calls.slice() }),
};
window.addEventListener("load", () => {
  window.timeline.qt_log("info", "surface up");
  window.timeline.page_ready();
});
</script></body></html>`

func TestChromeRoundTrip(t *testing.T) {
	requireChrome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, testSurface)
	}))
	t.Cleanup(srv.Close)

	p := New(Config{
		URL:           srv.URL,
		Headless:      true,
		Flags:         map[string]any{"no-sandbox": true, "disable-gpu": true},
		ScriptTimeout: 500 * time.Millisecond,
	}, nil)
	recv := &recordingReceiver{}
	p.SetReceiver(recv)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(p.Close)

	waitFor(t, "page ready", p.Loaded)
	p.Eval(`new Promise(() => {})`, func(any) {})
	p.Run(`window.timelineApi?.addClip({"id":"c1"})`)
	got := make(chan any, 1)
	p.Eval(`window.timelineApi?.collectTimelineInfo?.()`, func(v any) { got <- v })
	select {
	case v := <-got:
		m, ok := v.(map[string]any)
		if !ok || fmt.Sprint(m["calls"]) != "[c1]" {
			t.Fatalf("unexpected eval value %#v", v)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for eval")
	}
	waitFor(t, "invoke", func() bool {
		_, invokes := recv.snapshot()
		return len(invokes) == 1 && invokes[0] == "update_clip_data"
	})
}

func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if os.Getenv("TIMELINEBRIDGE_CHROME") != "1" {
		t.Skip("set TIMELINEBRIDGE_CHROME=1 to run browser tests")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

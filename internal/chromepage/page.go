package chromepage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/core"
	"pkt.systems/timelinebridge/internal/logx"
	"pkt.systems/timelinebridge/internal/variant"
	"pkt.systems/timelinebridge/schema"
)

const transportName = "chrome"

// Config controls the browser and the surface it loads.
type Config struct {
	// URL is the UI surface to navigate to.
	URL string
	// Headless runs the browser without a window.
	Headless bool
	// ExecPath overrides the browser binary.
	ExecPath string
	// Flags are extra browser command line flags.
	Flags map[string]any
	// Binding names the runtime binding used by the shim.
	Binding string
	// QueueDepth bounds scripts waiting for the worker.
	QueueDepth int
	// StartTimeout bounds browser launch and the first navigation.
	StartTimeout time.Duration
	// ScriptTimeout bounds each script on the worker so a promise that never
	// settles or a modal dialog cannot hold up later scripts.
	ScriptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Binding == "" {
		c.Binding = DefaultBinding
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 1024
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	if c.ScriptTimeout <= 0 {
		c.ScriptTimeout = schema.DefaultEvalTimeout
	}
	return c
}

type task struct {
	script string
	done   func(any)
}

// Page drives one Chrome tab as a core.Page. Scripts run on a single worker
// in issue order; inbound calls are dispatched on a second goroutine in
// arrival order.
type Page struct {
	cfg Config
	log pslog.Logger

	recvMu sync.RWMutex
	recv   core.Receiver

	queue   chan task
	inbound chan string
	loaded  atomic.Bool

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	stopped  bool
	workers  sync.WaitGroup
	stopOnce sync.Once

	exec func(ctx context.Context, script string, wantValue bool) (any, error)
}

var _ core.Page = (*Page)(nil)

// New constructs a page; call Start to launch the browser.
func New(cfg Config, logger pslog.Logger) *Page {
	cfg = cfg.withDefaults()
	p := &Page{
		cfg:     cfg,
		log:     logx.Or(logger).With("transport", transportName),
		queue:   make(chan task, cfg.QueueDepth),
		inbound: make(chan string, cfg.QueueDepth),
	}
	p.exec = p.evaluate
	return p
}

// SetReceiver sets the inbound side calls are dispatched to.
func (p *Page) SetReceiver(recv core.Receiver) {
	p.recvMu.Lock()
	p.recv = recv
	p.recvMu.Unlock()
}

func (p *Page) receiver() core.Receiver {
	p.recvMu.RLock()
	defer p.recvMu.RUnlock()
	return p.recv
}

// AllocatorOptions returns the exec allocator options for cfg.
func AllocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for name, value := range cfg.Flags {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// SetURL replaces the surface URL. It has no effect once started.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	if !p.started {
		p.cfg.URL = url
	}
	p.mu.Unlock()
}

// URL returns the surface URL the page navigates to.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.URL
}

// Start launches the browser, installs the shim and navigates to the
// surface. The browser lives until ctx is cancelled or Close is called.
func (p *Page) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cfg.URL == "" {
		p.mu.Unlock()
		return errors.New("chromepage: url is required")
	}
	if p.started {
		p.mu.Unlock()
		return errors.New("chromepage: already started")
	}
	p.started = true
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(p.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(p.logf),
		chromedp.WithErrorf(p.logf),
	)
	p.ctx = browserCtx
	p.cancel = func() {
		browserCancel()
		allocCancel()
	}
	p.mu.Unlock()

	chromedp.ListenTarget(browserCtx, p.onEvent)

	startCtx, cancel := context.WithTimeout(browserCtx, p.cfg.StartTimeout)
	defer cancel()
	err := chromedp.Run(startCtx,
		runtime.AddBinding(p.cfg.Binding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(shimScript(p.cfg.Binding)).Do(ctx)
			return err
		}),
		chromedp.Navigate(p.cfg.URL),
	)
	if err != nil {
		p.Close()
		return fmt.Errorf("chromepage start: %w", err)
	}

	p.workers.Add(2)
	go p.runWorker(browserCtx)
	go p.dispatchInbound(browserCtx)
	p.log.Info("chromepage started", "url", p.cfg.URL, "headless", p.cfg.Headless)
	return nil
}

// Done is closed when the browser context ends.
func (p *Page) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	return p.ctx.Done()
}

// Close shuts the browser down and waits for the workers.
func (p *Page) Close() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		cancel := p.cancel
		p.mu.Unlock()
		p.loaded.Store(false)
		if cancel != nil {
			cancel()
		}
		p.workers.Wait()
		p.log.Info("chromepage closed")
	})
}

// Loaded reports whether the current document has reported page ready.
func (p *Page) Loaded() bool {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	return !stopped && p.loaded.Load()
}

// Run queues script for the worker.
func (p *Page) Run(script string) {
	p.enqueue(task{script: script})
}

// Eval queues script and calls done with its value. done is not called if
// the browser goes away first.
func (p *Page) Eval(script string, done func(value any)) {
	p.enqueue(task{script: script, done: done})
}

func (p *Page) enqueue(t task) {
	select {
	case p.queue <- t:
	default:
		p.log.Warn("chromepage script dropped", "reason", "queue full")
	}
}

func (p *Page) onEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		if ev.Name != p.cfg.Binding {
			return
		}
		select {
		case p.inbound <- ev.Payload:
		default:
			p.log.Warn("chromepage inbound dropped", "reason", "queue full")
		}
	case *cdppage.EventFrameNavigated:
		if isMainFrame(ev.Frame) {
			p.loaded.Store(false)
			p.log.Debug("chromepage navigated", "url", ev.Frame.URL)
		}
	case *runtime.EventExceptionThrown:
		if ev.ExceptionDetails != nil {
			p.log.Debug("chromepage exception", "text", ev.ExceptionDetails.Text)
		}
	}
}

func (p *Page) logf(format string, args ...any) {
	p.log.Trace("chromedp", "msg", fmt.Sprintf(format, args...))
}

func isMainFrame(frame *cdp.Frame) bool {
	return frame != nil && frame.ParentID == ""
}

func (p *Page) runWorker(ctx context.Context) {
	defer p.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			scriptCtx, cancel := context.WithTimeout(ctx, p.cfg.ScriptTimeout)
			value, err := p.exec(scriptCtx, t.script, t.done != nil)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, context.DeadlineExceeded) {
					// The caller's own timeout supplies its default.
					p.log.Warn("chromepage script timed out", "timeout", p.cfg.ScriptTimeout, "script", logx.Preview(t.script, 120))
					continue
				}
				p.log.Debug("chromepage script failed", "err", err, "script", logx.Preview(t.script, 120))
			}
			if t.done != nil {
				t.done(value)
			}
		}
	}
}

func (p *Page) evaluate(ctx context.Context, script string, wantValue bool) (any, error) {
	var value any
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := runtime.Evaluate(script)
		if wantValue {
			params = params.WithReturnByValue(true).WithAwaitPromise(true)
		}
		obj, exc, err := params.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		if wantValue && obj != nil && len(obj.Value) > 0 {
			value = variant.Normalize(json.RawMessage(obj.Value))
		}
		return nil
	}))
	return value, err
}

type bindingCall struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

func (p *Page) dispatchInbound(ctx context.Context) {
	defer p.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-p.inbound:
			p.handleBinding(payload)
		}
	}
}

func (p *Page) handleBinding(payload string) {
	var call bindingCall
	if err := json.Unmarshal([]byte(payload), &call); err != nil {
		p.log.Warn("chromepage binding decode failed", "err", err, "preview", logx.Preview(payload, 120))
		return
	}
	log := logx.WithMethod(p.log, call.Method)
	recv := p.receiver()
	if recv == nil {
		log.Warn("chromepage call dropped", "reason", "no receiver")
		return
	}
	var args []any
	if len(call.Args) > 0 {
		args, _ = variant.Slice(json.RawMessage(call.Args))
	}
	arg := func(i int) any {
		if i < len(args) {
			return args[i]
		}
		return nil
	}
	switch call.Method {
	case "qt_log":
		level, _ := variant.String(arg(0))
		text, _ := variant.String(arg(1))
		recv.LogMessage(level, text)
	case "page_ready":
		p.loaded.Store(true)
		recv.PageReady()
	case "invoke":
		method, _ := variant.String(arg(0))
		callArgs, _ := variant.Slice(arg(1))
		result := recv.Invoke(method, callArgs)
		if call.ID == "" {
			return
		}
		script, err := resolveScript(p.cfg.Binding, call.ID, result)
		if err != nil {
			log.Warn("chromepage return encode failed", "err", err)
			script, _ = resolveScript(p.cfg.Binding, call.ID, nil)
		}
		p.Run(script)
	default:
		log.Warn("chromepage call unknown", "err", schema.ErrUnknownCommand)
	}
}

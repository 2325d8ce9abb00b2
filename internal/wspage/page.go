package wspage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/core"
	"pkt.systems/timelinebridge/internal/logx"
	"pkt.systems/timelinebridge/internal/variant"
	"pkt.systems/timelinebridge/schema"
)

const transportName = "websocket"

// Config tunes the socket transport.
type Config struct {
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// PingInterval is how often the host pings the surface. The read
	// deadline is twice this value.
	PingInterval time.Duration
	// QueueDepth bounds outbound frames buffered per connection.
	QueueDepth int
	// ReadLimit bounds a single inbound frame in bytes.
	ReadLimit int64
	// CheckOrigin overrides the same-origin check of the upgrader.
	CheckOrigin func(r *http.Request) bool
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 8 << 20
	}
	return c
}

// Page is a core.Page served over a WebSocket. One surface is live at a
// time; a new connection replaces the previous one.
type Page struct {
	cfg      Config
	upgrader websocket.Upgrader
	log      pslog.Logger

	recvMu sync.RWMutex
	recv   core.Receiver

	mu     sync.Mutex
	conn   *surfaceConn
	closed bool
}

var _ core.Page = (*Page)(nil)

// New constructs a socket page. Attach the receiver before serving.
func New(cfg Config, logger pslog.Logger) *Page {
	cfg = cfg.withDefaults()
	return &Page{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		log: logx.Or(logger).With("transport", transportName),
	}
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

// Loaded reports whether a connected surface has reported page ready.
func (p *Page) Loaded() bool {
	c := p.current()
	return c != nil && c.ready.Load() && !c.isClosed()
}

// Connected reports whether any surface is connected.
func (p *Page) Connected() bool {
	c := p.current()
	return c != nil && !c.isClosed()
}

// Run queues script for execution on the current surface.
func (p *Page) Run(script string) {
	c := p.current()
	if c == nil {
		p.log.Debug("wspage run dropped", "reason", "no surface")
		return
	}
	if !c.send(Frame{Type: FrameRun, Script: script}) {
		c.log.Warn("wspage run dropped", "reason", "queue full or closed")
	}
}

// Eval queues script and calls done with the surface's answer. done is
// never called when the surface goes away first.
func (p *Page) Eval(script string, done func(value any)) {
	c := p.current()
	if c == nil {
		p.log.Debug("wspage eval dropped", "reason", "no surface")
		return
	}
	id := uuid.NewString()
	c.addPending(id, done)
	if !c.send(Frame{Type: FrameEval, ID: id, Script: script}) {
		c.takePending(id)
		c.log.Warn("wspage eval dropped", "reason", "queue full or closed")
	}
}

// Close disconnects the current surface and rejects new connections.
func (p *Page) Close() {
	p.mu.Lock()
	c := p.conn
	p.conn = nil
	p.closed = true
	p.mu.Unlock()
	if c != nil {
		c.close()
	}
}

func (p *Page) current() *surfaceConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// ServeHTTP upgrades the request and serves the surface until it
// disconnects or is replaced.
func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		http.Error(w, schema.ErrPageClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.Warn("wspage upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	if err := p.Serve(r.Context(), ws); err != nil {
		p.log.Debug("wspage surface ended", "err", err)
	}
}

// Serve runs an already upgraded connection until it ends.
func (p *Page) Serve(ctx context.Context, ws *websocket.Conn) error {
	c := newSurfaceConn(ws, p.cfg, p.log.With("surface", uuid.NewString()))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = ws.Close()
		return schema.ErrPageClosed
	}
	old := p.conn
	p.conn = c
	p.mu.Unlock()
	if old != nil {
		old.log.Info("wspage surface replaced")
		old.close()
	}
	c.log.Info("wspage surface connected", "remote", ws.RemoteAddr().String())

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()

	err := c.readLoop(func(f Frame) { p.handle(c, f) })
	c.close()
	p.mu.Lock()
	if p.conn == c {
		p.conn = nil
	}
	p.mu.Unlock()
	c.log.Info("wspage surface disconnected")
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (p *Page) handle(c *surfaceConn, f Frame) {
	switch f.Type {
	case FrameResult:
		done := c.takePending(f.ID)
		if done == nil {
			c.log.Trace("wspage result unmatched", "id", f.ID)
			return
		}
		done(decodeValue(f.Value))
	case FrameCall:
		p.handleCall(c, f)
	default:
		c.log.Warn("wspage frame ignored", "type", f.Type)
	}
}

func (p *Page) handleCall(c *surfaceConn, f Frame) {
	recv := p.receiver()
	args, _ := variant.Slice(decodeValue(f.Args))
	log := logx.WithMethod(c.log, f.Method)
	if recv == nil {
		log.Warn("wspage call dropped", "reason", "no receiver")
		return
	}
	switch f.Method {
	case CallLog:
		level, _ := variant.String(arg(args, 0))
		text, _ := variant.String(arg(args, 1))
		recv.LogMessage(level, text)
	case CallPageReady:
		// Mark ready first so page-ready listeners can issue commands.
		c.ready.Store(true)
		recv.PageReady()
	case CallInvoke:
		method, _ := variant.String(arg(args, 0))
		callArgs, _ := variant.Slice(arg(args, 1))
		result := recv.Invoke(method, callArgs)
		if f.ID == "" {
			return
		}
		value, err := json.Marshal(result)
		if err != nil {
			log.Warn("wspage return encode failed", "err", err)
			value = []byte("null")
		}
		c.send(Frame{Type: FrameReturn, ID: f.ID, Value: value})
	default:
		log.Warn("wspage call unknown")
	}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func decodeValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return variant.Normalize(raw)
}

type surfaceConn struct {
	ws    *websocket.Conn
	cfg   Config
	log   pslog.Logger
	out   chan Frame
	done  chan struct{}
	once  sync.Once
	ready atomic.Bool

	mu      sync.Mutex
	pending map[string]func(any)
}

func newSurfaceConn(ws *websocket.Conn, cfg Config, log pslog.Logger) *surfaceConn {
	return &surfaceConn{
		ws:      ws,
		cfg:     cfg,
		log:     log,
		out:     make(chan Frame, cfg.QueueDepth),
		done:    make(chan struct{}),
		pending: make(map[string]func(any)),
	}
}

func (c *surfaceConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *surfaceConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		c.mu.Lock()
		dropped := len(c.pending)
		c.pending = make(map[string]func(any))
		c.mu.Unlock()
		if dropped > 0 {
			c.log.Debug("wspage pending evals dropped", "count", dropped)
		}
	})
}

// send queues f without blocking.
func (c *surfaceConn) send(f Frame) bool {
	if c.isClosed() {
		return false
	}
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

func (c *surfaceConn) addPending(id string, done func(any)) {
	c.mu.Lock()
	c.pending[id] = done
	c.mu.Unlock()
}

func (c *surfaceConn) takePending(id string) func(any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	done := c.pending[id]
	delete(c.pending, id)
	return done
}

func (c *surfaceConn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			data, err := json.Marshal(f)
			if err != nil {
				c.log.Warn("wspage frame encode failed", "err", err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("wspage write failed", "err", err)
				c.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("wspage ping failed", "err", err)
				c.close()
				return
			}
		}
	}
}

func (c *surfaceConn) readLoop(handle func(Frame)) error {
	wait := 2 * c.cfg.PingInterval
	c.ws.SetReadLimit(c.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))
		if kind != websocket.TextMessage {
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("wspage frame decode failed", "err", err, "preview", logx.Preview(string(data), 120))
			continue
		}
		if err := safeHandle(handle, f); err != nil {
			c.log.Error("wspage frame handler panicked", "err", err)
		}
	}
}

func safeHandle(handle func(Frame), f Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Sprint(r))
		}
	}()
	handle(f)
	return nil
}

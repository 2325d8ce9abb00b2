package timelinebridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/core"
	"pkt.systems/timelinebridge/httpapi"
	"pkt.systems/timelinebridge/internal/chromepage"
	"pkt.systems/timelinebridge/internal/eventbus"
	"pkt.systems/timelinebridge/internal/seed"
	"pkt.systems/timelinebridge/internal/wspage"
	"pkt.systems/timelinebridge/schema"
)

// Server composes the bridge, its surface transport and the HTTP surface.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Bridge returns the bridge for in-process collaborators.
	Bridge() *core.Bridge
	// Addr returns the HTTP listen address once started.
	Addr() string
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Bridge    schema.BridgeConfig
	HTTP      httpapi.Config
	WebSocket wspage.Config
	Chrome    chromepage.Config
	// Seed is pushed to the surface on every page ready when set.
	Seed *seed.Project
}

// ServerDeps captures optional collaborators.
type ServerDeps struct {
	Logger    pslog.Logger
	EventSink core.EventSink
	// Bus receives every bridge notification when set.
	Bus       *eventbus.Bus
	Scheduler core.Scheduler
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP      bool
	enableWebSocket bool
	enableChrome    bool
}

// WithHTTP enables the HTTP API and surface files.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithWebSocketSurface serves the surface socket on /bridge. Implies WithHTTP.
func WithWebSocketSurface() ServerOption {
	return func(o *serverOptions) {
		o.enableHTTP = true
		o.enableWebSocket = true
	}
}

// WithChromeSurface drives the surface in a Chrome tab.
func WithChromeSurface() ServerOption {
	return func(o *serverOptions) { o.enableChrome = true }
}

// New constructs a composable bridge server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.enableWebSocket && options.enableChrome {
		return nil, errors.New("only one surface transport may be enabled")
	}
	if !options.enableWebSocket && !options.enableChrome {
		return nil, errors.New("no surface transport enabled")
	}
	if options.enableChrome && !options.enableHTTP && cfg.Chrome.URL == "" {
		return nil, errors.New("chrome surface url is required without the http server")
	}

	fanout := &eventFanout{}
	fanout.add(deps.EventSink)
	if deps.Bus != nil {
		fanout.add(deps.Bus)
	}
	var hub *httpapi.Hub
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HTTP.StreamHistory)
		fanout.add(hub)
	}

	bridge, err := core.New(cfg.Bridge, core.Deps{
		EventSink: fanout,
		Logger:    deps.Logger,
		Scheduler: deps.Scheduler,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Seed != nil && !cfg.Seed.Empty() {
		fanout.add(seed.NewSink(*cfg.Seed, bridge, deps.Logger))
	}

	srv := &compositeServer{
		cfg:     cfg,
		options: options,
		bridge:  bridge,
	}
	if options.enableWebSocket {
		srv.wsPage = wspage.New(cfg.WebSocket, deps.Logger)
		srv.wsPage.SetReceiver(bridge)
		bridge.Attach(srv.wsPage)
	}
	if options.enableChrome {
		chromeCfg := cfg.Chrome
		if chromeCfg.ScriptTimeout <= 0 {
			chromeCfg.ScriptTimeout = bridge.Config().EvalTimeout
		}
		srv.chrome = chromepage.New(chromeCfg, deps.Logger)
		srv.chrome.SetReceiver(bridge)
		bridge.Attach(srv.chrome)
	}
	if options.enableHTTP {
		var surface http.Handler
		if srv.wsPage != nil {
			surface = srv.wsPage
		}
		srv.httpSrv = httpapi.NewServer(cfg.HTTP, bridge, surface, hub)
	}
	return srv, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	bridge  *core.Bridge
	httpSrv *httpapi.Server
	wsPage  *wspage.Page
	chrome  *chromepage.Page
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	addr    string
	started bool
}

func (s *compositeServer) Bridge() *core.Bridge {
	return s.bridge
}

func (s *compositeServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 3)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"websocket", s.options.enableWebSocket,
		"chrome", s.options.enableChrome,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"namespace", s.bridge.Config().Namespace,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		listener, err := net.Listen("tcp", s.cfg.HTTP.Addr)
		if err != nil {
			s.cancel()
			return fmt.Errorf("http listen: %w", err)
		}
		s.mu.Lock()
		s.addr = listener.Addr().String()
		s.mu.Unlock()
		go func() {
			if err := httpapi.Serve(s.ctx, listener, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.options.enableChrome && s.chrome != nil {
		if err := s.startChrome(); err != nil {
			s.cancel()
			return err
		}
	}
	return nil
}

func (s *compositeServer) startChrome() error {
	if s.chrome.URL() == "" {
		url := localSurfaceURL(s.Addr(), s.cfg.HTTP.BasePath)
		s.logger.Info("chrome surface defaults to bundled ui", "url", url)
		s.chrome.SetURL(url)
	}
	if err := s.chrome.Start(s.ctx); err != nil {
		return err
	}
	go func() {
		select {
		case <-s.ctx.Done():
		case <-s.chrome.Done():
			if s.ctx.Err() == nil {
				s.errCh <- errors.New("browser exited")
			}
		}
	}()
	return nil
}

// localSurfaceURL points the browser at the bundled surface.
func localSurfaceURL(addr, basePath string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	path := strings.TrimRight(strings.TrimSpace(basePath), "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(host, port) + path + "/"
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.chrome != nil {
		s.chrome.Close()
	}
	if s.wsPage != nil {
		s.wsPage.Close()
	}
	s.bridge.Close()
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/timelinebridge"
	"pkt.systems/timelinebridge/httpapi"
	"pkt.systems/timelinebridge/internal/appconfig"
	"pkt.systems/timelinebridge/internal/chromepage"
	"pkt.systems/timelinebridge/internal/eventbus"
	"pkt.systems/timelinebridge/internal/seed"
)

type serveFlags struct {
	cfgPath   string
	transport string
	addr      string
	url       string
	seedFile  string
	uiDir     string
	headless  bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bridge and wait for a UI surface to connect",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	addServeFlags(cmd, &flags)
	cmd.Flags().StringVar(&flags.transport, "transport", "", "surface transport (websocket or chrome)")
	return cmd
}

func newChromeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "chrome",
		Short: "Serve the bridge with the surface driven in Chrome",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.transport = appconfig.TransportChrome
			return runServe(cmd, flags)
		},
	}
	addServeFlags(cmd, &flags)
	cmd.Flags().BoolVar(&flags.headless, "headless", true, "run the browser without a window")
	return cmd
}

func addServeFlags(cmd *cobra.Command, flags *serveFlags) {
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "http listen address")
	cmd.Flags().StringVar(&flags.url, "url", "", "surface url for the chrome transport")
	cmd.Flags().StringVar(&flags.seedFile, "seed", "", "project file pushed on every page ready")
	cmd.Flags().StringVar(&flags.uiDir, "ui-dir", "", "serve the surface from this directory")
}

// applyServeFlags overlays explicitly set flags on the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *appconfig.Config, flags serveFlags) error {
	if flags.transport != "" {
		cfg.Surface.Transport = strings.ToLower(strings.TrimSpace(flags.transport))
	}
	if flags.addr != "" {
		cfg.HTTP.Addr = flags.addr
	}
	if flags.url != "" {
		cfg.Surface.URL = flags.url
	}
	if flags.seedFile != "" {
		cfg.Surface.SeedFile = flags.seedFile
	}
	if flags.uiDir != "" {
		cfg.Surface.UIDir = flags.uiDir
	}
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		cfg.Chrome.Headless = flags.headless
	}
	return appconfig.Validate(*cfg)
}

// buildServer translates the application config into compositor settings.
func buildServer(cfg appconfig.Config) (timelinebridge.ServerConfig, []timelinebridge.ServerOption, error) {
	serverCfg := timelinebridge.ServerConfig{
		Bridge: cfg.BridgeSettings(),
		HTTP:   toHTTPConfig(cfg),
		Chrome: chromepage.Config{
			URL:      cfg.Surface.URL,
			Headless: cfg.Chrome.Headless,
			ExecPath: cfg.Chrome.ExecPath,
			Flags:    cfg.Chrome.Flags,
		},
	}
	if path := strings.TrimSpace(cfg.Surface.SeedFile); path != "" {
		project, err := seed.Load(path)
		if err != nil {
			return timelinebridge.ServerConfig{}, nil, err
		}
		serverCfg.Seed = &project
	}
	opts := []timelinebridge.ServerOption{timelinebridge.WithHTTP()}
	switch cfg.Surface.Transport {
	case appconfig.TransportWebSocket:
		opts = append(opts, timelinebridge.WithWebSocketSurface())
	case appconfig.TransportChrome:
		opts = append(opts, timelinebridge.WithChromeSurface())
	default:
		return timelinebridge.ServerConfig{}, nil, fmt.Errorf("unsupported surface.transport %q", cfg.Surface.Transport)
	}
	return serverCfg, opts, nil
}

func toHTTPConfig(cfg appconfig.Config) httpapi.Config {
	return httpapi.Config{
		Addr:          cfg.HTTP.Addr,
		BaseURL:       cfg.HTTP.BaseURL,
		BasePath:      cfg.HTTP.BasePath,
		UIDir:         cfg.Surface.UIDir,
		StreamHistory: cfg.HTTP.StreamHistory,
	}
}

func runServe(cmd *cobra.Command, flags serveFlags) error {
	logger := pslog.Ctx(cmd.Context())
	cfg, err := appconfig.Load(flags.cfgPath)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, &cfg, flags); err != nil {
		return err
	}
	serverCfg, opts, err := buildServer(cfg)
	if err != nil {
		return err
	}

	bus := eventbus.New(logger)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go logNotifications(logger, events)

	server, err := timelinebridge.New(serverCfg, timelinebridge.ServerDeps{
		Logger: logger,
		Bus:    bus,
	}, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil {
			logger.Warn("server stop failed", "err", err)
		}
	}()
	logger.Info("surface transport selected", "transport", cfg.Surface.Transport, "namespace", serverCfg.Bridge.Namespace)
	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("http server listening", "addr", server.Addr(), "base_path", serverCfg.HTTP.BasePath)
	return server.Wait()
}

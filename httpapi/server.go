package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/timelinebridge/core"
	"pkt.systems/timelinebridge/internal/logx"
	"pkt.systems/timelinebridge/schema"
)

// Bridge is the part of the bridge the HTTP surface exposes.
type Bridge interface {
	Loaded() bool
	RefreshState() core.RefreshState
	CachedProjectState() schema.ProjectState
	ProjectStateKnown() bool
	TimelineInfo(ctx context.Context) schema.TimelineInfo
	Dispatch(command string, args map[string]any) error
}

// Server serves the HTTP API, the surface socket and the UI surface files.
type Server struct {
	cfg      Config
	bridge   Bridge
	surface  http.Handler
	hub      *Hub
	basePath string
	baseHref string
}

// NewServer constructs an HTTP server. surface handles the /bridge socket
// and may be nil when the surface runs over another transport.
func NewServer(cfg Config, bridge Bridge, surface http.Handler, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub(cfg.StreamHistory)
	}
	return &Server{
		cfg:      cfg,
		bridge:   bridge,
		surface:  surface,
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
		baseHref: buildBaseHref(cfg.BaseURL, cfg.BasePath),
	}
}

// Hub returns the notification hub feeding /api/stream.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.cfg.UIDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.UIDir)))
	} else {
		mux.HandleFunc("/", s.handleIndex)
	}
	mux.HandleFunc("/bridge.js", s.handleBridgeScript)
	mux.HandleFunc("/bridge", s.handleSurface)

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/timeline", s.handleTimeline)
	mux.HandleFunc("/api/commands", s.handleCommand)
	mux.HandleFunc("/api/stream", s.handleStream)

	return mountBasePath(s.basePath, withRequestLogging(mux))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	serveAsset(w, r, indexAsset, "", func(data []byte) []byte {
		return applyBaseHref(data, s.baseHref)
	})
}

func (s *Server) handleBridgeScript(w http.ResponseWriter, r *http.Request) {
	serveAsset(w, r, bridgeScriptAsset, "text/javascript; charset=utf-8", nil)
}

const baseHrefPlaceholder = "<!-- BASE_HREF -->"

func applyBaseHref(data []byte, baseHref string) []byte {
	replacement := ""
	if strings.TrimSpace(baseHref) != "" {
		replacement = fmt.Sprintf(`<base href="%s" />`, html.EscapeString(baseHref))
	}
	return bytes.ReplaceAll(data, []byte(baseHrefPlaceholder), []byte(replacement))
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	if s.surface == nil {
		writeError(w, http.StatusNotFound, errors.New("surface socket disabled"))
		return
	}
	s.surface.ServeHTTP(w, r)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info := s.bridge.TimelineInfo(r.Context())
	if info == nil {
		info = schema.TimelineInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"loaded": s.bridge.Loaded(), "info": info})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Command string         `json:"command"`
		Args    map[string]any `json:"args"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		logx.Ctx(r.Context()).Warn("http command decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log := logx.WithCommand(logx.Ctx(r.Context()), payload.Command)
	if err := s.bridge.Dispatch(payload.Command, payload.Args); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrUnknownCommand) {
			status = http.StatusNotFound
		}
		log.Warn("http command rejected", "err", err)
		writeError(w, status, err)
		return
	}
	loaded := s.bridge.Loaded()
	log.Debug("http command accepted", "loaded", loaded)
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "loaded": loaded})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	// Subscribe before the snapshot so nothing published in between is lost.
	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	snapshot := s.snapshot()
	_ = writeSSEvent(w, StreamEvent{
		Type:      "snapshot",
		Snapshot:  &snapshot,
		Timestamp: time.Now(),
	})
	flusher.Flush()

	replayCount := 0
	var replayed uint64
	if lastID > 0 {
		replay := s.hub.Replay(lastID)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
			replayed = event.Seq
		}
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= replayed {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) snapshot() SnapshotPayload {
	return SnapshotPayload{
		Loaded:       s.bridge.Loaded(),
		StateKnown:   s.bridge.ProjectStateKnown(),
		Refresh:      s.bridge.RefreshState().String(),
		ProjectState: s.bridge.CachedProjectState(),
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(io.LimitReader(body, 8<<20))
	decoder.UseNumber()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

package core

import (
	"encoding/json"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/internal/logx"
	"pkt.systems/timelinebridge/internal/variant"
	"pkt.systems/timelinebridge/schema"
)

// LogMessage forwards a log line from the surface.
func (b *Bridge) LogMessage(level, text string) {
	defer b.recoverInbound("qt_log")
	b.logger.Trace("bridge surface log", "level", level, "text", logx.Preview(text, 200))
	if b.sink != nil {
		b.sink.OnLog(schema.LogEvent{Level: level, Text: text})
	}
}

// PageReady records a finished surface load. A request issued to a previous
// load can no longer be answered, so the debouncer returns to Idle.
func (b *Bridge) PageReady() {
	defer b.recoverInbound("page_ready")
	b.mu.Lock()
	wasPending := b.refresh.resolve()
	b.mu.Unlock()
	b.logger.Info("bridge page ready", "refresh_reset", wasPending)
	if b.sink != nil {
		b.sink.OnPageReady(schema.PageReadyEvent{})
	}
}

// Invoke is the generic inbound call. For project_state it replaces the
// cached state and returns the parsed mapping; otherwise it returns nil.
// It never panics across the boundary.
func (b *Bridge) Invoke(method string, args []any) (result any) {
	defer func() {
		if recovered := b.recoverValue(method, recover()); recovered {
			result = nil
		}
	}()
	normalized := normalizeArgs(args)
	log := logx.WithMethod(b.logger, method)

	if method == schema.MethodProjectState {
		payload := decodeStatePayload(normalized, log)
		state := schema.ParseProjectState(payload)
		b.mu.Lock()
		b.cache.replace(state)
		wasPending := b.refresh.resolve()
		b.mu.Unlock()
		log.Debug("bridge project state", "layers", len(state.Layers), "clips", len(state.Clips), "refresh_pending", wasPending)
		if b.sink != nil {
			b.sink.OnProjectState(schema.ProjectStateEvent{State: state.Clone()})
			b.sink.OnInvoke(schema.InvokeEvent{Method: method, Args: []any{variant.CloneMap(payload)}})
		}
		return payload
	}

	log.Trace("bridge invoke", "args", len(normalized))
	if b.sink != nil {
		b.sink.OnInvoke(schema.InvokeEvent{Method: method, Args: normalized})
	}
	if schema.IsStructuralMethod(method) {
		b.scheduleRefresh(method)
	}
	return nil
}

func normalizeArgs(args []any) []any {
	if args == nil {
		return []any{}
	}
	normalized, ok := variant.Normalize(args).([]any)
	if !ok {
		return []any{}
	}
	return normalized
}

// decodeStatePayload accepts a mapping or a string holding a serialized
// mapping. Anything else yields an empty mapping.
func decodeStatePayload(args []any, log pslog.Logger) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	switch v := args[0].(type) {
	case map[string]any:
		return v
	case string:
		if m, ok := variant.Map(json.RawMessage(v)); ok {
			return m
		}
		log.Warn("bridge project state decode failed", "preview", logx.Preview(v, 120))
		return map[string]any{}
	default:
		log.Warn("bridge project state payload ignored", "type", fmt.Sprintf("%T", v))
		return map[string]any{}
	}
}

func (b *Bridge) recoverInbound(method string) {
	b.recoverValue(method, recover())
}

func (b *Bridge) recoverValue(method string, recovered any) bool {
	if recovered == nil {
		return false
	}
	logx.WithMethod(b.logger, method).Error("bridge inbound call panicked", "panic", fmt.Sprint(recovered))
	return true
}

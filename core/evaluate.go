package core

import (
	"context"
	"sync"
	"time"

	"pkt.systems/timelinebridge/internal/variant"
)

// evalResult is resolved exactly once by whichever of the page callback,
// the timer or the caller's context fires first.
type evalResult struct {
	once     sync.Once
	done     chan struct{}
	value    any
	fallback bool
}

func newEvalResult() *evalResult {
	return &evalResult{done: make(chan struct{})}
}

// resolve stores value and wakes the waiter. It reports false when the
// result was already resolved; the value is then ignored.
func (r *evalResult) resolve(value any, timedOut bool) bool {
	resolved := false
	r.once.Do(func() {
		r.value = value
		r.fallback = timedOut
		resolved = true
		close(r.done)
	})
	return resolved
}

// Evaluate runs script on the surface and waits for its value, bounded by
// the configured timeout and ctx. On timeout, cancellation or a missing
// surface it returns def. The result is normalized either way.
func (b *Bridge) Evaluate(ctx context.Context, script string, def any) any {
	value, _ := b.evaluate(ctx, script, def)
	return value
}

// evaluate also reports whether the surface answered in time.
func (b *Bridge) evaluate(ctx context.Context, script string, def any) (any, bool) {
	page, ok := b.livePage()
	if !ok {
		b.logger.Debug("bridge evaluate skipped", "reason", "page not loaded")
		return variant.Normalize(def), false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	result := newEvalResult()
	timer := time.AfterFunc(b.cfg.EvalTimeout, func() {
		if result.resolve(def, true) {
			b.logger.Debug("bridge evaluate timed out", "timeout_ms", b.cfg.EvalTimeout.Milliseconds())
		}
	})
	defer timer.Stop()

	page.Eval(script, func(value any) {
		if !result.resolve(value, false) {
			b.logger.Trace("bridge evaluate late reply ignored")
		}
	})

	select {
	case <-result.done:
	case <-ctx.Done():
		result.resolve(def, true)
		<-result.done
	}
	return variant.Normalize(result.value), !result.fallback
}

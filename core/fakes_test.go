package core

import (
	"strings"
	"sync"
	"testing"

	"pkt.systems/timelinebridge/schema"
)

type fakePage struct {
	mu      sync.Mutex
	loaded  bool
	scripts []string
	evals   []string
	reply   func(script string, done func(any))
}

func newFakePage() *fakePage {
	return &fakePage{loaded: true}
}

func (p *fakePage) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *fakePage) setLoaded(loaded bool) {
	p.mu.Lock()
	p.loaded = loaded
	p.mu.Unlock()
}

func (p *fakePage) Run(script string) {
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	p.mu.Unlock()
}

func (p *fakePage) Eval(script string, done func(any)) {
	p.mu.Lock()
	p.evals = append(p.evals, script)
	reply := p.reply
	p.mu.Unlock()
	if reply != nil {
		reply(script, done)
	}
}

func (p *fakePage) runScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

func (p *fakePage) count(method string) int {
	n := 0
	for _, script := range p.runScripts() {
		if strings.Contains(script, "?."+method+"(") {
			n++
		}
	}
	return n
}

func (p *fakePage) last(t *testing.T) string {
	t.Helper()
	scripts := p.runScripts()
	if len(scripts) == 0 {
		t.Fatalf("expected a script to be sent")
	}
	return scripts[len(scripts)-1]
}

type manualScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *manualScheduler) schedule(task func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *manualScheduler) flush() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

type recordingSink struct {
	mu     sync.Mutex
	logs   []schema.LogEvent
	ready  int
	invoke []schema.InvokeEvent
	states []schema.ProjectStateEvent
}

func (s *recordingSink) OnLog(event schema.LogEvent) {
	s.mu.Lock()
	s.logs = append(s.logs, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnPageReady(schema.PageReadyEvent) {
	s.mu.Lock()
	s.ready++
	s.mu.Unlock()
}

func (s *recordingSink) OnInvoke(event schema.InvokeEvent) {
	s.mu.Lock()
	s.invoke = append(s.invoke, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnProjectState(event schema.ProjectStateEvent) {
	s.mu.Lock()
	s.states = append(s.states, event)
	s.mu.Unlock()
}

type testBridge struct {
	*Bridge
	page  *fakePage
	sched *manualScheduler
	sink  *recordingSink
}

func newTestBridge(t *testing.T, cfg schema.BridgeConfig) testBridge {
	t.Helper()
	page := newFakePage()
	sched := &manualScheduler{}
	sink := &recordingSink{}
	b, err := New(cfg, Deps{Page: page, EventSink: sink, Scheduler: sched.schedule})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	return testBridge{Bridge: b, page: page, sched: sched, sink: sink}
}

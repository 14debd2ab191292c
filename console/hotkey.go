package console

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ryebridge/cobalt/console/key"
	"github.com/ryebridge/cobalt/errors"
)

// ExecMode selects how a hotkey handler runs relative to the dispatch loop.
type ExecMode int

const (
	// ExecSync runs the handler inline on the dispatch goroutine. The
	// handler must be fast and non-blocking: it shares the path that
	// decides whether the next byte is read promptly.
	ExecSync ExecMode = iota
	// ExecScheduled hands the handler off to the application scheduler
	// and returns immediately.
	ExecScheduled
)

// Handler is invoked with the event that triggered the binding.
type Handler func(key.Event)

// Binding associates a canonical key code with a handler.
type Binding struct {
	Key  string
	Mode ExecMode
	Fn   Handler
}

// Registry maps key codes to handlers. It is safe to mutate concurrently
// with dispatch.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Binding
	log      *log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{bindings: make(map[string]Binding), log: logger}
}

// Bind registers fn for the key described by spec (see key.Parse for the
// accepted forms). Rebinding an already-bound key replaces the previous
// handler; the replacement is logged and the old binding returned so the
// caller can restore it. Last registration wins, explicitly.
func (r *Registry) Bind(spec string, mode ExecMode, fn Handler) (*Binding, error) {
	ev, err := key.Parse(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot bind hotkey")
	}
	if fn == nil {
		return nil, errors.New("cannot bind %s: nil handler", ev.Code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.bindings[ev.Code]
	r.bindings[ev.Code] = Binding{Key: ev.Code, Mode: mode, Fn: fn}
	if had {
		r.log.Printf("console: %s rebound, previous handler replaced", ev.Code)
		return &prev, nil
	}
	return nil, nil
}

// Unbind removes the binding for spec, reporting whether one existed.
func (r *Registry) Unbind(spec string) bool {
	ev, err := key.Parse(spec)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, had := r.bindings[ev.Code]
	delete(r.bindings, ev.Code)
	return had
}

// Bound returns the currently bound key codes, sorted, for help output.
func (r *Registry) Bound() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.bindings))
	for code := range r.bindings {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (r *Registry) lookup(code string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[code]
	return b, ok
}

// Dispatcher consumes decoded key events and invokes bound handlers. It is
// driven from the single decode goroutine; only the registry it reads from
// is shared state.
type Dispatcher struct {
	reg       *Registry
	suspended func() bool
	schedule  func(func())
	exempt    map[string]struct{}
	log       *log.Logger

	// debounce state, touched only on the dispatch goroutine.
	interval time.Duration
	now      func() time.Time
	lastAt   map[string]time.Time
}

func newDispatcher(reg *Registry, suspended func() bool, schedule func(func()), exempt []string, logger *log.Logger) *Dispatcher {
	d := &Dispatcher{
		reg:       reg,
		suspended: suspended,
		schedule:  schedule,
		exempt:    make(map[string]struct{}, len(exempt)),
		log:       logger,
		interval:  debounceInterval,
		now:       time.Now,
		lastAt:    make(map[string]time.Time),
	}
	for _, spec := range exempt {
		if ev, err := key.Parse(spec); err == nil {
			d.exempt[ev.Code] = struct{}{}
		}
	}
	return d
}

// Dispatch routes one event. Unbound keys are discarded silently; that is
// not an error. Handler panics are contained here: they are logged with the
// offending key and the loop keeps running.
func (d *Dispatcher) Dispatch(ev key.Event) {
	if d.suspended() {
		if _, ok := d.exempt[ev.Code]; !ok {
			return
		}
	}

	b, ok := d.reg.lookup(ev.Code)
	if !ok {
		return
	}

	// Terminal auto-repeat can flood the queue; coalesce repeats of the
	// same key arriving inside the debounce window.
	now := d.now()
	if last, seen := d.lastAt[ev.Code]; seen && now.Sub(last) < d.interval {
		return
	}
	d.lastAt[ev.Code] = now

	switch b.Mode {
	case ExecScheduled:
		d.schedule(func() { d.invoke(b, ev) })
	default:
		d.invoke(b, ev)
	}
}

func (d *Dispatcher) invoke(b Binding, ev key.Event) {
	defer func() {
		if v := recover(); v != nil {
			d.log.Printf("console: handler for %s failed: %v", b.Key, errors.FromPanic(v))
		}
	}()
	b.Fn(ev)
}

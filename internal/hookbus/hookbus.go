// Package hookbus implements the in-process pub/sub lifecycle event
// system the pipeline runs its probes, enhancer, router, validator, and
// persistence steps through. Handlers are priority-ordered and
// error-isolated: a panicking or erroring handler never aborts the run.
package hookbus

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/floegence/forge/internal/probes"
	"github.com/floegence/forge/internal/validator"
)

// Point is one of the fixed lifecycle hook points.
type Point string

const (
	BeforeContext  Point = "before:Context"
	AfterContext   Point = "after:Context"
	BeforeEnhance  Point = "before:Enhance"
	AfterEnhance   Point = "after:Enhance"
	BeforeGenerate Point = "before:Generate"
	AfterGenerate  Point = "after:Generate"
	BeforeValidate Point = "before:Validate"
	AfterValidate  Point = "after:Validate"
	BeforePersist  Point = "before:Persist"
	AfterPersist   Point = "after:Persist"
	OnError        Point = "onError"
)

// State is the typed data threaded through one pipeline run. Handlers
// observe and mutate named fields rather than string-keyed map entries;
// a handler may return a replacement state, and an absent return
// leaves it as-is.
type State struct {
	Prompt   string
	Context  probes.Bundle
	Enhanced string
	HTML     string
	Score    *validator.Score
	Errors   []HookError
	Timings  map[string]time.Duration
}

// HookError records one handler's failure without aborting the run.
type HookError struct {
	Hook    string
	Handler string
	Error   string
}

func appendHookError(s State, he HookError) State {
	s.Errors = append(s.Errors, he)
	return s
}

// Handler is invoked at a hook point with the current state; it may
// return a new state to replace the current one.
type Handler func(point Point, state State) (State, error)

type registration struct {
	point    Point
	name     string
	priority int
	seq      int
	handler  Handler
}

// Bus holds the registered handlers for every lifecycle point.
type Bus struct {
	mu       sync.Mutex
	handlers map[Point][]registration
	seq      int
}

func New() *Bus {
	return &Bus{handlers: map[Point][]registration{}}
}

// Register adds handler under name at point, ordered by priority
// (lower runs first) then by insertion order on ties.
func (b *Bus) Register(point Point, handler Handler, name string, priority int) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	reg := registration{point: point, name: name, priority: priority, seq: b.seq, handler: handler}
	list := append(b.handlers[point], reg)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	b.handlers[point] = list
}

// Unregister removes every handler installed under pluginName by
// Install, across every hook point.
func (b *Bus) Unregister(pluginName string) {
	if b == nil {
		return
	}
	prefix := pluginName + ":"
	b.mu.Lock()
	defer b.mu.Unlock()
	for point, list := range b.handlers {
		kept := list[:0:0]
		for _, reg := range list {
			if !strings.HasPrefix(reg.name, prefix) {
				kept = append(kept, reg)
			}
		}
		b.handlers[point] = kept
	}
}

// Run invokes every handler registered at point, in priority order,
// against state. A handler's error or panic is captured into the
// returned state's hook-error list; execution continues to the next
// handler. If any handler failed and point isn't itself OnError, OnError
// handlers are run afterward against the resulting state.
func (b *Bus) Run(point Point, state State) State {
	if b == nil {
		return state
	}

	b.mu.Lock()
	list := append([]registration(nil), b.handlers[point]...)
	b.mu.Unlock()

	failed := false
	for _, reg := range list {
		next, err := callHandlerSafely(reg, point, state)
		if err != nil {
			state = appendHookError(state, HookError{Hook: string(point), Handler: reg.name, Error: err.Error()})
			failed = true
			continue
		}
		state = next
	}

	if failed && point != OnError {
		state = b.runLocked(OnError, state)
	}
	return state
}

// runLocked runs a point without re-acquiring the caller's intent to
// avoid recursing into OnError forever; it's identical to Run but never
// triggers a further OnError pass.
func (b *Bus) runLocked(point Point, state State) State {
	b.mu.Lock()
	list := append([]registration(nil), b.handlers[point]...)
	b.mu.Unlock()

	for _, reg := range list {
		next, err := callHandlerSafely(reg, point, state)
		if err != nil {
			state = appendHookError(state, HookError{Hook: string(point), Handler: reg.name, Error: err.Error()})
			continue
		}
		state = next
	}
	return state
}

func callHandlerSafely(reg registration, point Point, state State) (State, error) {
	var (
		next State
		err  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		next, err = reg.handler(point, state)
	}()
	return next, err
}

// Bundle is a named group of hook registrations a plugin installs and
// removes as a unit.
type Bundle struct {
	Name  string
	Hooks []BundleHook
}

type BundleHook struct {
	Point    Point
	Handler  Handler
	Priority int
}

// Install registers every hook in the bundle under "<name>:<index>",
// which Unregister(name) later removes as a group.
func (b *Bus) Install(bundle Bundle) {
	if b == nil {
		return
	}
	for i, h := range bundle.Hooks {
		b.Register(h.Point, h.Handler, fmt.Sprintf("%s:%d", bundle.Name, i), h.Priority)
	}
}

package proxy

import (
	"container/list"
	"errors"
	"fmt"
	"sort"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
	"github.com/GriffinCanCode/scriptbridge/internal/shared/id"
)

// Registry installs proxies into one runtime and dispatches their events.
// It belongs to the runtime: only the goroutine running jobs may use it.
type Registry struct {
	vm     *goja.Runtime
	logger *zap.Logger

	installed map[string]*installation
	listeners map[listenerKey]*listenerList
	handles   map[id.ListenerID]*list.Element
}

type installation struct {
	def *Definition
	obj *goja.Object
}

type listenerKey struct {
	key   string
	event string
}

type listener struct {
	handle  id.ListenerID
	key     listenerKey
	fn      goja.Callable
	fnObj   goja.Value
	host    HostListener
	removed bool
}

type listenerList struct {
	items *list.List
}

// HostListener is a listener registered from Go
type HostListener func(ev *Event) error

// Event is passed to listeners for the duration of one dispatch
type Event struct {
	Key    string
	Type   string
	Detail value.Value

	vetoed bool
}

// PreventDefault vetoes the event; no later listener runs
func (e *Event) PreventDefault() { e.vetoed = true }

// DefaultPrevented reports whether a listener vetoed the event
func (e *Event) DefaultPrevented() bool { return e.vetoed }

// NewRegistry creates a registry bound to vm
func NewRegistry(vm *goja.Runtime, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		vm:        vm,
		logger:    logger.Named("proxy"),
		installed: make(map[string]*installation),
		listeners: make(map[listenerKey]*listenerList),
		handles:   make(map[id.ListenerID]*list.Element),
	}
}

// Install binds def into the global scope. A second install of the same
// path fails and leaves the first one untouched.
func (r *Registry) Install(def *Definition) error {
	if def == nil {
		return &InstallError{Err: fmt.Errorf("%w: nil definition", ErrInvalidDefinition)}
	}

	key := def.Key()
	if err := def.Validate(); err != nil {
		return &InstallError{Key: key, Err: fmt.Errorf("%w: %v", ErrInvalidDefinition, err)}
	}
	if _, exists := r.installed[key]; exists {
		return &InstallError{Key: key, Err: ErrDuplicateProxy}
	}
	if err := r.checkFree(def); err != nil {
		return &InstallError{Key: key, Err: err}
	}

	parent, err := r.namespace(def.Namespace)
	if err != nil {
		return &InstallError{Key: key, Err: err}
	}

	obj := r.vm.NewObject()
	for _, name := range def.order {
		if err := obj.Set(name, r.wrap(key, name, def.methods[name])); err != nil {
			return &InstallError{Key: key, Err: err}
		}
	}
	if def.EventTarget {
		if err := r.bindEventTarget(key, obj); err != nil {
			return &InstallError{Key: key, Err: err}
		}
	}
	if err := parent.Set(def.Name, obj); err != nil {
		return &InstallError{Key: key, Err: err}
	}

	r.installed[key] = &installation{def: def, obj: obj}
	r.logger.Debug("proxy installed",
		zap.String("key", key),
		zap.Strings("methods", def.order),
		zap.Bool("event_target", def.EventTarget))
	return nil
}

// checkFree walks the existing globals without creating anything
func (r *Registry) checkFree(def *Definition) error {
	cur := r.vm.GlobalObject()
	for _, seg := range def.Namespace {
		v := cur.Get(seg)
		if v == nil || goja.IsUndefined(v) {
			return nil
		}
		obj, ok := v.(*goja.Object)
		if !ok {
			return fmt.Errorf("%w: %q is not an object", ErrInvalidDefinition, seg)
		}
		cur = obj
	}
	if v := cur.Get(def.Name); v != nil && !goja.IsUndefined(v) {
		return fmt.Errorf("%w: global property already defined", ErrDuplicateProxy)
	}
	return nil
}

func (r *Registry) namespace(path []string) (*goja.Object, error) {
	cur := r.vm.GlobalObject()
	for _, seg := range path {
		v := cur.Get(seg)
		if obj, ok := v.(*goja.Object); ok {
			cur = obj
			continue
		}
		next := r.vm.NewObject()
		if err := cur.Set(seg, next); err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// Installed reports whether key has been installed
func (r *Registry) Installed(key string) bool {
	_, ok := r.installed[key]
	return ok
}

// Keys lists installed proxy paths, sorted
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.installed))
	for key := range r.installed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Invoke calls an installed method from the host side
func (r *Registry) Invoke(key, method string, args []value.Value) (value.Value, error) {
	inst, ok := r.installed[key]
	if !ok {
		return value.Undefined, fmt.Errorf("%s: %w", key, ErrUnknownProxy)
	}
	m, ok := inst.def.methods[method]
	if !ok {
		return value.Undefined, fmt.Errorf("%s.%s: method not defined", key, method)
	}
	return m(&Call{VM: r.vm, Registry: r, Path: key, Method: method, This: inst.obj, Args: args})
}

func (r *Registry) wrap(key, name string, m Method) func(goja.FunctionCall) goja.Value {
	return func(fc goja.FunctionCall) goja.Value {
		result, err := m(&Call{
			VM:       r.vm,
			Registry: r,
			Path:     key,
			Method:   name,
			This:     fc.This,
			Args:     value.FromArgs(fc.Arguments),
		})
		if err != nil {
			r.throw(err)
		}
		return result.ToJS(r.vm)
	}
}

// throw raises err in the calling script. Panicking with a goja.Value is
// how native functions throw.
func (r *Registry) throw(err error) {
	var thrown *value.ThrownError
	if errors.As(err, &thrown) && thrown.Value != nil {
		panic(thrown.Value)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		panic(exc.Value())
	}
	if errors.Is(err, value.ErrTypeMismatch) {
		panic(r.vm.NewTypeError(err.Error()))
	}
	panic(r.vm.NewGoError(err))
}

package proxy

import (
	"container/list"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
	"github.com/GriffinCanCode/scriptbridge/internal/shared/id"
)

func (r *Registry) bindEventTarget(key string, obj *goja.Object) error {
	add := func(fc goja.FunctionCall) goja.Value {
		event := fc.Argument(0).String()
		fn, ok := goja.AssertFunction(fc.Argument(1))
		if !ok {
			panic(r.vm.NewTypeError(fmt.Sprintf("%s.%s: %v", key, addListenerMethod, ErrInvalidListenerArg)))
		}
		r.addScriptListener(listenerKey{key: key, event: event}, fn, fc.Argument(1))
		return goja.Undefined()
	}

	remove := func(fc goja.FunctionCall) goja.Value {
		r.removeScriptListener(listenerKey{key: key, event: fc.Argument(0).String()}, fc.Argument(1))
		return goja.Undefined()
	}

	dispatch := func(fc goja.FunctionCall) goja.Value {
		vetoed, err := r.dispatch(key, fc.Argument(0).String(), value.FromJS(fc.Argument(1)))
		if err != nil {
			r.throw(err)
		}
		return r.vm.ToValue(vetoed)
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		addListenerMethod:    add,
		removeListenerMethod: remove,
		dispatchMethod:       dispatch,
	} {
		if err := obj.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) list(k listenerKey) *listenerList {
	ll, ok := r.listeners[k]
	if !ok {
		ll = &listenerList{items: list.New()}
		r.listeners[k] = ll
	}
	return ll
}

func (r *Registry) addScriptListener(k listenerKey, fn goja.Callable, fnObj goja.Value) {
	ll := r.list(k)
	for e := ll.items.Front(); e != nil; e = e.Next() {
		if l := e.Value.(*listener); l.fnObj != nil && l.fnObj.SameAs(fnObj) {
			return
		}
	}
	r.push(ll, &listener{handle: id.NewListenerID(), key: k, fn: fn, fnObj: fnObj})
}

func (r *Registry) removeScriptListener(k listenerKey, fnObj goja.Value) {
	ll, ok := r.listeners[k]
	if !ok {
		return
	}
	for e := ll.items.Front(); e != nil; e = e.Next() {
		if l := e.Value.(*listener); l.fnObj != nil && l.fnObj.SameAs(fnObj) {
			r.RemoveListener(l.handle)
			return
		}
	}
}

func (r *Registry) push(ll *listenerList, l *listener) {
	r.handles[l.handle] = ll.items.PushBack(l)
}

// AddListener registers a host listener on an installed event target
func (r *Registry) AddListener(namespace []string, name, event string, fn HostListener) (id.ListenerID, error) {
	key := Key(namespace, name)
	if err := r.eventTarget(key); err != nil {
		return "", &DispatchError{Key: key, Event: event, Err: err}
	}
	if fn == nil {
		return "", &DispatchError{Key: key, Event: event, Err: ErrInvalidListenerArg}
	}

	k := listenerKey{key: key, event: event}
	l := &listener{handle: id.NewListenerID(), key: k, host: fn}
	r.push(r.list(k), l)
	return l.handle, nil
}

// RemoveListener removes a listener by handle. Removing during a dispatch
// prevents the listener from running later in that dispatch.
func (r *Registry) RemoveListener(handle id.ListenerID) bool {
	elem, ok := r.handles[handle]
	if !ok {
		return false
	}
	l := elem.Value.(*listener)
	l.removed = true
	delete(r.handles, handle)

	if ll, ok := r.listeners[l.key]; ok {
		ll.items.Remove(elem)
		if ll.items.Len() == 0 {
			delete(r.listeners, l.key)
		}
	}
	return true
}

// ListenerCount returns the number of listeners for an event
func (r *Registry) ListenerCount(namespace []string, name, event string) int {
	ll, ok := r.listeners[listenerKey{key: Key(namespace, name), event: event}]
	if !ok {
		return 0
	}
	return ll.items.Len()
}

// Dispatch runs every listener for event in registration order and
// reports whether one of them vetoed it.
func (r *Registry) Dispatch(namespace []string, name, event string, payload value.Value) (bool, error) {
	return r.dispatch(Key(namespace, name), event, payload)
}

func (r *Registry) eventTarget(key string) error {
	inst, ok := r.installed[key]
	if !ok {
		return ErrUnknownProxy
	}
	if !inst.def.EventTarget {
		return ErrNotEventTarget
	}
	return nil
}

func (r *Registry) dispatch(key, event string, payload value.Value) (bool, error) {
	if err := r.eventTarget(key); err != nil {
		return false, &DispatchError{Key: key, Event: event, Err: err}
	}

	ll, ok := r.listeners[listenerKey{key: key, event: event}]
	if !ok {
		return false, nil
	}

	snapshot := make([]*listener, 0, ll.items.Len())
	for e := ll.items.Front(); e != nil; e = e.Next() {
		snapshot = append(snapshot, e.Value.(*listener))
	}

	ev := &Event{Key: key, Type: event, Detail: payload}
	var jsEvent goja.Value

	for _, l := range snapshot {
		if l.removed {
			continue
		}

		var err error
		if l.host != nil {
			err = l.host(ev)
		} else {
			if jsEvent == nil {
				if jsEvent, err = r.eventObject(ev); err != nil {
					return false, &DispatchError{Key: key, Event: event, Err: err}
				}
			}
			_, err = l.fn(r.installed[key].obj, jsEvent)
		}

		if err != nil {
			r.logger.Debug("listener failed",
				zap.String("key", key),
				zap.String("event", event),
				zap.String("listener", l.handle.String()),
				zap.Error(err))
			return false, &DispatchError{
				Key:      key,
				Event:    event,
				Listener: l.handle,
				Err:      fmt.Errorf("%w: %w", ErrListenerFailed, err),
			}
		}

		if ev.vetoed {
			return true, nil
		}
	}
	return false, nil
}

// eventObject builds the script view of ev, sharing its veto flag
func (r *Registry) eventObject(ev *Event) (goja.Value, error) {
	obj := r.vm.NewObject()
	if err := obj.Set("type", ev.Type); err != nil {
		return nil, err
	}
	if err := obj.Set("detail", ev.Detail.ToJS(r.vm)); err != nil {
		return nil, err
	}
	if err := obj.Set("preventDefault", func(goja.FunctionCall) goja.Value {
		ev.PreventDefault()
		return goja.Undefined()
	}); err != nil {
		return nil, err
	}

	getter := r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(ev.vetoed)
	})
	if err := obj.DefineAccessorProperty("defaultPrevented", getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return nil, err
	}
	return obj, nil
}

package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/scriptbridge/internal/script/loop"
	"github.com/GriffinCanCode/scriptbridge/internal/script/proxy"
)

var (
	// ErrUnavailable means the environment is draining or gone
	ErrUnavailable = errors.New("environment unavailable")
	// ErrNotServing rejects external work before startup completes
	ErrNotServing = errors.New("environment is not serving")
	// ErrBusy means a dispatch did not complete within its deadline
	ErrBusy = errors.New("environment busy")
	// ErrInvalidState is matched by every StateError
	ErrInvalidState = errors.New("invalid state transition")
)

// EnvError is returned by every Engine operation that fails
type EnvError struct {
	Op  string
	Err error
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("env %s: %v", e.Op, e.Err)
}

func (e *EnvError) Unwrap() error { return e.Err }

// ScriptError is an exception raised by script code, detached from the
// runtime so it can cross goroutines
type ScriptError struct {
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	return e.Message
}

// StateError reports an operation attempted in the wrong phase
type StateError struct {
	From State
	To   State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s", e.From, e.To)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

func newScriptError(exc *goja.Exception) *ScriptError {
	msg := exc.Error()
	if obj, ok := exc.Value().(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			name := "Error"
			if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
				name = n.String()
			}
			msg = name + ": " + m.String()
		}
	} else if exc.Value() != nil {
		msg = "Uncaught " + exc.Value().String()
	}
	return &ScriptError{Message: msg, Stack: strings.TrimSpace(exc.String())}
}

// detach replaces runtime exceptions in err with ScriptErrors. It must run
// on the loop, before the error leaves the job.
func detach(err error) error {
	if err == nil {
		return nil
	}

	var exc *goja.Exception
	if !errors.As(err, &exc) {
		return err
	}
	se := newScriptError(exc)

	var de *proxy.DispatchError
	if errors.As(err, &de) {
		return &proxy.DispatchError{
			Key:      de.Key,
			Event:    de.Event,
			Listener: de.Listener,
			Err:      fmt.Errorf("%w: %w", proxy.ErrListenerFailed, se),
		}
	}
	return se
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var envErr *EnvError
	if errors.As(err, &envErr) {
		return err
	}
	if errors.Is(err, loop.ErrClosed) {
		return &EnvError{Op: op, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	return &EnvError{Op: op, Err: err}
}

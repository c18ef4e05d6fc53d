package proxy

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/scriptbridge/internal/shared/id"
)

var (
	ErrDuplicateProxy     = errors.New("proxy already installed")
	ErrInvalidDefinition  = errors.New("invalid proxy definition")
	ErrUnknownProxy       = errors.New("proxy not installed")
	ErrNotEventTarget     = errors.New("proxy is not an event target")
	ErrListenerFailed     = errors.New("event listener failed")
	ErrInvalidListenerArg = errors.New("listener must be a function")
)

// InstallError is returned when a definition cannot be installed
type InstallError struct {
	Key string
	Err error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Key, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// DispatchError is returned when dispatch cannot complete
type DispatchError struct {
	Key      string
	Event    string
	Listener id.ListenerID
	Err      error
}

func (e *DispatchError) Error() string {
	if e.Listener != "" {
		return fmt.Sprintf("dispatch %s on %s: listener %s: %v", e.Event, e.Key, e.Listener, e.Err)
	}
	return fmt.Sprintf("dispatch %s on %s: %v", e.Event, e.Key, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

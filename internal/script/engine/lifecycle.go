package engine

import (
	"fmt"
	"sync/atomic"
)

// State is the startup phase of the environment
type State int32

const (
	StateUninitialized State = iota
	StateConfiguring
	StateProxiesInstalled
	StateModulesLoaded
	StateServing
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfiguring:
		return "configuring"
	case StateProxiesInstalled:
		return "proxies_installed"
	case StateModulesLoaded:
		return "modules_loaded"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// lifecycle guards state transitions
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) current() State {
	return State(l.state.Load())
}

// advance moves to `to` if the current state is one of `from`
func (l *lifecycle) advance(to State, from ...State) error {
	for {
		cur := l.current()
		allowed := false
		for _, f := range from {
			if cur == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return &StateError{From: cur, To: to}
		}
		if l.state.CompareAndSwap(int32(cur), int32(to)) {
			return nil
		}
	}
}

// require fails unless the current state is one of `states`
func (l *lifecycle) require(to State, states ...State) error {
	cur := l.current()
	for _, s := range states {
		if cur == s {
			return nil
		}
	}
	return &StateError{From: cur, To: to}
}

// drain moves to StateDraining from anywhere; it reports whether this
// call made the transition
func (l *lifecycle) drain() bool {
	return State(l.state.Swap(int32(StateDraining))) != StateDraining
}

package value

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// ErrTypeMismatch is matched by every TypeError
var ErrTypeMismatch = errors.New("value: type mismatch")

// TypeError reports an accessor called on the wrong variant
type TypeError struct {
	Want   Kind
	Got    Kind
	Index  int
	Detail string
}

func mismatch(want, got Kind) *TypeError {
	return &TypeError{Want: want, Got: got, Index: -1}
}

func (e *TypeError) Error() string {
	msg := fmt.Sprintf("expected %s, got %s", e.Want, e.Got)
	if e.Index >= 0 {
		msg = fmt.Sprintf("element %d: %s", e.Index, msg)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// ThrownError carries a script value raised by a script.
// Host code returning it rethrows the original value unchanged.
type ThrownError struct {
	Value goja.Value
}

func (e *ThrownError) Error() string {
	if e.Value == nil {
		return "thrown: undefined"
	}
	return "thrown: " + e.Value.String()
}

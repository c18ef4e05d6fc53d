package proxy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Names installed on every event target
const (
	addListenerMethod    = "addEventListener"
	removeListenerMethod = "removeEventListener"
	dispatchMethod       = "dispatchEvent"
)

// Method is a host callback exposed to scripts.
// A returned error is thrown into the calling script.
type Method func(call *Call) (value.Value, error)

// Call is what a Method sees of the invocation
type Call struct {
	VM       *goja.Runtime
	Registry *Registry
	Path     string
	Method   string
	This     goja.Value
	Args     []value.Value
}

// Arg returns the i-th argument, or Undefined
func (c *Call) Arg(i int) value.Value {
	return value.Arg(c.Args, i)
}

// Definition describes a namespaced host object
type Definition struct {
	Namespace   []string
	Name        string
	EventTarget bool

	methods map[string]Method
	order   []string
}

// New starts a definition for namespace.name
func New(namespace []string, name string) *Definition {
	return &Definition{
		Namespace: append([]string(nil), namespace...),
		Name:      name,
		methods:   make(map[string]Method),
	}
}

// AddMethod adds or replaces a method
func (d *Definition) AddMethod(name string, m Method) *Definition {
	if _, exists := d.methods[name]; !exists {
		d.order = append(d.order, name)
	}
	d.methods[name] = m
	return d
}

// SetEventTarget enables addEventListener/removeEventListener/dispatchEvent
func (d *Definition) SetEventTarget(enabled bool) *Definition {
	d.EventTarget = enabled
	return d
}

// Methods returns method names in the order they were added
func (d *Definition) Methods() []string {
	return append([]string(nil), d.order...)
}

// Key returns the dotted global path, e.g. "com.mycompany.MyApp"
func (d *Definition) Key() string {
	return Key(d.Namespace, d.Name)
}

// Key joins a namespace and object name
func Key(namespace []string, name string) string {
	if len(namespace) == 0 {
		return name
	}
	return strings.Join(namespace, ".") + "." + name
}

// Validate checks identifiers and reserved names
func (d *Definition) Validate() error {
	for _, seg := range d.Namespace {
		if !identifierPattern.MatchString(seg) {
			return fmt.Errorf("namespace segment %q is not an identifier", seg)
		}
	}
	if !identifierPattern.MatchString(d.Name) {
		return fmt.Errorf("object name %q is not an identifier", d.Name)
	}

	for _, name := range d.order {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("method name %q is not an identifier", name)
		}
		if d.methods[name] == nil {
			return fmt.Errorf("method %q has no callback", name)
		}
		if d.EventTarget && isEventMethod(name) {
			return fmt.Errorf("method %q collides with the event target API", name)
		}
	}
	return nil
}

func isEventMethod(name string) bool {
	return name == addListenerMethod || name == removeListenerMethod || name == dispatchMethod
}

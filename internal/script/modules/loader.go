// Package modules evaluates CommonJS modules inside the runtime.
//
// Every module, whatever its source dialect, is resolved, preprocessed to
// CommonJS and run inside a function wrapper. The require passed to a
// module resolves relative specifiers against that module's own
// identifier, so "./util.js" imported from an https module is fetched
// from the same remote directory under the same loader policy.
package modules

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptbridge/internal/script/preprocess"
	"github.com/GriffinCanCode/scriptbridge/internal/script/resolver"
	"github.com/GriffinCanCode/scriptbridge/internal/script/source"
)

const (
	wrapperHead = "(function (exports, require, module, __filename, __dirname) {"
	wrapperTail = "\n})"
)

// Resolver fetches module records
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*source.Record, error)
}

// Module is a loaded module
type Module struct {
	ID     string
	Record *source.Record
	object *goja.Object
}

// Exports returns module.exports
func (m *Module) Exports() goja.Value {
	return m.object.Get("exports")
}

// Loader loads modules into one runtime and caches them for the
// runtime's lifetime. Like the runtime, it is used from the loop only.
type Loader struct {
	vm       *goja.Runtime
	resolver Resolver
	pipeline *preprocess.Pipeline
	native   *require.RequireModule
	logger   *zap.Logger

	cache map[string]*Module
	order []string
}

// NewLoader creates a loader. native serves bare specifiers such as
// "console"; it may be nil.
func NewLoader(vm *goja.Runtime, resolver Resolver, pipeline *preprocess.Pipeline, native *require.RequireModule, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		vm:       vm,
		resolver: resolver,
		pipeline: pipeline,
		native:   native,
		logger:   logger.Named("modules"),
		cache:    make(map[string]*Module),
	}
}

// Evaluate loads identifier (or returns it from the cache) and returns its exports
func (l *Loader) Evaluate(ctx context.Context, identifier string) (goja.Value, error) {
	canonical, err := source.Canonical(identifier)
	if err != nil {
		return nil, err
	}
	m, err := l.load(ctx, canonical)
	if err != nil {
		return nil, err
	}
	return m.Exports(), nil
}

// Module returns a cached module
func (l *Loader) Module(identifier string) (*Module, bool) {
	canonical, err := source.Canonical(identifier)
	if err != nil {
		return nil, false
	}
	m, ok := l.cache[canonical]
	return m, ok
}

// Loaded lists cached module identifiers in load order
func (l *Loader) Loaded() []string {
	return append([]string(nil), l.order...)
}

func (l *Loader) load(ctx context.Context, canonical string) (*Module, error) {
	if m, ok := l.cache[canonical]; ok {
		return m, nil
	}

	rec, err := l.resolver.Resolve(ctx, canonical)
	if err != nil {
		return nil, err
	}

	code, err := l.pipeline.Record(rec)
	if err != nil {
		return nil, err
	}

	prg, err := goja.Compile(canonical, wrapperHead+code+wrapperTail, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", canonical, err)
	}

	exports := l.vm.NewObject()
	object := l.vm.NewObject()
	for k, v := range map[string]any{"exports": exports, "id": canonical, "loaded": false} {
		if err := object.Set(k, v); err != nil {
			return nil, err
		}
	}

	// Cached before it runs: a cycle sees the partial exports.
	m := &Module{ID: canonical, Record: rec, object: object}
	l.cache[canonical] = m

	if err := l.run(ctx, prg, m, exports); err != nil {
		delete(l.cache, canonical)
		return nil, err
	}

	_ = object.Set("loaded", true)
	l.order = append(l.order, canonical)
	l.logger.Debug("module loaded",
		zap.String("module", canonical),
		zap.String("loader", rec.Loader),
		zap.String("dialect", string(rec.Dialect)),
		zap.String("digest", rec.Digest))
	return m, nil
}

func (l *Loader) run(ctx context.Context, prg *goja.Program, m *Module, exports *goja.Object) error {
	wrapper, err := l.vm.RunProgram(prg)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return fmt.Errorf("module %s: wrapper is not a function", m.ID)
	}

	_, err = fn(exports,
		exports,
		l.vm.ToValue(l.requireFor(ctx, m.ID)),
		m.object,
		l.vm.ToValue(m.ID),
		l.vm.ToValue(dirname(m.ID)))
	return err
}

// requireFor builds the require function handed to module parent
func (l *Loader) requireFor(ctx context.Context, parent string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()

		if isNative(specifier) {
			if l.native == nil {
				panic(l.vm.NewGoError(fmt.Errorf("cannot find module %q", specifier)))
			}
			v, err := l.native.Require(specifier)
			if err != nil {
				panic(l.vm.NewGoError(fmt.Errorf("require %q from %s: %w", specifier, parent, err)))
			}
			return v
		}

		target, err := source.ResolveSpecifier(parent, specifier)
		if err != nil {
			panic(l.vm.NewGoError(err))
		}

		m, err := l.loadProbing(ctx, target)
		if err != nil {
			var exc *goja.Exception
			if errors.As(err, &exc) {
				panic(exc.Value())
			}
			panic(l.vm.NewGoError(fmt.Errorf("require %q from %s: %w", specifier, parent, err)))
		}
		return m.Exports()
	}
}

// probeExtensions are tried, in order, for extensionless local specifiers
var probeExtensions = []string{".ts", ".js", ".mjs", ".cjs", ".json", "/index.ts", "/index.js"}

func (l *Loader) loadProbing(ctx context.Context, target string) (*Module, error) {
	if path.Ext(target) != "" || !strings.HasPrefix(target, "file:///") {
		return l.load(ctx, target)
	}

	var firstErr error
	for _, ext := range probeExtensions {
		m, err := l.load(ctx, target+ext)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, resolver.ErrFetchFailed) && !errors.Is(err, resolver.ErrPolicyRejected) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// isNative reports whether specifier names a registered native module
// rather than a path or URL
func isNative(specifier string) bool {
	if source.IsRelative(specifier) || strings.HasPrefix(specifier, "/") {
		return false
	}
	return !strings.Contains(specifier, "://")
}

func dirname(identifier string) string {
	i := strings.Index(identifier, "://")
	if i < 0 {
		return path.Dir(identifier)
	}
	scheme, rest := identifier[:i+3], identifier[i+3:]
	return scheme + path.Dir(rest)
}

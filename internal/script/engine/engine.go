// Package engine owns the script runtime and everything living in it.
//
// An Engine is built once per process and passed by handle to whatever
// needs to reach the runtime. Every operation is a job on the engine's
// loop, so the runtime, the installed proxies and the module cache are
// only ever touched by the loop goroutine.
//
// Startup follows a fixed sequence:
//
//	eng, err := engine.New(ctx, engine.Config{Resolver: res, Pipeline: pipe, Logger: log})
//	err = eng.Install(ctx, defs...)        // proxies_installed
//	err = eng.LoadEntry(ctx, "main.ts")    // modules_loaded, fatal on error
//	err = eng.Serve()                      // serving
//	vetoed, err := eng.Dispatch(ctx, ns, "MyApp", "request", value.Null)
//	err = eng.Close(ctx)                   // draining
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptbridge/internal/script/loop"
	"github.com/GriffinCanCode/scriptbridge/internal/script/modules"
	"github.com/GriffinCanCode/scriptbridge/internal/script/preprocess"
	"github.com/GriffinCanCode/scriptbridge/internal/script/proxy"
	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

// Recorder receives engine metrics
type Recorder interface {
	loop.Recorder
	EventDispatched(event string, outcome string, elapsed time.Duration)
}

// Config wires an Engine to its collaborators. Resolver and Pipeline are
// fixed for the engine's lifetime.
type Config struct {
	Resolver modules.Resolver
	Pipeline *preprocess.Pipeline
	Logger   *zap.Logger
	Metrics  Recorder
	// NativeModules are served to require() by bare name, next to console
	NativeModules map[string]require.ModuleLoader
}

// Env is a job's view of the runtime. It is valid only while the job runs.
type Env struct {
	Context context.Context
	VM      *goja.Runtime
	Proxies *proxy.Registry
	Modules *modules.Loader
}

// Func is the body of a Run job
type Func func(env *Env) (any, error)

// CallRequest is the payload of a KindCall job
type CallRequest struct {
	Namespace []string
	Name      string
	Method    string
	Args      []value.Value
}

// EvaluateRequest is the payload of a KindEvaluate job
type EvaluateRequest struct {
	Identifier string
}

// DispatchRequest is the payload of a KindDispatch job
type DispatchRequest struct {
	Namespace []string
	Name      string
	Event     string
	Payload   value.Value
}

// Engine is the single script execution environment
type Engine struct {
	logger  *zap.Logger
	metrics Recorder
	loop    *loop.Loop
	life    lifecycle

	// owned by the loop goroutine
	vm      *goja.Runtime
	proxies *proxy.Registry
	modules *modules.Loader
}

// New builds the runtime on the engine's loop and leaves the engine in
// StateConfiguring
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("engine: resolver is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("engine: preprocessing pipeline is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		logger:  logger.Named("engine"),
		metrics: cfg.Metrics,
	}

	var rec loop.Recorder
	if cfg.Metrics != nil {
		rec = cfg.Metrics
	}
	e.loop = loop.New(e, loop.Config{Logger: logger, Metrics: rec})

	_, err := e.loop.EnqueueBlocking(ctx, loop.NewFuncJob(func(context.Context) (any, error) {
		e.setup(cfg, logger)
		return nil, nil
	}))
	if err != nil {
		_ = e.loop.Close(context.Background())
		return nil, wrap("init", err)
	}

	if err := e.life.advance(StateConfiguring, StateUninitialized); err != nil {
		return nil, wrap("init", err)
	}
	e.logger.Info("environment configured", zap.String("target", cfg.Pipeline.Target()))
	return e, nil
}

func (e *Engine) setup(cfg Config, logger *zap.Logger) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	registry := new(require.Registry)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&printer{logger: logger.Named("script")}))
	for name, mod := range cfg.NativeModules {
		registry.RegisterNativeModule(name, mod)
	}
	native := registry.Enable(vm)
	console.Enable(vm)

	e.vm = vm
	e.proxies = proxy.NewRegistry(vm, logger)
	e.modules = modules.NewLoader(vm, cfg.Resolver, cfg.Pipeline, native, logger)
}

// State returns the current lifecycle state
func (e *Engine) State() State { return e.life.current() }

// QueueDepth returns the number of jobs waiting
func (e *Engine) QueueDepth() int { return e.loop.Len() }

// Run enqueues fn as a job
func (e *Engine) Run(ctx context.Context, fn Func) (*loop.Future, error) {
	if e.life.current() == StateDraining {
		return nil, wrap("run", loop.ErrClosed)
	}
	fut, err := e.loop.Enqueue(e.funcJob(ctx, fn))
	return fut, wrap("run", err)
}

// RunBlocking enqueues fn and waits for it
func (e *Engine) RunBlocking(ctx context.Context, fn Func) (any, error) {
	result, err := e.loop.EnqueueBlocking(ctx, e.funcJob(ctx, fn))
	return result, wrap("run", err)
}

func (e *Engine) funcJob(ctx context.Context, fn Func) *loop.Job {
	return loop.NewFuncJob(func(jobCtx context.Context) (any, error) {
		result, err := fn(e.env(jobCtx))
		return result, detach(err)
	}).WithContext(ctx)
}

func (e *Engine) env(ctx context.Context) *Env {
	return &Env{Context: ctx, VM: e.vm, Proxies: e.proxies, Modules: e.modules}
}

// Install installs every definition in a single job. Installation is
// all-or-nothing per definition; the first failure stops the rest.
func (e *Engine) Install(ctx context.Context, defs ...*proxy.Definition) error {
	if err := e.life.require(StateProxiesInstalled, StateConfiguring, StateProxiesInstalled); err != nil {
		return wrap("install", err)
	}

	_, err := e.RunBlocking(ctx, func(env *Env) (any, error) {
		for _, def := range defs {
			if err := env.Proxies.Install(def); err != nil {
				return nil, err
			}
			e.logger.Info("proxy installed",
				zap.String("key", def.Key()),
				zap.Strings("methods", def.Methods()),
				zap.Bool("event_target", def.EventTarget))
		}
		e.logger.Debug("proxies in environment", zap.Strings("keys", env.Proxies.Keys()))
		return nil, nil
	})
	if err != nil {
		return wrap("install", err)
	}

	return wrap("install", e.life.advance(StateProxiesInstalled, StateConfiguring, StateProxiesInstalled))
}

// LoadEntry resolves, preprocesses and evaluates the entry module. A
// failure here must stop startup.
func (e *Engine) LoadEntry(ctx context.Context, identifier string) error {
	if err := e.life.require(StateModulesLoaded, StateProxiesInstalled); err != nil {
		return wrap("load", err)
	}

	start := time.Now()
	if _, err := e.evaluate(ctx, identifier); err != nil {
		return wrap("load", err)
	}

	if err := e.life.advance(StateModulesLoaded, StateProxiesInstalled); err != nil {
		return wrap("load", err)
	}
	e.logger.Info("entry module loaded",
		zap.String("module", identifier),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Serve opens the engine to external calls and dispatches
func (e *Engine) Serve() error {
	if err := e.life.advance(StateServing, StateModulesLoaded); err != nil {
		return wrap("serve", err)
	}
	e.logger.Info("environment serving")
	return nil
}

// Evaluate loads a module and returns its exports
func (e *Engine) Evaluate(ctx context.Context, identifier string) (value.Value, error) {
	if err := e.life.require(StateServing, StateModulesLoaded, StateServing); err != nil {
		return value.Undefined, wrap("evaluate", err)
	}
	v, err := e.evaluate(ctx, identifier)
	return v, wrap("evaluate", err)
}

func (e *Engine) evaluate(ctx context.Context, identifier string) (value.Value, error) {
	job := loop.NewJob(loop.KindEvaluate, EvaluateRequest{Identifier: identifier}).WithContext(ctx)
	result, err := e.loop.EnqueueBlocking(ctx, job)
	if err != nil {
		return value.Undefined, err
	}
	return result.(value.Value), nil
}

// Call invokes a host method through its installed proxy
func (e *Engine) Call(ctx context.Context, namespace []string, name, method string, args ...value.Value) (value.Value, error) {
	if err := e.serving(); err != nil {
		return value.Undefined, wrap("call", err)
	}

	job := loop.NewJob(loop.KindCall, CallRequest{Namespace: namespace, Name: name, Method: method, Args: args}).WithContext(ctx)
	result, err := e.await(ctx, job)
	if err != nil {
		return value.Undefined, wrap("call", err)
	}
	return result.(value.Value), nil
}

// Dispatch sends an event to an installed event target and reports
// whether a listener vetoed it
func (e *Engine) Dispatch(ctx context.Context, namespace []string, name, event string, payload value.Value) (bool, error) {
	if err := e.serving(); err != nil {
		return false, wrap("dispatch", err)
	}

	start := time.Now()
	job := loop.NewJob(loop.KindDispatch, DispatchRequest{
		Namespace: namespace,
		Name:      name,
		Event:     event,
		Payload:   payload.Detached(),
	}).WithContext(ctx)

	result, err := e.await(ctx, job)
	if errors.Is(err, context.DeadlineExceeded) {
		err = &proxy.DispatchError{Key: proxy.Key(namespace, name), Event: event, Err: fmt.Errorf("%w: %w", ErrBusy, err)}
	}

	vetoed, _ := result.(bool)
	e.observeDispatch(event, vetoed, err, time.Since(start))
	return vetoed, wrap("dispatch", err)
}

func (e *Engine) observeDispatch(event string, vetoed bool, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	outcome := "delivered"
	switch {
	case err != nil:
		outcome = "error"
	case vetoed:
		outcome = "vetoed"
	}
	e.metrics.EventDispatched(event, outcome, elapsed)
}

func (e *Engine) serving() error {
	switch s := e.life.current(); s {
	case StateServing:
		return nil
	case StateDraining:
		return ErrUnavailable
	default:
		return fmt.Errorf("%w (state %s)", ErrNotServing, s)
	}
}

func (e *Engine) await(ctx context.Context, job *loop.Job) (any, error) {
	fut, err := e.loop.Enqueue(job)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// Handle runs tagged jobs on the loop goroutine
func (e *Engine) Handle(ctx context.Context, job *loop.Job) (any, error) {
	switch req := job.Payload.(type) {
	case CallRequest:
		v, err := e.proxies.Invoke(proxy.Key(req.Namespace, req.Name), req.Method, req.Args)
		return v.Detached(), detach(err)

	case EvaluateRequest:
		exports, err := e.modules.Evaluate(ctx, req.Identifier)
		if err != nil {
			return value.Undefined, detach(err)
		}
		return value.FromJS(exports).Detached(), nil

	case DispatchRequest:
		vetoed, err := e.proxies.Dispatch(req.Namespace, req.Name, req.Event, req.Payload)
		return vetoed, detach(err)

	default:
		return nil, fmt.Errorf("%w: %s job with %T payload", loop.ErrNoHandler, job.Kind, job.Payload)
	}
}

// Close stops intake and drains queued jobs
func (e *Engine) Close(ctx context.Context) error {
	if e.life.drain() {
		e.logger.Info("environment draining", zap.Int("queued", e.loop.Len()))
	}
	return wrap("close", e.loop.Close(ctx))
}

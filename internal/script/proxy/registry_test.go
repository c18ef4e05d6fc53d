package proxy

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

var appNamespace = []string{"com", "mycompany"}

func echo(call *Call) (value.Value, error) {
	return call.Arg(0), nil
}

func newRegistry(t *testing.T) (*goja.Runtime, *Registry) {
	t.Helper()
	vm := goja.New()
	return vm, NewRegistry(vm, nil)
}

func run(t *testing.T, vm *goja.Runtime, src string) goja.Value {
	t.Helper()
	v, err := vm.RunString(src)
	require.NoError(t, err)
	return v
}

func TestInstallExposesMethods(t *testing.T) {
	vm, reg := newRegistry(t)

	def := New(appNamespace, "MyApp").AddMethod("echo", echo)
	require.NoError(t, reg.Install(def))

	assert.True(t, reg.Installed("com.mycompany.MyApp"))
	assert.Equal(t, "function", run(t, vm, "typeof com.mycompany.MyApp.echo").String())
	assert.Equal(t, "undefined", run(t, vm, "typeof com.mycompany.MyApp.addEventListener").String())
}

func TestKeysAndMethods(t *testing.T) {
	_, reg := newRegistry(t)

	app := New(appNamespace, "MyApp").
		AddMethod("zeta", echo).
		AddMethod("alpha", echo)
	assert.Equal(t, []string{"zeta", "alpha"}, app.Methods())

	require.NoError(t, reg.Install(app))
	require.NoError(t, reg.Install(New([]string{"host"}, "Stats").AddMethod("mean", echo)))
	assert.Equal(t, []string{"com.mycompany.MyApp", "host.Stats"}, reg.Keys())
}

func TestStringRoundTrip(t *testing.T) {
	vm, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").AddMethod("echo", echo)))

	inputs := []string{"", "hello", "héllo wörld ✓", "line\nbreak", "\x00nul"}
	for _, in := range inputs {
		require.NoError(t, vm.Set("input", in))
		same := run(t, vm, "com.mycompany.MyApp.echo(input) === input")
		assert.True(t, same.ToBoolean(), "%q did not round trip", in)
	}

	// strings Go cannot hold: unpaired surrogates
	literals := []string{
		`"\uD800"`,
		`"a\uDC00b"`,
		`"😀".slice(0, 1)`,
		`"😀".slice(1)`,
		`"x\uDBFF\uDBFFy"`,
		`"😀"`,
	}
	for _, lit := range literals {
		same := run(t, vm, "(function(s) { return com.mycompany.MyApp.echo(s) === s; })("+lit+")")
		assert.True(t, same.ToBoolean(), "%s did not round trip", lit)
	}
}

func TestInstallTwiceKeepsFirst(t *testing.T) {
	vm, reg := newRegistry(t)

	first := New(appNamespace, "MyApp").AddMethod("which", func(*Call) (value.Value, error) {
		return value.String("first"), nil
	})
	second := New(appNamespace, "MyApp").AddMethod("which", func(*Call) (value.Value, error) {
		return value.String("second"), nil
	})

	require.NoError(t, reg.Install(first))

	err := reg.Install(second)
	require.Error(t, err)

	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.Equal(t, "com.mycompany.MyApp", installErr.Key)
	assert.ErrorIs(t, err, ErrDuplicateProxy)

	assert.Equal(t, "first", run(t, vm, "com.mycompany.MyApp.which()").String())
}

func TestInstallRejectsExistingGlobal(t *testing.T) {
	vm, reg := newRegistry(t)
	run(t, vm, "var com = {mycompany: {MyApp: 1}}")

	err := reg.Install(New(appNamespace, "MyApp").AddMethod("echo", echo))
	assert.ErrorIs(t, err, ErrDuplicateProxy)
	assert.Equal(t, int64(1), run(t, vm, "com.mycompany.MyApp").ToInteger())
}

func TestInstallValidation(t *testing.T) {
	tests := []struct {
		name string
		def  *Definition
	}{
		{"bad namespace", New([]string{"com", "my-company"}, "App")},
		{"bad name", New(nil, "1App")},
		{"bad method", New(nil, "App").AddMethod("do it", echo)},
		{"nil callback", New(nil, "App").AddMethod("run", nil)},
		{"reserved method", New(nil, "App").SetEventTarget(true).AddMethod("addEventListener", echo)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, reg := newRegistry(t)
			assert.ErrorIs(t, reg.Install(tt.def), ErrInvalidDefinition)
		})
	}
}

func TestMethodErrorsAreThrownToScript(t *testing.T) {
	vm, reg := newRegistry(t)

	def := New(appNamespace, "MyApp").
		AddMethod("fail", func(*Call) (value.Value, error) {
			return value.Undefined, errors.New("host failure")
		}).
		AddMethod("needsString", func(call *Call) (value.Value, error) {
			s, err := call.Arg(0).AsString()
			if err != nil {
				return value.Undefined, err
			}
			return value.String(s), nil
		})
	require.NoError(t, reg.Install(def))

	msg := run(t, vm, `try { com.mycompany.MyApp.fail(); "no throw" } catch (e) { e.message }`)
	assert.Equal(t, "host failure", msg.String())

	isTypeErr := run(t, vm, `try { com.mycompany.MyApp.needsString(5); false } catch (e) { e instanceof TypeError }`)
	assert.True(t, isTypeErr.ToBoolean())
}

func TestThrownErrorRethrowsOriginalValue(t *testing.T) {
	vm, reg := newRegistry(t)

	def := New(appNamespace, "MyApp").AddMethod("rethrow", func(call *Call) (value.Value, error) {
		return value.Undefined, &value.ThrownError{Value: call.Arg(0).ToJS(call.VM)}
	})
	require.NoError(t, reg.Install(def))

	got := run(t, vm, `var o = {tag: 1}; try { com.mycompany.MyApp.rethrow(o) } catch (e) { e === o }`)
	assert.True(t, got.ToBoolean())
}

func TestVetoStopsDispatch(t *testing.T) {
	vm, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").SetEventTarget(true)))

	run(t, vm, `
		var calls = [];
		function first(e)  { calls.push(1); }
		function second(e) { calls.push(2); e.preventDefault(); }
		function third(e)  { calls.push(3); }
		com.mycompany.MyApp.addEventListener("request", first);
		com.mycompany.MyApp.addEventListener("request", second);
		com.mycompany.MyApp.addEventListener("request", third);
	`)

	vetoed, err := reg.Dispatch(appNamespace, "MyApp", "request", value.Null)
	require.NoError(t, err)
	assert.True(t, vetoed)
	assert.Equal(t, "1,2", run(t, vm, "calls.join(',')").String())

	run(t, vm, `calls = []; com.mycompany.MyApp.removeEventListener("request", second);`)

	vetoed, err = reg.Dispatch(appNamespace, "MyApp", "request", value.Null)
	require.NoError(t, err)
	assert.False(t, vetoed)
	assert.Equal(t, "1,3", run(t, vm, "calls.join(',')").String())
}

func TestHostListenersVeto(t *testing.T) {
	_, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").SetEventTarget(true)))

	var calls []int
	listen := func(n int, veto bool) HostListener {
		return func(ev *Event) error {
			calls = append(calls, n)
			if veto {
				ev.PreventDefault()
			}
			return nil
		}
	}

	_, err := reg.AddListener(appNamespace, "MyApp", "request", listen(1, false))
	require.NoError(t, err)
	second, err := reg.AddListener(appNamespace, "MyApp", "request", listen(2, true))
	require.NoError(t, err)
	_, err = reg.AddListener(appNamespace, "MyApp", "request", listen(3, false))
	require.NoError(t, err)

	vetoed, err := reg.Dispatch(appNamespace, "MyApp", "request", value.Null)
	require.NoError(t, err)
	assert.True(t, vetoed)
	assert.Equal(t, []int{1, 2}, calls)

	assert.True(t, reg.RemoveListener(second))
	assert.False(t, reg.RemoveListener(second))

	calls = nil
	vetoed, err = reg.Dispatch(appNamespace, "MyApp", "request", value.Null)
	require.NoError(t, err)
	assert.False(t, vetoed)
	assert.Equal(t, []int{1, 3}, calls)
}

func TestEventObjectCarriesPayload(t *testing.T) {
	vm, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").SetEventTarget(true)))

	run(t, vm, `
		var seen;
		com.mycompany.MyApp.addEventListener("request", function (e) {
			var before = e.defaultPrevented;
			e.preventDefault();
			seen = [e.type, e.detail, before, e.defaultPrevented].join("|");
		});
	`)

	vetoed, err := reg.Dispatch(appNamespace, "MyApp", "request", value.String("payload"))
	require.NoError(t, err)
	assert.True(t, vetoed)
	assert.Equal(t, "request|payload|false|true", run(t, vm, "seen").String())
}

func TestDuplicateScriptListenerIgnored(t *testing.T) {
	vm, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").SetEventTarget(true)))

	run(t, vm, `
		var n = 0;
		function inc() { n++; }
		com.mycompany.MyApp.addEventListener("tick", inc);
		com.mycompany.MyApp.addEventListener("tick", inc);
	`)
	assert.Equal(t, 1, reg.ListenerCount(appNamespace, "MyApp", "tick"))

	_, err := reg.Dispatch(appNamespace, "MyApp", "tick", value.Undefined)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run(t, vm, "n").ToInteger())
}

func TestThrowingListenerStopsDispatch(t *testing.T) {
	vm, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").SetEventTarget(true)))

	run(t, vm, `
		var after = false;
		com.mycompany.MyApp.addEventListener("request", function () { throw new Error("listener broke"); });
		com.mycompany.MyApp.addEventListener("request", function () { after = true; });
	`)

	vetoed, err := reg.Dispatch(appNamespace, "MyApp", "request", value.Null)
	assert.False(t, vetoed)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, "request", dispatchErr.Event)
	assert.NotEmpty(t, dispatchErr.Listener)
	assert.ErrorIs(t, err, ErrListenerFailed)
	assert.Contains(t, err.Error(), "listener broke")
	assert.False(t, run(t, vm, "after").ToBoolean())
}

func TestListenerRemovedDuringDispatchIsSkipped(t *testing.T) {
	vm, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").SetEventTarget(true)))

	run(t, vm, `
		var calls = [];
		function second() { calls.push(2); }
		com.mycompany.MyApp.addEventListener("request", function () {
			calls.push(1);
			com.mycompany.MyApp.removeEventListener("request", second);
		});
		com.mycompany.MyApp.addEventListener("request", second);
	`)

	_, err := reg.Dispatch(appNamespace, "MyApp", "request", value.Null)
	require.NoError(t, err)
	assert.Equal(t, "1", run(t, vm, "calls.join(',')").String())
}

func TestScriptDispatchEvent(t *testing.T) {
	vm, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").SetEventTarget(true)))

	got := run(t, vm, `
		com.mycompany.MyApp.addEventListener("ping", function (e) { if (e.detail === 2) e.preventDefault(); });
		[com.mycompany.MyApp.dispatchEvent("ping", 1), com.mycompany.MyApp.dispatchEvent("ping", 2)].join(",")
	`)
	assert.Equal(t, "false,true", got.String())
}

func TestDispatchErrors(t *testing.T) {
	_, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "Plain").AddMethod("echo", echo)))

	_, err := reg.Dispatch(appNamespace, "Missing", "request", value.Null)
	assert.ErrorIs(t, err, ErrUnknownProxy)

	_, err = reg.Dispatch(appNamespace, "Plain", "request", value.Null)
	assert.ErrorIs(t, err, ErrNotEventTarget)

	_, err = reg.AddListener(appNamespace, "Plain", "request", func(*Event) error { return nil })
	assert.ErrorIs(t, err, ErrNotEventTarget)
}

func TestInvoke(t *testing.T) {
	_, reg := newRegistry(t)
	require.NoError(t, reg.Install(New(appNamespace, "MyApp").AddMethod("echo", echo)))

	got, err := reg.Invoke("com.mycompany.MyApp", "echo", []value.Value{value.String("x")})
	require.NoError(t, err)
	assert.Equal(t, "x", got.String())

	_, err = reg.Invoke("com.mycompany.Other", "echo", nil)
	assert.ErrorIs(t, err, ErrUnknownProxy)
}

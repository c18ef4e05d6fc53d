package modules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"
	noderequire "github.com/dop251/goja_nodejs/require"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/scriptbridge/internal/script/preprocess"
	"github.com/GriffinCanCode/scriptbridge/internal/script/resolver"
)

type fixture struct {
	root   string
	vm     *goja.Runtime
	loader *Loader
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	fsLoader, err := resolver.NewFSLoader(resolver.FSConfig{Root: root})
	require.NoError(t, err)
	pipeline, err := preprocess.New("es2020")
	require.NoError(t, err)

	vm := goja.New()
	registry := new(noderequire.Registry)
	registry.RegisterNativeModule("greeting", func(runtime *goja.Runtime, module *goja.Object) {
		_ = module.Get("exports").(*goja.Object).Set("text", "hello from go")
	})
	native := registry.Enable(vm)

	return &fixture{
		root:   root,
		vm:     vm,
		loader: NewLoader(vm, resolver.New(fsLoader), pipeline, native, nil),
	}
}

func (f *fixture) call(t *testing.T, exports goja.Value, name string, args ...goja.Value) goja.Value {
	t.Helper()
	fn, ok := goja.AssertFunction(exports.ToObject(f.vm).Get(name))
	require.True(t, ok, "%s is not a function", name)
	v, err := fn(goja.Undefined(), args...)
	require.NoError(t, err)
	return v
}

func TestEvaluateTypeScriptEntry(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main.ts": `
			import { double } from "./lib/math";
			export function onRequest(n: number): number { return double(n) + 1; }
		`,
		"lib/math.ts": `export const double = (n: number): number => n * 2;`,
	})

	exports, err := f.loader.Evaluate(context.Background(), "file:///main.ts")
	require.NoError(t, err)

	got := f.call(t, exports, "onRequest", f.vm.ToValue(20))
	assert.Equal(t, int64(41), got.ToInteger())
	assert.Equal(t, []string{"file:///lib/math.ts", "file:///main.ts"}, f.loader.Loaded())
}

func TestModulesAreCached(t *testing.T) {
	f := newFixture(t, map[string]string{
		"counter.js": `globalThis.evaluations = (globalThis.evaluations || 0) + 1; module.exports = {};`,
		"a.js":       `require("./counter.js"); module.exports = "a";`,
		"b.js":       `require("./counter.js"); module.exports = "b";`,
	})
	ctx := context.Background()

	_, err := f.loader.Evaluate(ctx, "a.js")
	require.NoError(t, err)
	_, err = f.loader.Evaluate(ctx, "file:///b.js")
	require.NoError(t, err)
	_, err = f.loader.Evaluate(ctx, "file://a.js")
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.vm.Get("evaluations").ToInteger())

	m, ok := f.loader.Module("counter.js")
	require.True(t, ok)
	assert.Equal(t, "file:///counter.js", m.ID)
	assert.Equal(t, "filesystem", m.Record.Loader)
}

func TestCyclicRequireSeesPartialExports(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.js": `exports.early = 1; const b = require("./b.js"); exports.fromB = b.sawEarly;`,
		"b.js": `const a = require("./a.js"); exports.sawEarly = a.early;`,
	})

	exports, err := f.loader.Evaluate(context.Background(), "a.js")
	require.NoError(t, err)
	assert.Equal(t, int64(1), exports.ToObject(f.vm).Get("fromB").ToInteger())
}

func TestRequireJSONAndNative(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main.js":     `const cfg = require("./config.json"); const g = require("greeting"); module.exports = cfg.name + ":" + g.text;`,
		"config.json": `{"name": "bridge"}`,
	})

	exports, err := f.loader.Evaluate(context.Background(), "main.js")
	require.NoError(t, err)
	assert.Equal(t, "bridge:hello from go", exports.String())
}

func TestRequireFailureIsCatchable(t *testing.T) {
	f := newFixture(t, map[string]string{
		"main.js": `
			let msg = "";
			try { require("./missing.js"); } catch (e) { msg = String(e.message || e); }
			try { require("../escape.js"); } catch (e) { msg += "|" + String(e.message || e); }
			module.exports = msg;
		`,
	})

	exports, err := f.loader.Evaluate(context.Background(), "main.js")
	require.NoError(t, err)
	assert.Contains(t, exports.String(), "no such module")
}

func TestFailedModuleIsNotCached(t *testing.T) {
	f := newFixture(t, map[string]string{
		"flaky.js": `if (!globalThis.ready) { throw new Error("not ready"); } module.exports = "ok";`,
	})
	ctx := context.Background()

	_, err := f.loader.Evaluate(ctx, "flaky.js")
	var exc *goja.Exception
	require.ErrorAs(t, err, &exc)
	assert.Contains(t, exc.Error(), "not ready")

	_, cached := f.loader.Module("flaky.js")
	assert.False(t, cached)

	require.NoError(t, f.vm.Set("ready", true))
	exports, err := f.loader.Evaluate(ctx, "flaky.js")
	require.NoError(t, err)
	assert.Equal(t, "ok", exports.String())
}

func TestSyntaxErrorIsPreprocessError(t *testing.T) {
	f := newFixture(t, map[string]string{"bad.ts": "export function (: {"})

	_, err := f.loader.Evaluate(context.Background(), "bad.ts")
	var ppErr *preprocess.Error
	require.ErrorAs(t, err, &ppErr)
	assert.Equal(t, "file:///bad.ts", ppErr.File)
}

func TestResolveErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.loader.Evaluate(context.Background(), "file:///../outside.js")
	assert.ErrorIs(t, err, resolver.ErrPolicyRejected)
}

func TestDirname(t *testing.T) {
	assert.Equal(t, "file:///", dirname("file:///main.ts"))
	assert.Equal(t, "file:///lib", dirname("file:///lib/a.ts"))
	assert.Equal(t, "https://github.com/org", dirname("https://github.com/org/a.js"))
}

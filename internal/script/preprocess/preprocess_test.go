package preprocess

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/scriptbridge/internal/script/source"
)

func TestNewTarget(t *testing.T) {
	p, err := New(" ES2020 ")
	require.NoError(t, err)
	assert.Equal(t, "es2020", p.Target())

	_, err = New("es1999")
	assert.ErrorIs(t, err, ErrUnknownTarget)
	assert.Contains(t, err.Error(), "esnext")
}

func TestProcessTypeScript(t *testing.T) {
	p, err := New("es2020")
	require.NoError(t, err)

	out, err := p.Process(`
		interface Greeting { text: string }
		export function greet(name: string): string {
			const g: Greeting = { text: "hi " + name };
			return g.text;
		}
	`, source.TypeScript, "main.ts")
	require.NoError(t, err)
	assert.NotContains(t, out, "interface")

	vm := goja.New()
	module := vm.NewObject()
	exports := vm.NewObject()
	require.NoError(t, module.Set("exports", exports))
	require.NoError(t, vm.Set("module", module))
	require.NoError(t, vm.Set("exports", exports))

	_, err = vm.RunString(out)
	require.NoError(t, err)

	got, err := vm.RunString(`module.exports.greet("bob")`)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", got.String())
}

func TestProcessDownlevels(t *testing.T) {
	p, err := New("es2015")
	require.NoError(t, err)

	out, err := p.Process("export const v = a ?? b;", source.JavaScript, "x.js")
	require.NoError(t, err)
	assert.NotContains(t, out, "??")
}

func TestProcessJSON(t *testing.T) {
	p, err := New("es2020")
	require.NoError(t, err)

	out, err := p.Process(`{"name": "bridge", "port": 8070}`, source.JSON, "config.json")
	require.NoError(t, err)
	assert.Contains(t, out, "module.exports")
}

func TestProcessSyntaxError(t *testing.T) {
	p, err := New("es2020")
	require.NoError(t, err)

	_, err = p.Process("export function broken( {", source.TypeScript, "file:///broken.ts")
	require.Error(t, err)

	var ppErr *Error
	require.ErrorAs(t, err, &ppErr)
	assert.Equal(t, "file:///broken.ts", ppErr.File)
	require.NotEmpty(t, ppErr.Messages)
	assert.Equal(t, 1, ppErr.Messages[0].Line)
	assert.Contains(t, err.Error(), "file:///broken.ts:1:")
}

func TestProcessUnknownDialect(t *testing.T) {
	p, err := New("es2020")
	require.NoError(t, err)

	_, err = p.Process("x", source.Dialect("coffee"), "x.coffee")
	var ppErr *Error
	assert.ErrorAs(t, err, &ppErr)
}

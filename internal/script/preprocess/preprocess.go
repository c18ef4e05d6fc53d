// Package preprocess turns module source into script the runtime can run.
//
// TypeScript, modern JavaScript and JSON are all transformed with esbuild
// into CommonJS at the configured language target. The pipeline keeps no
// state between calls and is safe to use from any goroutine.
package preprocess

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/GriffinCanCode/scriptbridge/internal/script/source"
)

// ErrUnknownTarget is returned for an unsupported target name
var ErrUnknownTarget = errors.New("preprocess: unknown target")

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// Targets lists the supported target names
func Targets() []string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pipeline transforms sources to a fixed target
type Pipeline struct {
	name   string
	target api.Target
}

// New creates a pipeline for a target such as "es2020"
func New(target string) (*Pipeline, error) {
	name := strings.ToLower(strings.TrimSpace(target))
	t, ok := targets[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownTarget, target, strings.Join(Targets(), ", "))
	}
	return &Pipeline{name: name, target: t}, nil
}

// Target returns the configured target name
func (p *Pipeline) Target() string { return p.name }

// Process transforms src from dialect into CommonJS.
// name is used as the file name in error messages.
func (p *Pipeline) Process(src string, from source.Dialect, name string) (string, error) {
	loader, err := loaderFor(from)
	if err != nil {
		return "", &Error{File: name, Dialect: from, Messages: []Message{{File: name, Text: err.Error()}}}
	}

	result := api.Transform(src, api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatCommonJS,
		Target:     p.target,
		Sourcefile: name,
		Charset:    api.CharsetUTF8,
	})

	if len(result.Errors) > 0 {
		return "", &Error{File: name, Dialect: from, Messages: convert(name, result.Errors)}
	}
	return string(result.Code), nil
}

// Record transforms a fetched module record
func (p *Pipeline) Record(rec *source.Record) (string, error) {
	return p.Process(rec.Source, rec.Dialect, rec.Identifier)
}

func loaderFor(d source.Dialect) (api.Loader, error) {
	switch d {
	case source.TypeScript:
		return api.LoaderTS, nil
	case source.JavaScript:
		return api.LoaderJS, nil
	case source.JSON:
		return api.LoaderJSON, nil
	default:
		return api.LoaderNone, fmt.Errorf("unsupported dialect %q", d)
	}
}

func convert(name string, msgs []api.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		msg := Message{File: name, Text: m.Text}
		if m.Location != nil {
			if m.Location.File != "" {
				msg.File = m.Location.File
			}
			msg.Line = m.Location.Line
			msg.Column = m.Location.Column + 1
			msg.LineText = m.Location.LineText
		}
		out = append(out, msg)
	}
	return out
}

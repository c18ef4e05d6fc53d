package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/GriffinCanCode/scriptbridge/internal/script/preprocess"
	"github.com/GriffinCanCode/scriptbridge/internal/script/source"
)

// Report is the outcome of a precheck
type Report struct {
	Checked []string
	Failed  map[string]error
}

// Err joins every failure, ordered by path, or returns nil
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	paths := make([]string, 0, len(r.Failed))
	for p := range r.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	errs := make([]error, len(paths))
	for i, p := range paths {
		errs[i] = r.Failed[p]
	}
	return errors.Join(errs...)
}

// Precheck preprocesses every module file under root without running
// anything, so syntax errors surface before startup.
func Precheck(ctx context.Context, root, pattern string, pipeline *preprocess.Pipeline) (*Report, error) {
	if pattern == "" {
		return nil, errors.New("precheck: empty pattern")
	}

	var (
		mu     sync.Mutex
		report = &Report{Failed: make(map[string]error)}
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, rel); !ok {
			return nil
		}

		identifier := "file:///" + rel
		data, readErr := os.ReadFile(p)
		if readErr == nil {
			_, readErr = pipeline.Process(string(data), source.DialectFor(rel), identifier)
		}

		mu.Lock()
		defer mu.Unlock()
		report.Checked = append(report.Checked, identifier)
		if readErr != nil {
			report.Failed[identifier] = readErr
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("precheck %s: %w", root, err)
	}

	sort.Strings(report.Checked)
	return report, nil
}

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultModulePattern matches the files the filesystem loader serves
const DefaultModulePattern = "**/*.{ts,mts,cts,js,mjs,cjs,json}"

// FSConfig configures the filesystem loader
type FSConfig struct {
	Root     string
	Pattern  string
	MaxBytes int64
}

// FSLoader serves file identifiers from beneath a root directory.
// "file:///lib/a.ts", "file://lib/a.ts" and "lib/a.ts" all name
// <root>/lib/a.ts.
type FSLoader struct {
	root     string
	pattern  string
	maxBytes int64
}

// NewFSLoader creates a loader rooted at cfg.Root, which must exist
func NewFSLoader(cfg FSConfig) (*FSLoader, error) {
	if cfg.Root == "" {
		return nil, errors.New("filesystem loader: root is required")
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("filesystem loader: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("filesystem loader: root %s: %w", abs, err)
	}

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultModulePattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("filesystem loader: invalid pattern %q", pattern)
	}

	return &FSLoader{root: root, pattern: pattern, maxBytes: cfg.MaxBytes}, nil
}

func (l *FSLoader) Name() string { return "filesystem" }

// Root returns the resolved root directory
func (l *FSLoader) Root() string { return l.root }

// Pattern returns the module file pattern
func (l *FSLoader) Pattern() string { return l.pattern }

func (l *FSLoader) Matches(u *url.URL) bool {
	return u.Scheme == "" || u.Scheme == "file"
}

func (l *FSLoader) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel, err := l.relative(u)
	if err != nil {
		return nil, err
	}

	full := filepath.Join(l.root, filepath.FromSlash(rel))
	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failf("%s: no such module", rel)
		}
		return nil, failf("%v", err)
	}
	if !within(l.root, real) {
		return nil, rejectf("%s resolves outside the module root", rel)
	}

	info, err := os.Stat(real)
	if err != nil {
		return nil, failf("%v", err)
	}
	if info.IsDir() {
		return nil, failf("%s is a directory", rel)
	}
	if l.maxBytes > 0 && info.Size() > l.maxBytes {
		return nil, failf("%s is %d bytes, limit is %d", rel, info.Size(), l.maxBytes)
	}

	data, err := os.ReadFile(real)
	if err != nil {
		return nil, failf("%v", err)
	}
	return data, nil
}

// relative maps u to a slash-separated path below the root
func (l *FSLoader) relative(u *url.URL) (string, error) {
	p := u.Path
	if u.Opaque != "" {
		p = u.Opaque
	}
	rel := path.Clean(strings.TrimLeft(u.Host+p, "/"))

	if rel == "." || rel == "" {
		return "", rejectf("empty module path")
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", rejectf("%s escapes the module root", rel)
	}
	if ok, _ := doublestar.Match(l.pattern, rel); !ok {
		return "", rejectf("%s does not match module pattern %s", rel, l.pattern)
	}
	return rel, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

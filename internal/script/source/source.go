// Package source defines module records and identifier handling.
package source

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// Dialect is the language a module's source is written in
type Dialect string

const (
	JavaScript Dialect = "javascript"
	TypeScript Dialect = "typescript"
	JSON       Dialect = "json"
)

// DialectFor infers the dialect from the identifier's extension
func DialectFor(identifier string) Dialect {
	p := identifier
	if u, err := url.Parse(identifier); err == nil && u.Path != "" {
		p = u.Path
	}

	switch strings.ToLower(path.Ext(p)) {
	case ".ts", ".mts", ".cts":
		return TypeScript
	case ".json":
		return JSON
	default:
		return JavaScript
	}
}

// Record is a fetched module, ready for preprocessing
type Record struct {
	Identifier string
	Source     string
	Dialect    Dialect
	Loader     string
	Digest     string
	FetchedAt  time.Time
}

// Parse parses a module identifier. Bare paths are treated as file URLs.
func Parse(identifier string) (*url.URL, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("empty module identifier")
	}

	u, err := url.Parse(identifier)
	if err != nil {
		return nil, fmt.Errorf("parse module identifier %q: %w", identifier, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u, nil
}

// Canonical returns the cache key for identifier
func Canonical(identifier string) (string, error) {
	u, err := Parse(identifier)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "", "file":
		p := u.Host + u.Path
		if u.Opaque != "" {
			p = u.Opaque
		}
		// Keep leading ".." so the filesystem loader can reject escapes.
		p = path.Clean(strings.TrimLeft(p, "/"))
		if p == "." {
			p = ""
		}
		return "file:///" + p, nil
	default:
		return u.String(), nil
	}
}

// ResolveSpecifier resolves a require() specifier against the importing
// module. Absolute URLs are returned unchanged.
func ResolveSpecifier(parent, specifier string) (string, error) {
	ref, err := Parse(specifier)
	if err != nil {
		return "", err
	}
	if ref.Scheme != "" {
		return Canonical(specifier)
	}

	base, err := Parse(parent)
	if err != nil {
		return "", err
	}
	if base.Scheme == "" {
		base.Scheme = "file"
	}
	if base.Scheme == "file" && base.Host != "" {
		base.Path = "/" + base.Host + base.Path
		base.Host = ""
	}

	return Canonical(base.ResolveReference(ref).String())
}

// IsRelative reports whether specifier is a ./ or ../ path
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

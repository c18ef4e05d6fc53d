package resolver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/idna"
)

// AllowList is the set of hosts remote modules may come from.
// Entries are host names ("github.com"), origins ("https://github.com")
// or globs ("*.githubusercontent.com").
type AllowList struct {
	hosts map[string]struct{}
	globs []string
}

// NewAllowList parses entries; an empty list allows nothing
func NewAllowList(entries []string) (*AllowList, error) {
	a := &AllowList{hosts: make(map[string]struct{})}

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "://") {
			u, err := url.Parse(entry)
			if err != nil {
				return nil, fmt.Errorf("allow-list entry %q: %w", raw, err)
			}
			if u.Scheme != "https" {
				return nil, fmt.Errorf("allow-list entry %q: only https origins can be allowed", raw)
			}
			entry = u.Hostname()
		}

		if strings.ContainsAny(entry, "*?[{") {
			pattern := strings.ToLower(entry)
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("allow-list entry %q: invalid pattern", raw)
			}
			a.globs = append(a.globs, pattern)
			continue
		}

		host, err := normalizeHost(entry)
		if err != nil {
			return nil, fmt.Errorf("allow-list entry %q: %w", raw, err)
		}
		a.hosts[host] = struct{}{}
	}
	return a, nil
}

// Allows reports whether host may serve modules
func (a *AllowList) Allows(host string) bool {
	if a == nil {
		return false
	}
	h, err := normalizeHost(host)
	if err != nil {
		return false
	}
	if _, ok := a.hosts[h]; ok {
		return true
	}
	for _, g := range a.globs {
		if ok, _ := doublestar.Match(g, h); ok {
			return true
		}
	}
	return false
}

// Len returns the number of entries
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.hosts) + len(a.globs)
}

func normalizeHost(host string) (string, error) {
	h := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if h == "" {
		return "", fmt.Errorf("empty host")
	}
	return idna.Lookup.ToASCII(h)
}

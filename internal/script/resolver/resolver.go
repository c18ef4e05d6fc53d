// Package resolver fetches module source under a loading policy.
//
// A Resolver holds an ordered list of loaders. The first loader whose
// Matches accepts the identifier performs the fetch; there is no fallback
// to later loaders, and an identifier no loader claims fails with
// ErrNoLoaderMatched. Resolution never executes anything.
package resolver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/GriffinCanCode/scriptbridge/internal/script/source"
)

var (
	ErrNoLoaderMatched = errors.New("no loader matched")
	ErrFetchFailed     = errors.New("fetch failed")
	ErrPolicyRejected  = errors.New("rejected by loader policy")
)

// ResolveError is returned for every failed resolution
type ResolveError struct {
	Identifier string
	Loader     string
	Err        error
}

func (e *ResolveError) Error() string {
	if e.Loader == "" {
		return fmt.Sprintf("resolve %s: %v", e.Identifier, e.Err)
	}
	return fmt.Sprintf("resolve %s (%s): %v", e.Identifier, e.Loader, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Loader is one fetch strategy
type Loader interface {
	Name() string
	Matches(u *url.URL) bool
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// Recorder receives resolution metrics
type Recorder interface {
	ModuleResolved(loader, status string, elapsed time.Duration)
}

// Resolver resolves identifiers through an ordered loader chain.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	loaders []Loader
	metrics Recorder
}

// New creates a resolver trying loaders in the given order
func New(loaders ...Loader) *Resolver {
	return &Resolver{loaders: append([]Loader(nil), loaders...)}
}

// Instrument returns a copy of r reporting to rec
func (r *Resolver) Instrument(rec Recorder) *Resolver {
	return &Resolver{loaders: r.loaders, metrics: rec}
}

// Loaders returns the loader names in order
func (r *Resolver) Loaders() []string {
	names := make([]string, len(r.loaders))
	for i, l := range r.loaders {
		names[i] = l.Name()
	}
	return names
}

// Resolve fetches identifier and returns its record
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*source.Record, error) {
	canonical, err := source.Canonical(identifier)
	if err != nil {
		return nil, &ResolveError{Identifier: identifier, Err: fmt.Errorf("%w: %v", ErrNoLoaderMatched, err)}
	}
	u, err := source.Parse(canonical)
	if err != nil {
		return nil, &ResolveError{Identifier: identifier, Err: fmt.Errorf("%w: %v", ErrNoLoaderMatched, err)}
	}

	for _, loader := range r.loaders {
		if !loader.Matches(u) {
			continue
		}

		start := time.Now()
		rec, err := r.fetch(ctx, loader, canonical, u)
		r.observe(loader.Name(), err, time.Since(start))
		return rec, err
	}

	r.observe("none", ErrNoLoaderMatched, 0)
	return nil, &ResolveError{Identifier: canonical, Err: ErrNoLoaderMatched}
}

func (r *Resolver) fetch(ctx context.Context, loader Loader, canonical string, u *url.URL) (*source.Record, error) {
	body, err := loader.Fetch(ctx, u)
	if err != nil {
		return nil, &ResolveError{Identifier: canonical, Loader: loader.Name(), Err: classify(err)}
	}
	if err := checkText(body); err != nil {
		return nil, &ResolveError{Identifier: canonical, Loader: loader.Name(), Err: err}
	}

	sum := blake2b.Sum256(body)
	return &source.Record{
		Identifier: canonical,
		Source:     string(body),
		Dialect:    source.DialectFor(canonical),
		Loader:     loader.Name(),
		Digest:     hex.EncodeToString(sum[:]),
		FetchedAt:  time.Now(),
	}, nil
}

func (r *Resolver) observe(loader string, err error, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}

	status := "ok"
	switch {
	case errors.Is(err, ErrPolicyRejected):
		status = "rejected"
	case errors.Is(err, ErrNoLoaderMatched):
		status = "unmatched"
	case err != nil:
		status = "failed"
	}
	r.metrics.ModuleResolved(loader, status, elapsed)
}

func classify(err error) error {
	if errors.Is(err, ErrPolicyRejected) || errors.Is(err, ErrFetchFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFetchFailed, err)
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPolicyRejected, fmt.Sprintf(format, args...))
}

func failf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFetchFailed, fmt.Sprintf(format, args...))
}

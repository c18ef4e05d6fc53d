package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/resilience"
)

// HTTPSConfig configures the network loader
type HTTPSConfig struct {
	AllowedDomains []string
	Timeout        time.Duration
	MaxBytes       int64
	Retries        int
	MaxRedirects   int
	// RequestsPerSecond caps outbound fetches; 0 means unlimited
	RequestsPerSecond float64
	UserAgent         string
	// Transport overrides the retryablehttp transport (tests use the
	// httptest TLS client's transport)
	Transport http.RoundTripper
}

// HTTPSLoader fetches modules over TLS from allow-listed hosts. It claims
// both http and https identifiers so that plain-text ones are rejected
// here instead of falling through as unmatched.
type HTTPSLoader struct {
	allow    *AllowList
	client   *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	maxBytes int64
}

// NewHTTPSLoader creates a network loader
func NewHTTPSLoader(cfg HTTPSConfig) (*HTTPSLoader, error) {
	allow, err := NewAllowList(cfg.AllowedDomains)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "scriptbridge/1.0"
	}

	transport := cfg.Transport
	if transport == nil {
		retryClient := retryablehttp.NewClient()
		retryClient.Logger = nil
		transport = retryClient.HTTPClient.Transport
	}

	l := &HTTPSLoader{
		allow:    allow,
		maxBytes: cfg.MaxBytes,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		breakers: resilience.NewGroup("module-fetch", resilience.Settings{
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
			IsFailure: func(err error) bool {
				return !errors.Is(err, ErrPolicyRejected)
			},
		}),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	l.client = resty.New().
		SetTransport(transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/javascript, application/typescript, text/plain, */*;q=0.1").
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("%w: stopped after %d redirects", ErrPolicyRejected, cfg.MaxRedirects)
			}
			return l.check(req.URL)
		}))

	return l, nil
}

func (l *HTTPSLoader) Name() string { return "https" }

func (l *HTTPSLoader) Matches(u *url.URL) bool {
	return u.Scheme == "https" || u.Scheme == "http"
}

// check is the transport policy, applied before the first request and
// again on every redirect hop
func (l *HTTPSLoader) check(u *url.URL) error {
	if u.Scheme != "https" {
		return rejectf("scheme %q is not encrypted", u.Scheme)
	}
	if u.User != nil {
		return rejectf("credentials in module URLs are not allowed")
	}
	if !l.allow.Allows(u.Hostname()) {
		return rejectf("host %q is not in the allow-list", u.Hostname())
	}
	return nil
}

func (l *HTTPSLoader) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if err := l.check(u); err != nil {
		return nil, err
	}

	return resilience.Do(ctx, l.breakers.Get(u.Hostname()), func(ctx context.Context) ([]byte, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}

		resp, err := l.client.R().SetContext(ctx).Get(u.String())
		if err != nil {
			if errors.Is(err, ErrPolicyRejected) {
				return nil, err
			}
			return nil, failf("%v", err)
		}
		if !resp.IsSuccess() {
			return nil, failf("GET %s: %s", u.Redacted(), resp.Status())
		}

		body := resp.Body()
		if l.maxBytes > 0 && int64(len(body)) > l.maxBytes {
			return nil, failf("module is %d bytes, limit is %d", len(body), l.maxBytes)
		}
		return body, nil
	})
}

package depsdev

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker/v2"

	"github.com/matzehuels/depscanner/pkg/buildinfo"
	"github.com/matzehuels/depscanner/pkg/cache"
	"github.com/matzehuels/depscanner/pkg/httputil"
	"github.com/matzehuels/depscanner/pkg/observability"
	"github.com/matzehuels/depscanner/pkg/store"
)

// API is the subset of deps.dev used by the resolvers. A nil payload with a
// nil error means the service has no data for the key.
type API interface {
	GetPackage(ctx context.Context, key store.PackageKey) (*Package, error)
	GetVersion(ctx context.Context, key store.VersionKey) (*Version, error)
	GetDependencies(ctx context.Context, key store.VersionKey) (*DependencyGraph, error)
	GetAdvisory(ctx context.Context, id string) (*Advisory, error)
}

// Endpoint names used for cache keys, metrics and logs.
const (
	EndpointPackage      = "package"
	EndpointVersion      = "version"
	EndpointDependencies = "dependencies"
	EndpointAdvisory     = "advisory"
)

// BreakerSettings configures the circuit breaker around upstream calls.
// The breaker opens when the failure rate within one Interval reaches
// FailureRatio over at least MinRequests calls, or on MaxFailures
// consecutive failures.
type BreakerSettings struct {
	MaxFailures  uint32
	FailureRatio float64
	MinRequests  uint32
	// Interval is the window after which the counts are cleared while closed.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before a probe.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// Options configures a [Client]. Zero values select the defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration // per request, default 10s
	Retries    int           // attempts per call, default 2
	RetryDelay time.Duration // first backoff, default 200ms
	UserAgent  string
	Breaker    BreakerSettings

	// Cache holds raw response bodies for CacheTTL. Nil or a zero TTL disables it.
	Cache    cache.Cache
	CacheTTL time.Duration

	Logger *log.Logger
}

// DefaultBreaker trips when half of at least ten calls within a minute fail,
// or after five consecutive failures, and probes after 30s.
var DefaultBreaker = BreakerSettings{
	MaxFailures:      5,
	FailureRatio:     0.5,
	MinRequests:      10,
	Interval:         time.Minute,
	OpenTimeout:      30 * time.Second,
	HalfOpenRequests: 1,
}

// Client calls deps.dev over HTTP.
type Client struct {
	base       string
	host       string
	http       *http.Client
	retries    int
	retryDelay time.Duration
	userAgent  string
	cache      cache.Cache
	cacheTTL   time.Duration
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *log.Logger
}

// errNoData marks a 400/404 response. It never reaches callers.
var errNoData = errors.New("no data")

// uncounted wraps an outcome the breaker must not treat as a failure:
// cancellation by the caller, or a definitive "no data" answer.
type uncounted struct{ err error }

func (e uncounted) Error() string { return e.err.Error() }
func (e uncounted) Unwrap() error { return e.err }

// NewClient creates a client with the given options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Retries <= 0 {
		opts.Retries = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = buildinfo.UserAgent()
	}
	if opts.Breaker.MaxFailures == 0 {
		opts.Breaker.MaxFailures = DefaultBreaker.MaxFailures
	}
	if opts.Breaker.FailureRatio <= 0 {
		opts.Breaker.FailureRatio = DefaultBreaker.FailureRatio
	}
	if opts.Breaker.MinRequests == 0 {
		opts.Breaker.MinRequests = DefaultBreaker.MinRequests
	}
	if opts.Breaker.Interval <= 0 {
		opts.Breaker.Interval = DefaultBreaker.Interval
	}
	if opts.Breaker.OpenTimeout <= 0 {
		opts.Breaker.OpenTimeout = DefaultBreaker.OpenTimeout
	}
	if opts.Breaker.HalfOpenRequests == 0 {
		opts.Breaker.HalfOpenRequests = DefaultBreaker.HalfOpenRequests
	}
	if opts.Cache == nil || opts.CacheTTL <= 0 {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	host := opts.BaseURL
	if u, err := url.Parse(opts.BaseURL); err == nil {
		host = u.Host
	}

	c := &Client{
		base:       opts.BaseURL,
		host:       host,
		http:       opts.HTTPClient,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		userAgent:  opts.UserAgent,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		logger:     opts.Logger,
	}
	b := opts.Breaker
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "depsdev",
		MaxRequests: b.HalfOpenRequests,
		Interval:    b.Interval,
		Timeout:     b.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= b.MaxFailures {
				return true
			}
			return counts.Requests >= b.MinRequests &&
				float64(counts.TotalFailures) >= b.FailureRatio*float64(counts.Requests)
		},
		IsSuccessful: func(err error) bool {
			var u uncounted
			return err == nil || errors.As(err, &u)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			observability.Breaker().OnStateChange(name, from.String(), to.String())
		},
	})
	return c
}

// BreakerState reports the breaker state ("closed", "half-open" or "open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) GetPackage(ctx context.Context, key store.PackageKey) (*Package, error) {
	return get[Package](ctx, c, EndpointPackage, packagePath, map[string]string{
		"system": key.System,
		"name":   key.Name,
	})
}

func (c *Client) GetVersion(ctx context.Context, key store.VersionKey) (*Version, error) {
	return get[Version](ctx, c, EndpointVersion, versionPath, versionVars(key))
}

func (c *Client) GetDependencies(ctx context.Context, key store.VersionKey) (*DependencyGraph, error) {
	return get[DependencyGraph](ctx, c, EndpointDependencies, dependenciesPath, versionVars(key))
}

func (c *Client) GetAdvisory(ctx context.Context, id string) (*Advisory, error) {
	return get[Advisory](ctx, c, EndpointAdvisory, advisoryPath, map[string]string{"key": id})
}

func versionVars(key store.VersionKey) map[string]string {
	return map[string]string{
		"system":  key.System,
		"name":    key.Name,
		"version": key.Version,
	}
}

// get expands the URL, consults the response cache, and otherwise fetches
// through the breaker. Everything except cancellation and a bad URL degrades
// to (nil, nil).
func get[T any](ctx context.Context, c *Client, endpoint, tmpl string, vars map[string]string) (*T, error) {
	u, err := expand(c.base, tmpl, vars)
	if err != nil {
		return nil, err
	}
	cacheKey := cache.Key(endpoint, u)

	if body, ok, _ := c.cache.Get(ctx, cacheKey); ok {
		var v T
		if err := json.Unmarshal(body, &v); err == nil {
			observability.Cache().OnCacheHit(ctx, endpoint)
			return &v, nil
		}
		_ = c.cache.Delete(ctx, cacheKey)
	}
	observability.Cache().OnCacheMiss(ctx, endpoint)

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, endpoint, u)
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, errNoData):
		return nil, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.Breaker().OnRejected(ctx, "depsdev")
		c.logger.Debug("upstream call short-circuited", "endpoint", endpoint, "url", u)
		return nil, nil
	default:
		c.logger.Warn("upstream call failed, treating as no data", "endpoint", endpoint, "url", u, "err", err)
		return nil, nil
	}

	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		c.logger.Warn("undecodable upstream response", "endpoint", endpoint, "url", u, "err", err)
		return nil, nil
	}
	if c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, cacheKey, body, c.cacheTTL); err == nil {
			observability.Cache().OnCacheSet(ctx, endpoint, len(body))
		}
	}
	return &v, nil
}

// fetch performs one logical GET with retries. 400 and 404 yield errNoData,
// which the breaker counts as a success.
func (c *Client) fetch(ctx context.Context, endpoint, u string) ([]byte, error) {
	var body []byte
	err := httputil.Retry(ctx, c.retries, c.retryDelay, func() error {
		b, err := c.do(ctx, endpoint, u)
		body = b
		return err
	})
	if ctx.Err() != nil {
		return nil, uncounted{ctx.Err()}
	}
	if errors.Is(err, errNoData) {
		return nil, uncounted{errNoData}
	}
	return body, err
}

func (c *Client) do(ctx context.Context, endpoint, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, http.MethodGet, c.host, endpoint)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, c.host, endpoint, err)
		return nil, &httputil.RetryableError{Err: err}
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, http.MethodGet, c.host, endpoint, resp.StatusCode, time.Since(start))

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
	case code == http.StatusNotFound, code == http.StatusBadRequest:
		c.logger.Debug("no upstream data", "endpoint", endpoint, "url", u, "status", code)
		return nil, errNoData
	case httputil.RetryableStatus(code):
		return nil, &httputil.RetryableError{Err: &httputil.StatusError{Code: code, URL: u}}
	default:
		return nil, &httputil.StatusError{Code: code, URL: u}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &httputil.RetryableError{Err: fmt.Errorf("read body: %w", err)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid json from %s", u)
	}
	return body, nil
}

var _ API = (*Client)(nil)

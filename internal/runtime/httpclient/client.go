package httpclient

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/interceptor"
	"github.com/drblury/actuator/internal/runtime/logging"
	"github.com/drblury/actuator/internal/runtime/registry"
)

// Resolver looks up merged configuration values.
type Resolver interface {
	Get(key string) (any, bool)
}

// Client is a managed *http.Client. Requests go through the interceptors in
// order, then the trace interceptor when traces are active, then the
// transport built by Initialize.
type Client struct {
	logger   logging.ServiceLogger
	resolver Resolver
	prefix   string

	mu           sync.RWMutex
	cfg          Config
	interceptors []registry.Named[interceptor.Interceptor]
	transport    *http.Transport
	client       *http.Client
	trace        *interceptor.Logging

	active atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithInterceptor appends a named interceptor to the chain.
func WithInterceptor(name string, i interceptor.Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, registry.Named[interceptor.Interceptor]{Name: name, Object: i})
	}
}

// WithLogger sets the logger used for traces.
func WithLogger(logger logging.ServiceLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithResolver binds the client to configuration keys under prefix. Refresh
// re-reads them.
func WithResolver(r Resolver, prefix string) Option {
	return func(c *Client) {
		c.resolver = r
		c.prefix = prefix
	}
}

// New creates an active client and initializes it.
func New(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{logger: logging.NopServiceLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c.cfg = cfg.clone()
	c.active.Store(true)
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ClientConfig() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.clone()
}

// SetClientConfig stores cfg. It takes effect on the next Initialize.
func (c *Client) SetClientConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg.clone()
	c.mu.Unlock()
	return nil
}

// Initialize rebuilds the transport and the interceptor chain. Idle
// connections of the previous transport are closed.
func (c *Client) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.cfg
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		WriteBufferSize:       cfg.WriteBufferSize,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.SSLCertificateVerification,
		},
	}
	if cfg.Proxy {
		transport.Proxy = http.ProxyFromEnvironment
	}

	chain := make([]interceptor.Interceptor, 0, len(c.interceptors)+1)
	for _, i := range c.interceptors {
		chain = append(chain, i.Object)
	}
	c.trace = nil
	if cfg.tracing() {
		c.trace = interceptor.NewLogging(c.logger, cfg.Traces.Request, cfg.Traces.Response)
		chain = append(chain, c.trace)
	}

	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	c.transport = transport
	c.client = &http.Client{
		Transport: interceptor.Chain(transport, chain...),
		Timeout:   cfg.Timeout,
	}
	return nil
}

func (c *Client) IsActive() bool { return c.active.Load() }

// SetActive toggles the client without rebuilding it.
func (c *Client) SetActive(active bool) { c.active.Store(active) }

// Interceptors returns the chain in order.
func (c *Client) Interceptors() []registry.Named[interceptor.Interceptor] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]registry.Named[interceptor.Interceptor], len(c.interceptors))
	copy(out, c.interceptors)
	return out
}

// Do sends req. Relative URLs resolve against the configured base URL.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !c.IsActive() {
		return nil, errspkg.ErrClientInactive
	}
	c.mu.RLock()
	client, base := c.client, c.cfg.URL
	c.mu.RUnlock()

	if !req.URL.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return nil, err
		}
		req.URL = b.ResolveReference(req.URL)
	}
	return client.Do(req)
}

// NewRequest builds a request for path relative to the base URL. List
// values in query are encoded with the configured QueryParamsListMode.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		req.URL.RawQuery = EncodeQuery(query, c.ClientConfig().QueryParamsListMode)
	}
	return req, nil
}

// Get issues a GET for path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// RefreshInterceptors refreshes every interceptor in the chain and stops at
// the first failure.
func (c *Client) RefreshInterceptors(ctx context.Context) error {
	return Dispatch(ctx, "", c, ActionRefreshInterceptors)
}

// Refresh re-reads the client settings from the bound resolver and
// re-initializes. Without a resolver it does nothing.
func (c *Client) Refresh(ctx context.Context) error {
	if c.resolver == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	values := resolve(c.resolver, c.prefix)
	p, err := ParsePatch(values)
	if err != nil {
		return err
	}
	if p.IsEmpty() {
		return nil
	}
	cfg := c.ClientConfig()
	p.applyTo(&cfg)
	if err := c.SetClientConfig(cfg); err != nil {
		return err
	}
	return c.Initialize()
}

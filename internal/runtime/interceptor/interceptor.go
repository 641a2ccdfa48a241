// Package interceptor provides the HTTP client interceptors the actuator can
// inspect and reconfigure. An interceptor wraps an http.RoundTripper; the
// optional capabilities below expose its settings and cached credentials.
package interceptor

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/drblury/actuator/internal/runtime/enum"
)

// Kind is the closed set of interceptor variants.
type Kind string

const (
	KindBasic   Kind = "basic"
	KindOAuth2  Kind = "oauth2"
	KindCookie  Kind = "cookie"
	KindLogging Kind = "logging"
)

// Interceptor is implemented by every managed interceptor.
type Interceptor interface {
	InterceptorKind() Kind
	Wrap(next http.RoundTripper) http.RoundTripper
}

// Configurable interceptors expose their settings. Initialize rebuilds
// derived state after SetInterceptorConfig.
type Configurable interface {
	InterceptorConfig() Config
	SetInterceptorConfig(Config) error
	Initialize() error
}

// Refresher interceptors can renew the credentials they cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// TokenHolder interceptors cache a bearer token.
type TokenHolder interface {
	Token() (token string, expiry time.Time)
}

// CookieHolder interceptors cache session cookies.
type CookieHolder interface {
	Cookie() *http.Cookie
	Cookies() map[string][]*http.Cookie
}

// TraceHolder interceptors log requests and responses.
type TraceHolder interface {
	Traces() (request, response Message)
}

// GrantType selects the OAuth2 flow.
type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
)

// GrantTypes lists the supported grant types.
var GrantTypes = []GrantType{GrantClientCredentials, GrantPassword}

// ParseGrantType matches s loosely against GrantTypes.
func ParseGrantType(s string) (GrantType, bool) {
	return enum.Parse(s, GrantTypes...)
}

// Config holds the settings of every interceptor variant. Each variant reads
// the fields it needs.
type Config struct {
	Service string
	URL     string

	Username string
	Password string

	ClientID     string
	ClientSecret string
	GrantType    GrantType
	Scope        string

	CookieName           string
	CookiesNames         []string
	CookiesNamesInHeader []string
}

func (c Config) clone() Config {
	c.CookiesNames = slices.Clone(c.CookiesNames)
	c.CookiesNamesInHeader = slices.Clone(c.CookiesNamesInHeader)
	return c
}

// Message configures the trace of one direction.
type Message struct {
	Active  bool `json:"active"`
	Headers bool `json:"headers"`
	Body    bool `json:"body"`
	// MaxLength truncates logged bodies. Zero logs them whole.
	MaxLength int `json:"maxLength"`
}

// holder guards a Config for the variants that embed it.
type holder struct {
	mu  sync.RWMutex
	cfg Config
}

func (h *holder) InterceptorConfig() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.clone()
}

func (h *holder) SetInterceptorConfig(cfg Config) error {
	h.mu.Lock()
	h.cfg = cfg.clone()
	h.mu.Unlock()
	return nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Chain wraps base with interceptors so that the first one sees the request
// first. A nil base means http.DefaultTransport.
func Chain(base http.RoundTripper, interceptors ...Interceptor) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(interceptors) - 1; i >= 0; i-- {
		rt = interceptors[i].Wrap(rt)
	}
	return rt
}

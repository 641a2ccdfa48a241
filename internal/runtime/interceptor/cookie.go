package interceptor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// CookieForwarding logs in against cfg.URL and forwards the session cookies
// it received. Names in CookiesNames are sent as cookies, names in
// CookiesNamesInHeader as request headers. The CookieName cookie is always
// sent.
type CookieForwarding struct {
	holder

	// HTTPClient performs the login. Nil means http.DefaultClient.
	HTTPClient *http.Client

	cookieMu sync.RWMutex
	cookies  map[string][]*http.Cookie
}

// NewCookieForwarding returns a cookie forwarding interceptor.
func NewCookieForwarding(cfg Config) *CookieForwarding {
	c := &CookieForwarding{}
	c.cfg = cfg.clone()
	return c
}

func (c *CookieForwarding) InterceptorKind() Kind { return KindCookie }

// Initialize checks the settings and forgets the cached cookies.
func (c *CookieForwarding) Initialize() error {
	if c.InterceptorConfig().URL == "" {
		return fmt.Errorf("%w: cookie forwarding needs a login url", errspkg.ErrInvalidParameter)
	}
	c.cookieMu.Lock()
	c.cookies = nil
	c.cookieMu.Unlock()
	return nil
}

// Refresh logs in again. With a username the credentials are posted as a
// form; otherwise the login url is fetched with GET.
func (c *CookieForwarding) Refresh(ctx context.Context) error {
	cfg := c.InterceptorConfig()
	var (
		req *http.Request
		err error
	)
	if cfg.Username != "" {
		form := url.Values{"username": {cfg.Username}, "password": {cfg.Password}}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	}
	if err != nil {
		return err
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("login %s: status %d", cfg.URL, resp.StatusCode)
	}

	cookies := make(map[string][]*http.Cookie)
	for _, ck := range resp.Cookies() {
		cookies[ck.Name] = append(cookies[ck.Name], ck)
	}
	c.cookieMu.Lock()
	c.cookies = cookies
	c.cookieMu.Unlock()
	return nil
}

// Cookie returns the session cookie named CookieName.
func (c *CookieForwarding) Cookie() *http.Cookie {
	name := c.InterceptorConfig().CookieName
	c.cookieMu.RLock()
	defer c.cookieMu.RUnlock()
	if list := c.cookies[name]; name != "" && len(list) > 0 {
		return list[0]
	}
	return nil
}

// Cookies returns every cookie received at login, keyed by name.
func (c *CookieForwarding) Cookies() map[string][]*http.Cookie {
	c.cookieMu.RLock()
	defer c.cookieMu.RUnlock()
	if c.cookies == nil {
		return nil
	}
	out := make(map[string][]*http.Cookie, len(c.cookies))
	for k, v := range c.cookies {
		out[k] = slices.Clone(v)
	}
	return out
}

func (c *CookieForwarding) loggedIn() bool {
	c.cookieMu.RLock()
	defer c.cookieMu.RUnlock()
	return c.cookies != nil
}

func (c *CookieForwarding) Wrap(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if !c.loggedIn() {
			if err := c.Refresh(req.Context()); err != nil {
				return nil, fmt.Errorf("cookie login: %w", err)
			}
		}
		cfg := c.InterceptorConfig()
		cookies := c.Cookies()
		out := req.Clone(req.Context())

		asCookie := slices.Clone(cfg.CookiesNames)
		if cfg.CookieName != "" && !slices.Contains(asCookie, cfg.CookieName) && !slices.Contains(cfg.CookiesNamesInHeader, cfg.CookieName) {
			asCookie = append(asCookie, cfg.CookieName)
		}
		for _, name := range asCookie {
			for _, ck := range cookies[name] {
				out.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
			}
		}
		for _, name := range cfg.CookiesNamesInHeader {
			if list := cookies[name]; len(list) > 0 {
				out.Header.Set(name, list[0].Value)
			}
		}
		return next.RoundTrip(out)
	})
}

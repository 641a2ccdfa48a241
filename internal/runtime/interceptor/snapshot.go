package interceptor

import (
	"fmt"
	"net/http"
	"time"
)

const redacted = "******"

// Snapshot is the read-only view of an interceptor. Secrets are redacted and
// cookie values are never exposed.
type Snapshot struct {
	Kind    Kind   `json:"kind"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Service string `json:"service,omitempty"`
	URL     string `json:"url,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	ClientID     string     `json:"clientId,omitempty"`
	ClientSecret string     `json:"clientSecret,omitempty"`
	GrantType    GrantType  `json:"grantType,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	Token        string     `json:"token,omitempty"`
	Expire       *time.Time `json:"expire,omitempty"`

	CookieName           string                      `json:"cookieName,omitempty"`
	Cookie               *CookieSnapshot             `json:"cookie,omitempty"`
	Cookies              map[string][]CookieSnapshot `json:"cookies,omitempty"`
	CookiesNames         []string                    `json:"cookiesNames,omitempty"`
	CookiesNamesInHeader []string                    `json:"cookiesNamesInHeader,omitempty"`

	Request  *Message `json:"request,omitempty"`
	Response *Message `json:"response,omitempty"`
}

type CookieSnapshot struct {
	Name     string     `json:"name"`
	Domain   string     `json:"domain,omitempty"`
	Path     string     `json:"path,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	Secure   bool       `json:"secure"`
	HttpOnly bool       `json:"httpOnly"`
}

// Convert builds the snapshot of i.
func Convert(name string, i Interceptor) Snapshot {
	snap := Snapshot{
		Kind: i.InterceptorKind(),
		Name: name,
		Type: fmt.Sprintf("%T", i),
	}
	if c, ok := i.(Configurable); ok {
		cfg := c.InterceptorConfig()
		snap.Service = cfg.Service
		snap.URL = cfg.URL
		snap.Username = cfg.Username
		snap.Password = redact(cfg.Password)
		snap.ClientID = cfg.ClientID
		snap.ClientSecret = redact(cfg.ClientSecret)
		snap.GrantType = cfg.GrantType
		snap.Scope = cfg.Scope
		snap.CookieName = cfg.CookieName
		snap.CookiesNames = cfg.CookiesNames
		snap.CookiesNamesInHeader = cfg.CookiesNamesInHeader
	}
	if t, ok := i.(TokenHolder); ok {
		token, expiry := t.Token()
		snap.Token = redact(token)
		if !expiry.IsZero() {
			snap.Expire = &expiry
		}
	}
	if c, ok := i.(CookieHolder); ok {
		if ck := c.Cookie(); ck != nil {
			s := convertCookie(ck)
			snap.Cookie = &s
		}
		if all := c.Cookies(); len(all) > 0 {
			snap.Cookies = make(map[string][]CookieSnapshot, len(all))
			for k, list := range all {
				for _, ck := range list {
					snap.Cookies[k] = append(snap.Cookies[k], convertCookie(ck))
				}
			}
		}
	}
	if t, ok := i.(TraceHolder); ok {
		req, resp := t.Traces()
		snap.Request, snap.Response = &req, &resp
	}
	return snap
}

func convertCookie(c *http.Cookie) CookieSnapshot {
	s := CookieSnapshot{Name: c.Name, Domain: c.Domain, Path: c.Path, Secure: c.Secure, HttpOnly: c.HttpOnly}
	if !c.Expires.IsZero() {
		exp := c.Expires
		s.Expires = &exp
	}
	return s
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

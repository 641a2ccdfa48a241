package interceptor

import (
	"context"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/params"
)

// Patch holds the interceptor fields a caller wants to change. GrantType is
// matched loosely and ignored when it names no known grant.
type Patch struct {
	Service              *string
	URL                  *string
	Username             *string
	Password             *string
	ClientID             *string
	ClientSecret         *string
	GrantType            *string
	Scope                *string
	CookieName           *string
	CookiesNames         *[]string
	CookiesNamesInHeader *[]string
}

// ParsePatch reads a patch from request parameters.
func ParsePatch(v params.Values) (Patch, error) {
	r := params.NewReader(v)
	p := Patch{
		Service:              r.String("service"),
		URL:                  r.String("url"),
		Username:             r.String("username"),
		Password:             r.String("password"),
		ClientID:             r.String("clientId"),
		ClientSecret:         r.String("clientSecret"),
		GrantType:            r.String("grantType"),
		Scope:                r.String("scope"),
		CookieName:           r.String("cookieName"),
		CookiesNames:         r.List("cookiesNames"),
		CookiesNamesInHeader: r.List("cookiesNamesInHeader"),
	}
	return p, r.Err()
}

// IsEmpty reports whether no field is set.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

func (p Patch) applyTo(cfg *Config) {
	set(&cfg.Service, p.Service)
	set(&cfg.URL, p.URL)
	set(&cfg.Username, p.Username)
	set(&cfg.Password, p.Password)
	set(&cfg.ClientID, p.ClientID)
	set(&cfg.ClientSecret, p.ClientSecret)
	set(&cfg.Scope, p.Scope)
	set(&cfg.CookieName, p.CookieName)
	set(&cfg.CookiesNames, p.CookiesNames)
	set(&cfg.CookiesNamesInHeader, p.CookiesNamesInHeader)
	if p.GrantType != nil {
		if g, ok := ParseGrantType(*p.GrantType); ok {
			cfg.GrantType = g
		}
	}
}

// Update merges p into i, re-initializes it and refreshes its credentials.
// An empty patch does nothing.
func Update(ctx context.Context, name string, i Interceptor, p Patch) error {
	if p.IsEmpty() {
		return nil
	}
	if c, ok := i.(Configurable); ok {
		cfg := c.InterceptorConfig()
		p.applyTo(&cfg)
		if err := c.SetInterceptorConfig(cfg); err != nil {
			return err
		}
		if err := c.Initialize(); err != nil {
			return errspkg.Lifecycle("initialize", name, err)
		}
	}
	return refresh(ctx, name, i)
}

func refresh(ctx context.Context, name string, i Interceptor) error {
	if r, ok := i.(Refresher); ok {
		return errspkg.Lifecycle("refresh", name, r.Refresh(ctx))
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

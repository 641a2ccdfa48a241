package interceptor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// OAuth2 fetches a bearer token from cfg.URL and sets it on every request.
// The token is cached until it expires or Refresh is called.
type OAuth2 struct {
	holder

	// HTTPClient is used for token requests. Nil means http.DefaultClient.
	HTTPClient *http.Client

	tokenMu sync.Mutex
	token   *oauth2.Token
}

// NewOAuth2 returns an OAuth2 interceptor. An empty grant type means client
// credentials.
func NewOAuth2(cfg Config) *OAuth2 {
	o := &OAuth2{}
	o.cfg = cfg.clone()
	return o
}

func (o *OAuth2) InterceptorKind() Kind { return KindOAuth2 }

// Initialize checks the settings and drops the cached token.
func (o *OAuth2) Initialize() error {
	cfg := o.InterceptorConfig()
	if cfg.URL == "" || cfg.ClientID == "" {
		return fmt.Errorf("%w: oauth2 needs a token url and a client id", errspkg.ErrInvalidParameter)
	}
	if cfg.GrantType == GrantPassword && cfg.Username == "" {
		return fmt.Errorf("%w: password grant needs a username", errspkg.ErrInvalidParameter)
	}
	o.tokenMu.Lock()
	o.token = nil
	o.tokenMu.Unlock()
	return nil
}

// Refresh fetches a new token.
func (o *OAuth2) Refresh(ctx context.Context) error {
	tok, err := o.fetch(ctx)
	if err != nil {
		return err
	}
	o.tokenMu.Lock()
	o.token = tok
	o.tokenMu.Unlock()
	return nil
}

// Token returns the cached access token and its expiry.
func (o *OAuth2) Token() (string, time.Time) {
	o.tokenMu.Lock()
	defer o.tokenMu.Unlock()
	if o.token == nil {
		return "", time.Time{}
	}
	return o.token.AccessToken, o.token.Expiry
}

func (o *OAuth2) fetch(ctx context.Context) (*oauth2.Token, error) {
	cfg := o.InterceptorConfig()
	if o.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.HTTPClient)
	}
	scopes := strings.Fields(strings.ReplaceAll(cfg.Scope, ",", " "))

	switch cfg.GrantType {
	case GrantPassword:
		conf := oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.URL},
			Scopes:       scopes,
		}
		return conf.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
	default:
		conf := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.URL,
			Scopes:       scopes,
		}
		return conf.Token(ctx)
	}
}

func (o *OAuth2) current(ctx context.Context) (*oauth2.Token, error) {
	o.tokenMu.Lock()
	tok := o.token
	o.tokenMu.Unlock()
	if tok.Valid() {
		return tok, nil
	}
	if err := o.Refresh(ctx); err != nil {
		return nil, err
	}
	o.tokenMu.Lock()
	defer o.tokenMu.Unlock()
	return o.token, nil
}

func (o *OAuth2) Wrap(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		tok, err := o.current(req.Context())
		if err != nil {
			return nil, fmt.Errorf("oauth2 token: %w", err)
		}
		out := req.Clone(req.Context())
		tok.SetAuthHeader(out)
		return next.RoundTrip(out)
	})
}

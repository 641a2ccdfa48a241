package interceptor

import (
	"fmt"
	"net/http"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// BasicAuth sets HTTP basic credentials on every request.
type BasicAuth struct {
	holder
}

// NewBasicAuth returns a basic auth interceptor for cfg.Username and
// cfg.Password.
func NewBasicAuth(cfg Config) *BasicAuth {
	b := &BasicAuth{}
	b.cfg = cfg.clone()
	return b
}

func (b *BasicAuth) InterceptorKind() Kind { return KindBasic }

// Initialize requires a username.
func (b *BasicAuth) Initialize() error {
	if b.InterceptorConfig().Username == "" {
		return fmt.Errorf("%w: basic auth needs a username", errspkg.ErrInvalidParameter)
	}
	return nil
}

func (b *BasicAuth) Wrap(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		cfg := b.InterceptorConfig()
		out := req.Clone(req.Context())
		out.SetBasicAuth(cfg.Username, cfg.Password)
		return next.RoundTrip(out)
	})
}

// Package httpclient provides a managed HTTP client whose transport settings,
// traces and interceptors can be inspected and changed at runtime.
package httpclient

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/drblury/actuator/internal/runtime/enum"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/interceptor"
	"github.com/drblury/actuator/internal/runtime/registry"
)

// Template is implemented by every managed HTTP client.
type Template interface {
	ClientConfig() Config
	SetClientConfig(Config) error
	// Initialize rebuilds the transport from the current config.
	Initialize() error
}

// Activatable clients can be switched off without being removed.
type Activatable interface {
	IsActive() bool
	SetActive(bool)
}

// Intercepted clients expose their interceptor chain.
type Intercepted interface {
	Interceptors() []registry.Named[interceptor.Interceptor]
}

// QueryParamsListMode controls how multi-valued query parameters are
// encoded.
type QueryParamsListMode string

const (
	// QueryRepeat encodes k=a&k=b.
	QueryRepeat QueryParamsListMode = "repeat"
	// QueryComma encodes k=a,b.
	QueryComma QueryParamsListMode = "comma"
	// QueryBrackets encodes k[]=a&k[]=b.
	QueryBrackets QueryParamsListMode = "brackets"
)

var QueryParamsListModes = []QueryParamsListMode{QueryRepeat, QueryComma, QueryBrackets}

// ParseQueryParamsListMode matches s loosely.
func ParseQueryParamsListMode(s string) (QueryParamsListMode, bool) {
	return enum.Parse(s, QueryParamsListModes...)
}

// Traces enables request and response logging.
type Traces struct {
	Active   bool                `json:"active"`
	Request  interceptor.Message `json:"request"`
	Response interceptor.Message `json:"response"`
}

// Config holds the client settings applied by Initialize.
type Config struct {
	// URL is the base that relative request paths resolve against.
	URL                   string
	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
	// Timeout bounds a whole exchange. Zero means no limit.
	Timeout             time.Duration
	IdleConnTimeout     time.Duration
	MaxConnsPerHost     int
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	WriteBufferSize     int
	// Proxy routes requests through the proxy from the environment.
	Proxy                      bool
	SSLCertificateVerification bool
	QueryParamsListMode        QueryParamsListMode
	Traces                     *Traces
}

// DefaultConfig verifies certificates and repeats list parameters.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:             30 * time.Second,
		IdleConnTimeout:            90 * time.Second,
		MaxIdleConns:               100,
		SSLCertificateVerification: true,
		QueryParamsListMode:        QueryRepeat,
	}
}

// Validate rejects negative limits and unparsable base URLs.
func (c Config) Validate() error {
	var problems []string
	if c.URL != "" {
		if _, err := url.Parse(c.URL); err != nil {
			problems = append(problems, fmt.Sprintf("url: %v", err))
		}
	}
	for name, d := range map[string]time.Duration{
		"connectTimeout":        c.ConnectTimeout,
		"responseHeaderTimeout": c.ResponseHeaderTimeout,
		"timeout":               c.Timeout,
		"idleConnTimeout":       c.IdleConnTimeout,
	} {
		if d < 0 {
			problems = append(problems, name+" cannot be negative")
		}
	}
	for name, n := range map[string]int{
		"maxConnsPerHost":     c.MaxConnsPerHost,
		"maxIdleConns":        c.MaxIdleConns,
		"maxIdleConnsPerHost": c.MaxIdleConnsPerHost,
		"writeBufferSize":     c.WriteBufferSize,
	} {
		if n < 0 {
			problems = append(problems, name+" cannot be negative")
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", errspkg.ErrInvalidParameter, strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) clone() Config {
	if c.Traces != nil {
		t := *c.Traces
		c.Traces = &t
	}
	return c
}

func (c Config) tracing() bool {
	return c.Traces != nil && c.Traces.Active && (c.Traces.Request.Active || c.Traces.Response.Active)
}

// EncodeQuery encodes values using mode. Keys are sorted.
func EncodeQuery(values url.Values, mode QueryParamsListMode) string {
	if mode == "" || mode == QueryRepeat {
		return values.Encode()
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	write := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(v)
	}
	for _, k := range keys {
		vs := values[k]
		switch mode {
		case QueryComma:
			escaped := make([]string, len(vs))
			for i, v := range vs {
				escaped[i] = url.QueryEscape(v)
			}
			write(k, strings.Join(escaped, ","))
		case QueryBrackets:
			for _, v := range vs {
				write(k+"[]", url.QueryEscape(v))
			}
		}
	}
	return b.String()
}

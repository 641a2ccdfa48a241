package httpclient

import (
	"time"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/params"
)

// Patch holds the client fields a caller wants to change. Bare numbers for
// timeouts are milliseconds. The traces fields merge into the current traces
// config, creating it when absent.
type Patch struct {
	URL                        *string
	ConnectTimeout             *time.Duration
	ResponseHeaderTimeout      *time.Duration
	Timeout                    *time.Duration
	IdleConnTimeout            *time.Duration
	MaxConnsPerHost            *int
	MaxIdleConns               *int
	MaxIdleConnsPerHost        *int
	WriteBufferSize            *int
	Proxy                      *bool
	SSLCertificateVerification *bool
	// QueryParamsListMode is matched loosely and ignored when unknown.
	QueryParamsListMode *string

	TracesActive            *bool
	TracesRequestActive     *bool
	TracesRequestHeaders    *bool
	TracesRequestBody       *bool
	TracesRequestMaxLength  *int
	TracesResponseActive    *bool
	TracesResponseHeaders   *bool
	TracesResponseBody      *bool
	TracesResponseMaxLength *int
}

const (
	keyURL                        = "url"
	keyConnectTimeout             = "connectTimeout"
	keyResponseHeaderTimeout      = "responseHeaderTimeout"
	keyTimeout                    = "timeout"
	keyIdleConnTimeout            = "idleConnTimeout"
	keyMaxConnsPerHost            = "maxConnsPerHost"
	keyMaxIdleConns               = "maxIdleConns"
	keyMaxIdleConnsPerHost        = "maxIdleConnsPerHost"
	keyWriteBufferSize            = "writeBufferSize"
	keyProxy                      = "proxy"
	keySSLCertificateVerification = "sslCertificateVerification"
	keyQueryParamsListMode        = "queryParamsListMode"
	keyTracesActive               = "tracesActive"
	keyTracesRequestActive        = "tracesRequestActive"
	keyTracesRequestHeaders       = "tracesRequestHeaders"
	keyTracesRequestBody          = "tracesRequestBody"
	keyTracesRequestMaxLength     = "tracesRequestMaxLength"
	keyTracesResponseActive       = "tracesResponseActive"
	keyTracesResponseHeaders      = "tracesResponseHeaders"
	keyTracesResponseBody         = "tracesResponseBody"
	keyTracesResponseMaxLength    = "tracesResponseMaxLength"
)

// PatchKeys lists every parameter ParsePatch reads.
var PatchKeys = []string{
	keyURL, keyConnectTimeout, keyResponseHeaderTimeout, keyTimeout, keyIdleConnTimeout,
	keyMaxConnsPerHost, keyMaxIdleConns, keyMaxIdleConnsPerHost, keyWriteBufferSize,
	keyProxy, keySSLCertificateVerification, keyQueryParamsListMode,
	keyTracesActive, keyTracesRequestActive, keyTracesRequestHeaders, keyTracesRequestBody,
	keyTracesRequestMaxLength, keyTracesResponseActive, keyTracesResponseHeaders,
	keyTracesResponseBody, keyTracesResponseMaxLength,
}

// ParsePatch reads a patch from request parameters.
func ParsePatch(v params.Values) (Patch, error) {
	r := params.NewReader(v)
	p := Patch{
		URL:                        r.String(keyURL),
		ConnectTimeout:             r.Duration(keyConnectTimeout, time.Millisecond),
		ResponseHeaderTimeout:      r.Duration(keyResponseHeaderTimeout, time.Millisecond),
		Timeout:                    r.Duration(keyTimeout, time.Millisecond),
		IdleConnTimeout:            r.Duration(keyIdleConnTimeout, time.Millisecond),
		MaxConnsPerHost:            r.Int(keyMaxConnsPerHost),
		MaxIdleConns:               r.Int(keyMaxIdleConns),
		MaxIdleConnsPerHost:        r.Int(keyMaxIdleConnsPerHost),
		WriteBufferSize:            r.Int(keyWriteBufferSize),
		Proxy:                      r.Bool(keyProxy),
		SSLCertificateVerification: r.Bool(keySSLCertificateVerification),
		QueryParamsListMode:        r.String(keyQueryParamsListMode),

		TracesActive:            r.Bool(keyTracesActive),
		TracesRequestActive:     r.Bool(keyTracesRequestActive),
		TracesRequestHeaders:    r.Bool(keyTracesRequestHeaders),
		TracesRequestBody:       r.Bool(keyTracesRequestBody),
		TracesRequestMaxLength:  r.Int(keyTracesRequestMaxLength),
		TracesResponseActive:    r.Bool(keyTracesResponseActive),
		TracesResponseHeaders:   r.Bool(keyTracesResponseHeaders),
		TracesResponseBody:      r.Bool(keyTracesResponseBody),
		TracesResponseMaxLength: r.Int(keyTracesResponseMaxLength),
	}
	return p, r.Err()
}

// IsEmpty reports whether no field is set.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

func (p Patch) hasTraces() bool {
	return p.TracesActive != nil ||
		p.TracesRequestActive != nil || p.TracesRequestHeaders != nil ||
		p.TracesRequestBody != nil || p.TracesRequestMaxLength != nil ||
		p.TracesResponseActive != nil || p.TracesResponseHeaders != nil ||
		p.TracesResponseBody != nil || p.TracesResponseMaxLength != nil
}

func (p Patch) applyTo(cfg *Config) {
	set(&cfg.URL, p.URL)
	set(&cfg.ConnectTimeout, p.ConnectTimeout)
	set(&cfg.ResponseHeaderTimeout, p.ResponseHeaderTimeout)
	set(&cfg.Timeout, p.Timeout)
	set(&cfg.IdleConnTimeout, p.IdleConnTimeout)
	set(&cfg.MaxConnsPerHost, p.MaxConnsPerHost)
	set(&cfg.MaxIdleConns, p.MaxIdleConns)
	set(&cfg.MaxIdleConnsPerHost, p.MaxIdleConnsPerHost)
	set(&cfg.WriteBufferSize, p.WriteBufferSize)
	set(&cfg.Proxy, p.Proxy)
	set(&cfg.SSLCertificateVerification, p.SSLCertificateVerification)
	if p.QueryParamsListMode != nil {
		if mode, ok := ParseQueryParamsListMode(*p.QueryParamsListMode); ok {
			cfg.QueryParamsListMode = mode
		}
	}
	if !p.hasTraces() {
		return
	}
	traces := Traces{}
	if cfg.Traces != nil {
		traces = *cfg.Traces
	}
	set(&traces.Active, p.TracesActive)
	set(&traces.Request.Active, p.TracesRequestActive)
	set(&traces.Request.Headers, p.TracesRequestHeaders)
	set(&traces.Request.Body, p.TracesRequestBody)
	set(&traces.Request.MaxLength, p.TracesRequestMaxLength)
	set(&traces.Response.Active, p.TracesResponseActive)
	set(&traces.Response.Headers, p.TracesResponseHeaders)
	set(&traces.Response.Body, p.TracesResponseBody)
	set(&traces.Response.MaxLength, p.TracesResponseMaxLength)
	cfg.Traces = &traces
}

// Update merges p into t and re-initializes it. An empty patch does nothing.
func Update(name string, t Template, p Patch) error {
	if p.IsEmpty() {
		return nil
	}
	cfg := t.ClientConfig()
	p.applyTo(&cfg)
	if err := t.SetClientConfig(cfg); err != nil {
		return err
	}
	return errspkg.Lifecycle("initialize", name, t.Initialize())
}

// resolve collects the patch keys defined under prefix.
func resolve(r Resolver, prefix string) params.Values {
	values := params.Values{}
	for _, key := range PatchKeys {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if v, ok := r.Get(full); ok {
			values[key] = v
		}
	}
	return values
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/drblury/actuator/internal/runtime/interceptor"
	"github.com/drblury/actuator/internal/runtime/params"
)

func TestParsePatch(t *testing.T) {
	p, err := ParsePatch(params.Values{
		"connectTimeout":         "250",
		"timeout":                "2s",
		"maxConnsPerHost":        float64(8),
		"queryParamsListMode":    "Brackets",
		"tracesRequestMaxLength": "512",
	})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, *p.ConnectTimeout)
	assert.Equal(t, 2*time.Second, *p.Timeout)
	assert.Equal(t, 8, *p.MaxConnsPerHost)
	assert.Equal(t, 512, *p.TracesRequestMaxLength)
	assert.Nil(t, p.URL)
}

func TestTracesPatchMergesIntoExisting(t *testing.T) {
	cfg := Config{Traces: &Traces{Active: true, Request: interceptor.Message{Active: true, Body: true}}}
	length := 64
	Patch{TracesRequestMaxLength: &length}.applyTo(&cfg)

	require.NotNil(t, cfg.Traces)
	assert.True(t, cfg.Traces.Active)
	assert.Equal(t, interceptor.Message{Active: true, Body: true, MaxLength: 64}, cfg.Traces.Request)

	fresh := Config{}
	active := true
	Patch{TracesActive: &active}.applyTo(&fresh)
	require.NotNil(t, fresh.Traces)
	assert.True(t, fresh.Traces.Active)
	assert.False(t, fresh.Traces.Response.Active)
}

func TestUnknownListModeIsIgnored(t *testing.T) {
	cfg := Config{QueryParamsListMode: QueryComma}
	mode := "semicolon"
	Patch{QueryParamsListMode: &mode}.applyTo(&cfg)
	assert.Equal(t, QueryComma, cfg.QueryParamsListMode)
}

func TestEmptyPatchIsNoop(t *testing.T) {
	c := newClient(t, DefaultConfig())
	before := Convert("c", c)
	require.NoError(t, Update("c", c, Patch{}))
	assert.Equal(t, before, Convert("c", c))
}

func TestSingleFieldPatchChangesOnlyThatField(t *testing.T) {
	c := newClient(t, DefaultConfig())

	rapid.Check(t, func(rt *rapid.T) {
		before := Convert("c", c)
		want := before
		if before.Traces != nil {
			tr := *before.Traces
			want.Traces = &tr
		}

		ms := rapid.Int64Range(0, 120_000).Draw(rt, "millis")
		d := time.Duration(ms) * time.Millisecond
		n := rapid.IntRange(0, 512).Draw(rt, "n")
		b := rapid.Bool().Draw(rt, "b")

		var p Patch
		switch rapid.IntRange(0, 11).Draw(rt, "field") {
		case 0:
			u := "http://" + rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "host")
			p.URL, want.URL = &u, u
		case 1:
			p.ConnectTimeout, want.ConnectTimeout = &d, ms
		case 2:
			p.ResponseHeaderTimeout, want.ResponseHeaderTimeout = &d, ms
		case 3:
			p.Timeout, want.Timeout = &d, ms
		case 4:
			p.IdleConnTimeout, want.IdleConnTimeout = &d, ms
		case 5:
			p.MaxConnsPerHost, want.MaxConnsPerHost = &n, n
		case 6:
			p.MaxIdleConns, want.MaxIdleConns = &n, n
		case 7:
			p.MaxIdleConnsPerHost, want.MaxIdleConnsPerHost = &n, n
		case 8:
			p.WriteBufferSize, want.WriteBufferSize = &n, n
		case 9:
			p.Proxy, want.Proxy = &b, b
		case 10:
			p.SSLCertificateVerification, want.SSLCertificateVerification = &b, b
		case 11:
			mode := rapid.SampledFrom(QueryParamsListModes).Draw(rt, "mode")
			s := string(mode)
			p.QueryParamsListMode, want.QueryParamsListMode = &s, mode
		}

		if err := Update("c", c, p); err != nil {
			rt.Fatalf("update: %v", err)
		}
		if got := Convert("c", c); !assert.ObjectsAreEqual(want, got) {
			rt.Fatalf("want %+v got %+v", want, got)
		}
	})
}

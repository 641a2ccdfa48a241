package httpclient

import (
	"fmt"

	"github.com/drblury/actuator/internal/runtime/interceptor"
)

// Snapshot is the read-only view of a client. Durations are milliseconds.
type Snapshot struct {
	Name                       string                 `json:"name"`
	Type                       string                 `json:"type"`
	URL                        string                 `json:"url,omitempty"`
	ConnectTimeout             int64                  `json:"connectTimeout"`
	ResponseHeaderTimeout      int64                  `json:"responseHeaderTimeout"`
	Timeout                    int64                  `json:"timeout"`
	IdleConnTimeout            int64                  `json:"idleConnTimeout"`
	MaxConnsPerHost            int                    `json:"maxConnsPerHost"`
	MaxIdleConns               int                    `json:"maxIdleConns"`
	MaxIdleConnsPerHost        int                    `json:"maxIdleConnsPerHost"`
	WriteBufferSize            int                    `json:"writeBufferSize"`
	Proxy                      bool                   `json:"proxy"`
	SSLCertificateVerification bool                   `json:"sslCertificateVerification"`
	QueryParamsListMode        QueryParamsListMode    `json:"queryParamsListMode,omitempty"`
	Active                     *bool                  `json:"active,omitempty"`
	Traces                     *Traces                `json:"traces,omitempty"`
	Interceptors               []interceptor.Snapshot `json:"interceptors,omitempty"`
}

// Convert builds the snapshot of t.
func Convert(name string, t Template) Snapshot {
	cfg := t.ClientConfig()
	snap := Snapshot{
		Name:                       name,
		Type:                       fmt.Sprintf("%T", t),
		URL:                        cfg.URL,
		ConnectTimeout:             cfg.ConnectTimeout.Milliseconds(),
		ResponseHeaderTimeout:      cfg.ResponseHeaderTimeout.Milliseconds(),
		Timeout:                    cfg.Timeout.Milliseconds(),
		IdleConnTimeout:            cfg.IdleConnTimeout.Milliseconds(),
		MaxConnsPerHost:            cfg.MaxConnsPerHost,
		MaxIdleConns:               cfg.MaxIdleConns,
		MaxIdleConnsPerHost:        cfg.MaxIdleConnsPerHost,
		WriteBufferSize:            cfg.WriteBufferSize,
		Proxy:                      cfg.Proxy,
		SSLCertificateVerification: cfg.SSLCertificateVerification,
		QueryParamsListMode:        cfg.QueryParamsListMode,
		Traces:                     cfg.Traces,
	}
	if a, ok := t.(Activatable); ok {
		active := a.IsActive()
		snap.Active = &active
	}
	if i, ok := t.(Intercepted); ok {
		for _, entry := range i.Interceptors() {
			snap.Interceptors = append(snap.Interceptors, interceptor.Convert(entry.Name, entry.Object))
		}
	}
	return snap
}

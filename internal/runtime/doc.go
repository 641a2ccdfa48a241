/*
Package runtime serves the actuator management endpoints.

# Architecture Overview

Managed objects live in a registry.Registry under unique names. Each bean
endpoint is a view over the objects implementing one capability interface:
executor.Executor, httpclient.Template, interceptor.Interceptor or
listener.Container. The configuration endpoint is backed by a layers.Store,
an ordered list of configuration providers.

Nothing is cached between requests. Every list, get, update and action reads
the registry again, so objects registered after the Service was created show
up immediately.

# Package Structure

## Core Service (service.go)

The Service struct wires together:
  - the chi router mounted at Config.BasePath
  - the operation hooks (stats, metrics, logging, audit, caller hooks)
  - the management and metrics HTTP servers
  - listener container startup and shutdown
  - the application file watcher

## Endpoints (endpoints.go, routes.go)

endpoints.go binds the four capabilities to the generic bean protocol.
routes.go maps HTTP requests onto endpoint operations and errors onto
status codes.

## Middleware (middleware.go)

  - RequestID: keeps or assigns X-Request-ID
  - RealIP: honours X-Forwarded-For and X-Real-IP
  - CORS: configured origins only
  - LogRequests: debug request log
  - Tracer: OpenTelemetry request span
  - Recoverer: panic recovery

## Stats & Monitoring (models.go, resources.go, metrics.go)

  - per-endpoint latency percentiles, throughput and error breakdown
  - process resource usage on the index page
  - Prometheus operation counters and executor pool gauges

## Audit (publisher.go)

Write operations are published as protojson events when Config.AuditTopic
is set.

# Sub-packages

  - config/: management configuration with validation
  - enum/: loose enum parsing
  - errors/: sentinel errors and error types
  - executor/, httpclient/, interceptor/, listener/: managed object kinds
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling utilities
  - layers/: configuration providers and the layered store
  - logging/: logger interface and adapters
  - params/: sparse write-operation parameters
  - registry/: named object registry and the bean protocol
  - transport/: broker connection factory

# Usage Example

	reg := registry.New()
	pool, _ := executor.NewPool(executor.PoolConfig{CorePoolSize: 4, MaxPoolSize: 8}, executor.Settings{}, logger)
	reg.MustRegister("worker-pool", pool)

	svc, err := runtime.NewService(cfg, logger, ctx, runtime.ServiceDependencies{Registry: reg})
	if err != nil {
		return err
	}
	return svc.Start(ctx)
*/
package runtime

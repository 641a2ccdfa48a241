// Package actuator adds a management HTTP API to a Go service. The service
// registers the objects it wants to expose (executors, HTTP clients with their
// interceptors, message listener containers) in a Registry, and the actuator
// endpoints list, inspect, patch and drive the lifecycle of whatever
// capabilities each object implements.
//
// A minimal setup fills Config, registers objects, creates a Service and calls
// Start. The management router is served on Config.ManagementPort under
// Config.BasePath (default /actuator):
//
//	reg := actuator.NewRegistry()
//	pool, _ := actuator.NewPool(actuator.PoolConfig{CorePoolSize: 4, MaxPoolSize: 8}, actuator.ExecutorSettings{}, logger)
//	_ = actuator.Register(reg, "worker-pool", pool)
//	svc, err := actuator.NewService(&actuator.Config{}, logger, ctx, actuator.ServiceDependencies{Registry: reg})
//	...
//	err = svc.Start(ctx)
//
// # Endpoints
//
// The bean endpoints share one protocol: GET lists or gets snapshots, POST or
// PATCH applies a partial update, and POST .../actions/{action} runs a
// lifecycle action on one object or on all of them:
//   - executors: worker pools, schedulers and throttled async executors
//   - httpclients: managed *http.Client templates
//   - interceptors: basic auth, OAuth2, cookie forwarding and request logging
//   - listeners: Watermill-backed listener containers
//
// The configuration endpoint (disabled by default) serves a layered store:
// runtime, dynamic, system, environment, database and application layers in
// priority order. It supports get, search, put, delete, refreshBeans and
// reload.
//
// # Transports
//
// Listener containers and the audit publisher connect through the transport
// registry: channel, kafka, rabbitmq, aws, nats and http.
//
// # Hooks and middleware
//
// Every endpoint operation runs inside an OpenTelemetry span and the
// OperationHooks chain (stats, Prometheus metrics, logging, audit, then the
// caller's hooks). The HTTP middleware chain adds request ids, real IPs,
// CORS, request logging, tracing and panic recovery; custom middleware can be
// added via ServiceDependencies.Middlewares.
package actuator

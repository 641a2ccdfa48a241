package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/actuator/internal/runtime/config"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	idspkg "github.com/drblury/actuator/internal/runtime/ids"
	"github.com/drblury/actuator/internal/runtime/layers"
	"github.com/drblury/actuator/internal/runtime/listener"
	loggingpkg "github.com/drblury/actuator/internal/runtime/logging"
	"github.com/drblury/actuator/internal/runtime/registry"
	transportpkg "github.com/drblury/actuator/internal/runtime/transport"
	"github.com/drblury/actuator/transport"
)

var listenAndServe = func(srv *http.Server) error {
	return srv.ListenAndServe()
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	// Registry holds the managed objects. A new empty registry is used when nil.
	Registry *registry.Registry
	// Layers backs the configuration endpoint. When nil it is built from the
	// config with a refresh bound to the registry's Refreshers.
	Layers *layers.Store
	// TransportFactory builds the audit publisher. Ignored when AuditPublisher is set.
	TransportFactory transportpkg.Factory
	AuditPublisher   message.Publisher
	// Registerer receives the operation metrics. The Prometheus default
	// registerer is used when nil. A Registerer that is also a Gatherer is
	// served on /metrics. Services sharing a Registerer cannot both export
	// executor gauges.
	Registerer                prometheus.Registerer
	Hooks                     OperationHooks
	ErrorClassifier           ErrorClassifier
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
}

// Service serves the management endpoints over the registered objects and
// the configuration store.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	registry  *registry.Registry
	layers    *layers.Store
	endpoints []Endpoint
	stats     map[string]*EndpointStats

	hooks    OperationHooks
	metrics  *OperationMetrics
	gatherer prometheus.Gatherer

	audit       message.Publisher
	auditCloser func() error

	middlewares []Middleware
	handler     http.Handler
	handlerOnce sync.Once

	errorClassifier ErrorClassifier
	resourceTracker *resourceTracker
}

// NewService constructs a Service for the supplied configuration. Register
// objects in deps.Registry before calling Start; the endpoints read the
// registry on every request.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		log = loggingpkg.NopServiceLogger()
	}
	conf.ApplyDefaults()
	log.Info("Creating actuator service",
		loggingpkg.LogFields{
			"base_path":       conf.BasePath,
			"management_port": conf.ManagementPort,
			"config":          conf,
		})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		registry:        deps.Registry,
		layers:          deps.Layers,
		stats:           make(map[string]*EndpointStats),
		errorClassifier: deps.ErrorClassifier,
		resourceTracker: newResourceTracker(),
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.errorClassifier == nil {
		s.errorClassifier = defaultErrorClassifier
	}

	for _, ep := range BeanEndpoints(s.registry) {
		if conf.Endpoints.Enabled(ep.Name()) {
			s.endpoints = append(s.endpoints, ep)
			s.stats[ep.Name()] = newEndpointStats()
		}
	}

	if s.layers == nil {
		store, err := layers.FromConfig(ctx, conf, s.refreshBeans, log)
		if err != nil {
			return nil, fmt.Errorf("build configuration layers: %w", err)
		}
		s.layers = store
	}
	if conf.Endpoints.Enabled(configpkg.EndpointConfiguration) {
		s.stats[configpkg.EndpointConfiguration] = newEndpointStats()
	}

	hooks := s.statsHooks()
	if conf.MetricsEnabled {
		s.metrics = NewOperationMetrics(deps.Registerer, s.registry)
		if err := s.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		hooks = hooks.Merge(s.metrics.Hooks())
		s.gatherer = prometheus.DefaultGatherer
		if g, ok := deps.Registerer.(prometheus.Gatherer); ok {
			s.gatherer = g
		}
	}
	hooks = hooks.Merge(LoggingHooks(log))

	if conf.AuditTopic != "" {
		if err := s.setupAudit(ctx, deps); err != nil {
			return nil, err
		}
		hooks = hooks.Merge(AuditHooks(s.audit, conf.AuditTopic, func(err error) {
			log.Error("Failed to publish audit event", err, loggingpkg.LogFields{"topic": conf.AuditTopic})
		}))
	}
	s.hooks = hooks.Merge(deps.Hooks)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) setupAudit(ctx context.Context, deps ServiceDependencies) error {
	if deps.AuditPublisher != nil {
		s.audit = deps.AuditPublisher
		return nil
	}
	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	binding := transport.Binding{ClientID: idspkg.NewClientID("actuator-audit")}
	t, err := factory.Build(ctx, s.Conf, binding, loggingpkg.NewWatermillAdapter(s.Logger))
	if err != nil {
		return fmt.Errorf("build audit publisher: %w", err)
	}
	if t.Publisher == nil {
		_ = t.Close()
		return errspkg.ErrPublisherRequired
	}
	s.audit = t.Publisher
	s.auditCloser = t.Close
	return nil
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) statsHooks() OperationHooks {
	record := func(op OperationContext, err error) {
		if stats, ok := s.stats[op.Endpoint]; ok {
			stats.record(op, err, s.getErrorClassifier())
		}
	}
	return OperationHooks{
		OnDone:  func(op OperationContext) { record(op, nil) },
		OnError: record,
	}
}

// refreshBeans re-initializes every registered Refresher.
func (s *Service) refreshBeans(ctx context.Context) error {
	return registry.Refresh(ctx, s.registry)
}

// Registry returns the registry the endpoints read.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Layers returns the configuration store.
func (s *Service) Layers() *layers.Store { return s.layers }

// Endpoints returns the enabled bean endpoints.
func (s *Service) Endpoints() []Endpoint { return append([]Endpoint(nil), s.endpoints...) }

// Handler returns the management router. Middlewares registered after the
// first call are ignored.
func (s *Service) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

// Start starts the auto-startup listener containers, serves the management
// endpoints and, when configured, watches the application files. It blocks
// until ctx is cancelled and then shuts everything down.
func (s *Service) Start(ctx context.Context) error {
	if err := listener.StartAll(ctx, s.registry); err != nil {
		s.Logger.Error("Failed to start listener containers", err, nil)
		return errors.Join(err, s.shutdown())
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range s.servers(gctx) {
		s.serve(gctx, g, srv)
	}
	if s.Conf.WatchApplication {
		g.Go(func() error {
			return s.layers.WatchApplication(gctx, s.Logger)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, s.shutdown())
}

func (s *Service) servers(ctx context.Context) []*http.Server {
	newServer := func(port int, handler http.Handler) *http.Server {
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
	}
	servers := []*http.Server{newServer(s.Conf.ManagementPort, s.Handler())}
	if s.metricsOnOwnPort() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metricsHandler())
		servers = append(servers, newServer(s.Conf.MetricsPort, mux))
	}
	return servers
}

func (s *Service) serve(ctx context.Context, g *errgroup.Group, srv *http.Server) {
	g.Go(func() error {
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		if err := listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Conf.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func (s *Service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Conf.ShutdownTimeout)
	defer cancel()
	errs := []error{listener.StopAll(ctx, s.registry)}
	if s.auditCloser != nil {
		errs = append(errs, s.auditCloser())
	}
	return errors.Join(errs...)
}

func (s *Service) metricsOnOwnPort() bool {
	return s.Conf.MetricsEnabled && s.Conf.MetricsPort > 0 && s.Conf.MetricsPort != s.Conf.ManagementPort
}

func (s *Service) metricsOnManagementPort() bool {
	return s.Conf.MetricsEnabled && !s.metricsOnOwnPort()
}

func (s *Service) metricsHandler() http.Handler {
	if s.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return s.errorClassifier
}

func (s *Service) getResourceTracker() *resourceTracker {
	if s.resourceTracker == nil {
		s.resourceTracker = newResourceTracker()
	}
	return s.resourceTracker
}

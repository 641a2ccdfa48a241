package actuator

import (
	runtimepkg "github.com/drblury/actuator/internal/runtime"
	configpkg "github.com/drblury/actuator/internal/runtime/config"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/internal/runtime/httpclient"
	idspkg "github.com/drblury/actuator/internal/runtime/ids"
	"github.com/drblury/actuator/internal/runtime/interceptor"
	jsoncodec "github.com/drblury/actuator/internal/runtime/jsoncodec"
	"github.com/drblury/actuator/internal/runtime/layers"
	"github.com/drblury/actuator/internal/runtime/listener"
	loggingpkg "github.com/drblury/actuator/internal/runtime/logging"
	"github.com/drblury/actuator/internal/runtime/registry"
	transportpkg "github.com/drblury/actuator/internal/runtime/transport"
	newtransport "github.com/drblury/actuator/transport"
)

type (
	Config              = configpkg.Config
	EndpointsConfig     = configpkg.Endpoints
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Endpoint            = runtimepkg.Endpoint
	Registry            = registry.Registry
	Refresher           = registry.Refresher
	TransportFactory    = transportpkg.Factory
	Binding             = newtransport.Binding

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	Middleware             = runtimepkg.Middleware

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Operation hooks
	OperationContext = runtimepkg.OperationContext
	OperationHooks   = runtimepkg.OperationHooks

	// Endpoint stats
	EndpointStatsSnapshot = runtimepkg.EndpointStatsSnapshot
	IndexResponse         = runtimepkg.IndexResponse

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// Managed objects
	Executor           = executor.Executor
	PoolConfig         = executor.PoolConfig
	ExecutorSettings   = executor.Settings
	SchedulePolicy     = executor.SchedulePolicy
	Pool               = executor.Pool
	Scheduler          = executor.Scheduler
	Async              = executor.Async
	HTTPClient         = httpclient.Client
	HTTPClientConfig   = httpclient.Config
	Interceptor        = interceptor.Interceptor
	InterceptorConfig  = interceptor.Config
	InterceptorMessage = interceptor.Message
	Container          = listener.Container
	ListenerConfig     = listener.Config

	// Layered configuration
	ConfigStore = layers.Store
	Layer       = layers.Layer
)

var (
	NewService  = runtimepkg.NewService
	NewRegistry = registry.New
	LoadConfig  = configpkg.Load
	ParseConfig = configpkg.Parse
	Enable      = configpkg.Enable

	BeanEndpoints        = runtimepkg.BeanEndpoints
	ExecutorsEndpoint    = runtimepkg.ExecutorsEndpoint
	HTTPClientsEndpoint  = runtimepkg.HTTPClientsEndpoint
	InterceptorsEndpoint = runtimepkg.InterceptorsEndpoint
	ListenersEndpoint    = runtimepkg.ListenersEndpoint

	DefaultMiddlewares    = runtimepkg.DefaultMiddlewares
	RequestIDMiddleware   = runtimepkg.RequestIDMiddleware
	RealIPMiddleware      = runtimepkg.RealIPMiddleware
	CORSMiddleware        = runtimepkg.CORSMiddleware
	LogRequestsMiddleware = runtimepkg.LogRequestsMiddleware
	TracerMiddleware      = runtimepkg.TracerMiddleware
	RecovererMiddleware   = runtimepkg.RecovererMiddleware
	RequestIDFromContext  = runtimepkg.RequestIDFromContext

	// Operation hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks
	AuditHooks    = runtimepkg.AuditHooks

	// Executors
	NewPool               = executor.NewPool
	NewScheduler          = executor.NewScheduler
	NewAsync              = executor.NewAsync
	DefaultSchedulePolicy = executor.DefaultSchedulePolicy

	// HTTP clients and interceptors
	NewHTTPClient            = httpclient.New
	DefaultHTTPClientConfig  = httpclient.DefaultConfig
	WithInterceptor          = httpclient.WithInterceptor
	WithResolver             = httpclient.WithResolver
	WithHTTPClientLogger     = httpclient.WithLogger
	NewBasicAuthInterceptor  = interceptor.NewBasicAuth
	NewOAuth2Interceptor     = interceptor.NewOAuth2
	NewCookieInterceptor     = interceptor.NewCookieForwarding
	NewLoggingInterceptor    = interceptor.NewLogging
	NewContainer             = listener.NewContainer
	DefaultListenerConfig    = listener.DefaultConfig
	WithContainerFactory     = listener.WithFactory
	WithContainerLogger      = listener.WithLogger
	WithContainerExecutor    = listener.WithTaskExecutor
	WithContainerPhase       = listener.WithPhase
	WithContainerAutoStartup = listener.WithAutoStartup

	// Layered configuration
	NewConfigStore        = layers.NewStore
	ConfigStoreFromConfig = layers.FromConfig
	NewRuntimeLayer       = layers.NewRuntimeLayer
	NewDynamicLayer       = layers.NewDynamicLayer
	NewSystemLayer        = layers.NewSystemLayer
	NewEnvironmentLayer   = layers.NewEnvironmentLayer

	DefaultTransportFactory = transportpkg.DefaultFactory

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrNotFound          = errspkg.ErrNotFound
	ErrNameRequired      = errspkg.ErrNameRequired
	ErrDuplicateName     = errspkg.ErrDuplicateName
	ErrUnknownAction     = errspkg.ErrUnknownAction
	ErrUnknownLayer      = errspkg.ErrUnknownLayer
	ErrUnknownOperator   = errspkg.ErrUnknownOperator
	ErrInvalidParameter  = errspkg.ErrInvalidParameter
	ErrRejected          = errspkg.ErrRejected
	ErrLifecycle         = errspkg.ErrLifecycle
	ErrClientInactive    = errspkg.ErrClientInactive
	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrPublisherRequired = errspkg.ErrPublisherRequired
	ErrTopicRequired     = errspkg.ErrTopicRequired

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewTextServiceLogger = loggingpkg.NewTextServiceLogger
	NopServiceLogger     = loggingpkg.NopServiceLogger
	NewWatermillAdapter  = loggingpkg.NewWatermillAdapter
	ParseLogLevel        = loggingpkg.ParseLevel

	CreateULID = idspkg.CreateULID
)

// Header and metadata keys.
const (
	HeaderRequestID        = runtimepkg.HeaderRequestID
	MetadataKeyRequestID   = runtimepkg.MetadataKeyRequestID
	MetadataKeyEventSchema = runtimepkg.MetadataKeyEventSchema
	MetadataKeyEndpoint    = runtimepkg.MetadataKeyEndpoint
	MetadataKeyOperation   = runtimepkg.MetadataKeyOperation
	AuditEventSchema       = runtimepkg.AuditEventSchema
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone       = runtimepkg.ErrorCategoryNone
	ErrorCategoryNotFound   = runtimepkg.ErrorCategoryNotFound
	ErrorCategoryBadRequest = runtimepkg.ErrorCategoryBadRequest
	ErrorCategoryLifecycle  = runtimepkg.ErrorCategoryLifecycle
	ErrorCategoryOther      = runtimepkg.ErrorCategoryOther
)

// Register adds obj to reg under name. The endpoints pick it up by the
// capabilities it implements.
func Register(reg *Registry, name string, obj any) error {
	return reg.Register(name, obj)
}

// Lookup returns the object registered under name when it implements T.
func Lookup[T any](reg *Registry, name string) (T, bool) {
	return registry.Lookup[T](reg, name)
}

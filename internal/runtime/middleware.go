package runtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	idspkg "github.com/drblury/actuator/internal/runtime/ids"
	loggingpkg "github.com/drblury/actuator/internal/runtime/logging"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// Middleware wraps the management router.
type Middleware func(http.Handler) http.Handler

// MiddlewareBuilder constructs a middleware using the provided service instance.
type MiddlewareBuilder func(*Service) (Middleware, error)

// MiddlewareRegistration captures how a middleware should be registered on the
// management router.
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard middleware chain used by the Service constructor.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		RequestIDMiddleware(),
		RealIPMiddleware(),
		CORSMiddleware(),
		LogRequestsMiddleware(nil),
		TracerMiddleware(),
		RecovererMiddleware(),
	}
}

// RequestIDMiddleware keeps the caller's X-Request-ID or assigns a ULID, and
// echoes it on the response.
func RequestIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "request_id",
		Middleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id := r.Header.Get(HeaderRequestID)
				if id == "" {
					id = idspkg.CreateULID()
				}
				w.Header().Set(HeaderRequestID, id)
				next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
			})
		},
	}
}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RealIPMiddleware sets RemoteAddr from X-Forwarded-For or X-Real-IP.
func RealIPMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "real_ip",
		Middleware: chimiddleware.RealIP,
	}
}

// CORSMiddleware answers preflight requests and sets the CORS headers for the
// configured origins. It is skipped when no origin is configured.
func CORSMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "cors",
		Builder: func(s *Service) (Middleware, error) {
			if s.Conf == nil || len(s.Conf.CORSAllowedOrigins) == 0 {
				return nil, nil
			}
			return s.corsMiddleware(), nil
		},
	}
}

func (s *Service) corsMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed := s.getAllowedCORSOrigin(origin); allowed != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderRequestID)
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil || requestOrigin == "" {
		return ""
	}
	for _, allowed := range s.Conf.CORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

// LogRequestsMiddleware logs every request at debug level.
func LogRequestsMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_requests",
		Builder: func(s *Service) (Middleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log requests middleware requires a logger")
			}
			return logRequests(l), nil
		},
	}
}

func logRequests(logger loggingpkg.ServiceLogger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("Handled actuator request", loggingpkg.LogFields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
				"request_id":  RequestIDFromContext(r.Context()),
			})
		})
	}
}

// TracerMiddleware wraps request handling in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Middleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx, span := otel.Tracer("actuator").Start(r.Context(), "HandleRequest")
				defer span.End()
				span.SetAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
					attribute.String("request.id", RequestIDFromContext(ctx)),
				)
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		},
	}
}

// RecovererMiddleware converts handler panics into 500 responses.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: chimiddleware.Recoverer,
	}
}

// RegisterMiddleware appends the middleware to the router chain. It must be
// called before Handler.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	var mw Middleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.middlewares = append(s.middlewares, mw)
	return nil
}

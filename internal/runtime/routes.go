package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	configpkg "github.com/drblury/actuator/internal/runtime/config"
	"github.com/drblury/actuator/internal/runtime/jsoncodec"
	"github.com/drblury/actuator/internal/runtime/layers"
	loggingpkg "github.com/drblury/actuator/internal/runtime/logging"
	"github.com/drblury/actuator/internal/runtime/params"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("actuator: bad request")

const (
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"

	maxBodyBytes = 1 << 20
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IndexResponse is served at the base path.
type IndexResponse struct {
	Endpoints map[string]IndexEntry `json:"endpoints"`
	Resources ResourceUsage         `json:"resources"`
}

type IndexEntry struct {
	Href  string                `json:"href"`
	Stats EndpointStatsSnapshot `json:"stats"`
}

func (s *Service) routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range s.middlewares {
		r.Use(mw)
	}

	if s.metricsOnManagementPort() {
		r.Handle("/metrics", s.metricsHandler())
	}

	r.Route(s.Conf.BasePath, func(r chi.Router) {
		r.Get("/", s.handleIndex)
		for _, ep := range s.endpoints {
			r.Route("/"+ep.Name(), func(r chi.Router) { s.mountEndpoint(r, ep) })
		}
		if s.layers != nil && s.Conf.Endpoints.Enabled(configpkg.EndpointConfiguration) {
			r.Route("/"+configpkg.EndpointConfiguration, s.mountConfiguration)
		}
	})
	return r
}

func (s *Service) mountEndpoint(r chi.Router, ep Endpoint) {
	name := ep.Name()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		var out any
		err := s.invoke(req, name, OpList, "", "", func(context.Context) error {
			out = ep.List()
			return nil
		})
		s.respond(w, req, out, err)
	})
	r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
		target := chi.URLParam(req, "name")
		var out any
		err := s.invoke(req, name, OpGet, target, "", func(context.Context) error {
			var err error
			out, err = ep.Get(target)
			return err
		})
		s.respond(w, req, out, err)
	})
	update := func(w http.ResponseWriter, req *http.Request) {
		target := chi.URLParam(req, "name")
		err := s.invoke(req, name, OpUpdate, target, "", func(ctx context.Context) error {
			values, err := requestValues(req)
			if err != nil {
				return err
			}
			return ep.Update(ctx, target, values)
		})
		s.respond(w, req, nil, err)
	}
	r.Post("/{name}", update)
	r.Patch("/{name}", update)
	r.Post("/actions/{action}", func(w http.ResponseWriter, req *http.Request) {
		action := chi.URLParam(req, "action")
		err := s.invoke(req, name, OpAction, "", action, func(ctx context.Context) error {
			return ep.ActionAll(ctx, action)
		})
		s.respond(w, req, nil, err)
	})
	r.Post("/{name}/actions/{action}", func(w http.ResponseWriter, req *http.Request) {
		target, action := chi.URLParam(req, "name"), chi.URLParam(req, "action")
		err := s.invoke(req, name, OpAction, target, action, func(ctx context.Context) error {
			return ep.Action(ctx, target, action)
		})
		s.respond(w, req, nil, err)
	})
}

func (s *Service) mountConfiguration(r chi.Router) {
	const name = configpkg.EndpointConfiguration
	store := s.layers

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		selector := req.URL.Query().Get("layer")
		var buf bytes.Buffer
		err := s.invoke(req, name, OpList, selector, "", func(context.Context) error {
			return store.Dump(&buf, selector)
		})
		s.respondText(w, req, buf.Bytes(), err)
	})
	r.Get("/{key}", func(w http.ResponseWriter, req *http.Request) {
		key := chi.URLParam(req, "key")
		query := req.URL.Query()
		var buf bytes.Buffer
		if !query.Has("operator") {
			err := s.invoke(req, name, OpGet, key, "", func(context.Context) error {
				if v, ok := store.Get(key); ok {
					_, err := fmt.Fprintln(&buf, layers.FormatValue(v))
					return err
				}
				return nil
			})
			s.respondText(w, req, buf.Bytes(), err)
			return
		}
		err := s.invoke(req, name, OpSearch, key, "", func(context.Context) error {
			op, err := layers.ParseOperator(query.Get("operator"))
			if err != nil {
				return err
			}
			return layers.WriteEntries(&buf, store.Search(key, op))
		})
		s.respondText(w, req, buf.Bytes(), err)
	})
	r.Post("/{layer}", func(w http.ResponseWriter, req *http.Request) {
		layer := chi.URLParam(req, "layer")
		err := s.invoke(req, name, OpPut, layer, "", func(context.Context) error {
			values, err := requestValues(req)
			if err != nil {
				return err
			}
			key := params.NewReader(values).String("name")
			if key == nil {
				return store.Put(layer, "", nil)
			}
			return store.Put(layer, *key, values["value"])
		})
		s.respond(w, req, nil, err)
	})
	r.Post("/actions/{action}", func(w http.ResponseWriter, req *http.Request) {
		action := chi.URLParam(req, "action")
		err := s.invoke(req, name, OpAction, "", action, func(ctx context.Context) error {
			a, err := layers.ParseAction(action)
			if err != nil {
				return err
			}
			return store.Dispatch(ctx, a)
		})
		s.respond(w, req, nil, err)
	})
	r.Delete("/{layer}", func(w http.ResponseWriter, req *http.Request) {
		layer := chi.URLParam(req, "layer")
		err := s.invoke(req, name, OpDelete, layer, "", func(ctx context.Context) error {
			return store.DeleteLayer(ctx, layer)
		})
		s.respond(w, req, nil, err)
	})
	r.Delete("/{layer}/{key}", func(w http.ResponseWriter, req *http.Request) {
		layer, key := chi.URLParam(req, "layer"), chi.URLParam(req, "key")
		err := s.invoke(req, name, OpDelete, layer+"/"+key, "", func(context.Context) error {
			return store.DeleteKey(layer, key)
		})
		s.respond(w, req, nil, err)
	})
}

func (s *Service) handleIndex(w http.ResponseWriter, req *http.Request) {
	index := IndexResponse{
		Endpoints: make(map[string]IndexEntry, len(s.stats)),
		Resources: s.getResourceTracker().Snapshot(),
	}
	names := make([]string, 0, len(s.stats))
	for name := range s.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		index.Endpoints[name] = IndexEntry{
			Href:  s.Conf.BasePath + "/" + name,
			Stats: s.stats[name].Snapshot(),
		}
	}
	s.writeJSON(w, http.StatusOK, index)
}

// invoke runs one endpoint operation inside a span and the operation hooks.
func (s *Service) invoke(req *http.Request, endpoint, operation, target, action string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("actuator").Start(req.Context(), endpoint+"."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("actuator.endpoint", endpoint),
		attribute.String("actuator.operation", operation),
		attribute.String("actuator.target", target),
		attribute.String("actuator.action", action),
	)

	op := OperationContext{
		Endpoint:  endpoint,
		Operation: operation,
		Target:    target,
		Action:    action,
		RequestID: RequestIDFromContext(ctx),
		Context:   ctx,
	}
	err := s.hooks.run(op, func() error { return fn(ctx) })
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// respond writes out as JSON, or 204 when out is nil.
func (s *Service) respond(w http.ResponseWriter, req *http.Request, out any, err error) {
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// respondText writes body as text/plain, or 204 when it is empty.
func (s *Service) respondText(w http.ResponseWriter, req *http.Request, body []byte, err error) {
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	if len(body) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.Logger.Error("Failed to write response", err, nil)
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		s.Logger.Error("Failed to encode response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.Logger.Error("Failed to write response", err, nil)
	}
}

func (s *Service) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := StatusFor(s.getErrorClassifier()(err))
	if status >= http.StatusInternalServerError {
		s.Logger.Error("Actuator request failed", err, loggingpkg.LogFields{
			"path":       req.URL.Path,
			"request_id": RequestIDFromContext(req.Context()),
		})
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// StatusFor maps an error category to its HTTP status.
func StatusFor(category ErrorCategory) int {
	switch category {
	case ErrorCategoryNone:
		return http.StatusOK
	case ErrorCategoryNotFound:
		return http.StatusNotFound
	case ErrorCategoryBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// requestValues reads the operation arguments. A JSON object body wins;
// otherwise the form and query parameters are used.
func requestValues(req *http.Request) (params.Values, error) {
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType == contentTypeJSON {
		obj, err := jsoncodec.DecodeObject(io.LimitReader(req.Body, maxBodyBytes))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return params.Values{}, nil
			}
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return params.Values(obj), nil
	}
	req.Body = http.MaxBytesReader(nil, req.Body, maxBodyBytes)
	if err := req.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return params.FromForm(req.Form), nil
}

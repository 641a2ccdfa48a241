package interceptor

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/drblury/actuator/internal/runtime/logging"
)

// Logging traces requests and responses through a ServiceLogger at trace
// level.
type Logging struct {
	logger logging.ServiceLogger

	mu       sync.RWMutex
	request  Message
	response Message
}

// NewLogging returns a trace interceptor. A nil logger discards traces.
func NewLogging(logger logging.ServiceLogger, request, response Message) *Logging {
	if logger == nil {
		logger = logging.NopServiceLogger()
	}
	return &Logging{logger: logger, request: request, response: response}
}

func (l *Logging) InterceptorKind() Kind { return KindLogging }

// Traces returns the per-direction settings.
func (l *Logging) Traces() (Message, Message) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.request, l.response
}

// SetTraces replaces the per-direction settings.
func (l *Logging) SetTraces(request, response Message) {
	l.mu.Lock()
	l.request, l.response = request, response
	l.mu.Unlock()
}

func (l *Logging) Wrap(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		reqMsg, respMsg := l.Traces()
		if reqMsg.Active {
			fields := logging.LogFields{"method": req.Method, "url": req.URL.String()}
			if reqMsg.Headers {
				fields["headers"] = redactHeaders(req.Header)
			}
			if reqMsg.Body && req.Body != nil && req.Body != http.NoBody {
				body, err := io.ReadAll(req.Body)
				_ = req.Body.Close()
				if err != nil {
					return nil, err
				}
				req.Body = io.NopCloser(bytes.NewReader(body))
				fields["body"] = truncate(body, reqMsg.MaxLength)
			}
			l.logger.Trace("HTTP client request", fields)
		}

		resp, err := next.RoundTrip(req)
		if err != nil || !respMsg.Active {
			return resp, err
		}
		fields := logging.LogFields{"method": req.Method, "url": req.URL.String(), "status": resp.StatusCode}
		if respMsg.Headers {
			fields["headers"] = redactHeaders(resp.Header)
		}
		if respMsg.Body && resp.Body != nil {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			resp.Body = io.NopCloser(bytes.NewReader(body))
			fields["body"] = truncate(body, respMsg.MaxLength)
		}
		l.logger.Trace("HTTP client response", fields)
		return resp, nil
	})
}

func truncate(body []byte, maxLength int) string {
	if maxLength > 0 && len(body) > maxLength {
		return string(body[:maxLength]) + "..."
	}
	return string(body)
}

var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"Set-Cookie":          {},
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if _, secret := sensitiveHeaders[http.CanonicalHeaderKey(k)]; secret {
			out[k] = redacted
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}

package runtime

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/actuator/internal/runtime/config"
	loggingpkg "github.com/drblury/actuator/internal/runtime/logging"
)

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type recordingLogger struct {
	mu      sync.Mutex
	entries *[]logEntry
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: &[]logEntry{}}
}

func (l *recordingLogger) add(level, msg string, err error, fields loggingpkg.LogFields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err, fields: fields})
}

func (l *recordingLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return l }
func (l *recordingLogger) Debug(msg string, f loggingpkg.LogFields)            { l.add("debug", msg, nil, f) }
func (l *recordingLogger) Info(msg string, f loggingpkg.LogFields)             { l.add("info", msg, nil, f) }
func (l *recordingLogger) Trace(msg string, f loggingpkg.LogFields)            { l.add("trace", msg, nil, f) }
func (l *recordingLogger) Error(msg string, err error, f loggingpkg.LogFields) {
	l.add("error", msg, err, f)
}

func (l *recordingLogger) Entries() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), *l.entries...)
}

// fakeContainer is a listener with nothing behind it but a running flag.
type fakeContainer struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	startErr error
}

func (c *fakeContainer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *fakeContainer) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.running = true
	c.starts++
	return nil
}

func (c *fakeContainer) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.stops++
	return nil
}

func (c *fakeContainer) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}

type countingRefresher struct {
	mu sync.Mutex
	n  int
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return nil
}

func (r *countingRefresher) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func testConfig() *configpkg.Config {
	return &configpkg.Config{ManagementPort: 18081}
}

func newTestServer(t *testing.T, cfg *configpkg.Config, deps ServiceDependencies) (*Service, *httptest.Server) {
	t.Helper()
	svc, err := NewService(cfg, loggingpkg.NopServiceLogger(), context.Background(), deps)
	require.NoError(t, err)
	return svc, httptestServer(t, svc)
}

func httptestServer(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}

type response struct {
	status int
	header http.Header
	body   string
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, contentType, body string) response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: string(data)}
}

func get(t *testing.T, srv *httptest.Server, path string) response {
	return doRequest(t, srv, http.MethodGet, path, "", "")
}

func postJSON(t *testing.T, srv *httptest.Server, path, body string) response {
	return doRequest(t, srv, http.MethodPost, path, "application/json", body)
}

func postForm(t *testing.T, srv *httptest.Server, path, body string) response {
	return doRequest(t, srv, http.MethodPost, path, "application/x-www-form-urlencoded", body)
}

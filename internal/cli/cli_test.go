package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runtimepkg "github.com/drblury/actuator/internal/runtime"
	configpkg "github.com/drblury/actuator/internal/runtime/config"
	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/internal/runtime/layers"
	"github.com/drblury/actuator/internal/runtime/registry"
)

func newActuator(t *testing.T) *httptest.Server {
	t.Helper()
	reg := registry.New()
	pool, err := executor.NewPool(executor.PoolConfig{CorePoolSize: 2, MaxPoolSize: 4}, executor.Settings{}, nil)
	require.NoError(t, err)
	reg.MustRegister("pool", pool)
	reg.MustRegister("async", executor.NewAsync(1, executor.Settings{}))

	cfg := &configpkg.Config{ManagementPort: 18082}
	cfg.Endpoints.Configuration = configpkg.Enable(true)
	svc, err := runtimepkg.NewService(cfg, nil, context.Background(), runtimepkg.ServiceDependencies{
		Registry: reg,
		Layers:   layers.NewStore(nil, layers.NewRuntimeLayer()),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand("test", &options{httpClient: srv.Client()})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--url", srv.URL + "/actuator", "--no-color"}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand("1.2.3")
	assert.Equal(t, "actuatorctl", root.Use)
	assert.True(t, root.SilenceUsage)
	assert.Equal(t, "1.2.3", root.Version)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "actuatorctl version 1.2.3\n", out.String())
}

func TestListAndGet(t *testing.T) {
	srv := newActuator(t)

	out, err := run(t, srv, "list", "executors")
	require.NoError(t, err)
	assert.Contains(t, out, "pool.maxPoolSize")
	assert.Contains(t, out, "throttle.concurrencyLimit")
	assert.Contains(t, out, "async")

	out, err = run(t, srv, "get", "executors", "pool", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"maxPoolSize": 4`)

	out, err = run(t, srv, "list", "listeners")
	require.NoError(t, err)
	assert.Contains(t, out, "No objects registered")
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	srv := newActuator(t)

	_, err := run(t, srv, "get", "executors", "missing")
	require.Error(t, err)
	assert.True(t, NotFound(err))
	assert.Equal(t, ExitCodeNotFound, getExitCode(err))
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestUpdateAndAction(t *testing.T) {
	srv := newActuator(t)

	out, err := run(t, srv, "update", "executors", "async", "concurrencyLimit=3")
	require.NoError(t, err)
	assert.Contains(t, out, "updated executors/async")

	out, err = run(t, srv, "get", "executors", "async")
	require.NoError(t, err)
	assert.Regexp(t, `throttle\.concurrencyLimit\s*│\s*3`, out)

	_, err = run(t, srv, "update", "executors", "pool", "maxPoolSize=many")
	require.Error(t, err)
	assert.Equal(t, ExitCodeError, getExitCode(err))

	_, err = run(t, srv, "update", "executors", "pool", "maxPoolSize")
	assert.ErrorContains(t, err, "want key=value")

	out, err = run(t, srv, "action", "executors", "pool", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "purge executors/pool")

	_, err = run(t, srv, "action", "executors", "pool", "explode")
	assert.ErrorContains(t, err, "400")
}

func TestIndex(t *testing.T) {
	srv := newActuator(t)
	_, err := run(t, srv, "list", "executors")
	require.NoError(t, err)

	out, err := run(t, srv, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "/actuator/executors")
	assert.Contains(t, out, "configuration")
}

func TestConfigCommands(t *testing.T) {
	srv := newActuator(t)

	out, err := run(t, srv, "config", "put", "app.name", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "set app.name in dynamic")

	out, err = run(t, srv, "config", "get", "app.name")
	require.NoError(t, err)
	assert.Equal(t, "demo\n", out)

	out, err = run(t, srv, "config", "search", "app.", "--operator", "startsWith")
	require.NoError(t, err)
	assert.Equal(t, "app.name=demo\n", out)

	out, err = run(t, srv, "config", "dump", "dynamic")
	require.NoError(t, err)
	assert.Equal(t, "app.name=demo\n", out)

	out, err = run(t, srv, "config", "action", "reload")
	require.NoError(t, err)
	assert.Contains(t, out, "reload done")

	_, err = run(t, srv, "config", "delete", "dynamic", "app.name")
	require.NoError(t, err)
	_, err = run(t, srv, "config", "get", "app.name")
	require.ErrorIs(t, err, errNoValue)
	assert.Equal(t, ExitCodeNotFound, getExitCode(err))

	_, err = run(t, srv, "config", "search", "x", "--operator", "near")
	assert.ErrorContains(t, err, "400")
}

func TestUnsupportedOutput(t *testing.T) {
	srv := newActuator(t)
	_, err := run(t, srv, "list", "executors", "-o", "yaml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{"a=1", "list=x", "list=y", "empty="})
	require.NoError(t, err)
	assert.Equal(t, "1", values.Get("a"))
	assert.Equal(t, []string{"x", "y"}, values["list"])
	assert.True(t, values.Has("empty"))

	_, err = parseAssignments([]string{"=v"})
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	props := flatten(map[string]any{
		"b": map[string]any{"y": 2.0, "x": "s"},
		"a": []any{"p", "q"},
		"c": nil,
		"d": map[string]any{},
		"e": 1.5,
	})
	keys := make([]string, len(props))
	for i, p := range props {
		keys[i] = p.key + "=" + p.value
	}
	assert.Equal(t, "a=p, q,b.x=s,b.y=2,c=,d={},e=1.5", strings.Join(keys, ","))
}

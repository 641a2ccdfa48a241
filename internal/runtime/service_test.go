package runtime

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/actuator/internal/runtime/config"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/internal/runtime/jsoncodec"
	"github.com/drblury/actuator/internal/runtime/layers"
	loggingpkg "github.com/drblury/actuator/internal/runtime/logging"
	"github.com/drblury/actuator/internal/runtime/registry"
	transportpkg "github.com/drblury/actuator/internal/runtime/transport"
	"github.com/drblury/actuator/transport"
)

func TestNewServiceRequiresConfig(t *testing.T) {
	_, err := NewService(nil, nil, context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	cfg := &configpkg.Config{}
	svc, err := NewService(cfg, nil, context.Background(), ServiceDependencies{})
	require.NoError(t, err)
	assert.Equal(t, configpkg.DefaultBasePath, svc.Conf.BasePath)
	assert.Equal(t, configpkg.DefaultManagementPort, svc.Conf.ManagementPort)
	assert.NotNil(t, svc.Registry())
	assert.NotNil(t, svc.Layers())
	assert.Len(t, svc.Endpoints(), 4)
}

func TestNewServiceSkipsDisabledEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoints.Executors = configpkg.Enable(false)
	_, srv := newTestServer(t, cfg, ServiceDependencies{})

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/actuator/executors").status)
	assert.Equal(t, http.StatusOK, get(t, srv, "/actuator/listeners").status)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/actuator/configuration").status)
}

func TestIndexReportsEndpointStats(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("async", executor.NewAsync(2, executor.Settings{}))
	_, srv := newTestServer(t, testConfig(), ServiceDependencies{Registry: reg})

	require.Equal(t, http.StatusOK, get(t, srv, "/actuator/executors").status)
	require.Equal(t, http.StatusNotFound, get(t, srv, "/actuator/executors/missing").status)

	resp := get(t, srv, "/actuator")
	require.Equal(t, http.StatusOK, resp.status)

	var index IndexResponse
	require.NoError(t, jsoncodec.Unmarshal([]byte(resp.body), &index))
	assert.Len(t, index.Endpoints, 4)
	stats := index.Endpoints["executors"].Stats
	assert.Equal(t, uint64(2), stats.Invocations)
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Equal(t, uint64(1), stats.Errors.NotFound)
	assert.Equal(t, "/actuator/executors", index.Endpoints["executors"].Href)
	assert.Positive(t, index.Resources.Goroutines)
}

func TestExecutorsEndpoint(t *testing.T) {
	reg := registry.New()
	async := executor.NewAsync(2, executor.Settings{})
	reg.MustRegister("async", async)
	_, srv := newTestServer(t, testConfig(), ServiceDependencies{Registry: reg})

	t.Run("list", func(t *testing.T) {
		resp := get(t, srv, "/actuator/executors")
		require.Equal(t, http.StatusOK, resp.status)
		assert.Equal(t, "application/json", resp.header.Get("Content-Type"))

		var list map[string]executor.Snapshot
		require.NoError(t, jsoncodec.Unmarshal([]byte(resp.body), &list))
		require.Contains(t, list, "async")
		assert.Equal(t, executor.KindAsync, list["async"].Kind)
		require.NotNil(t, list["async"].Throttle)
		assert.Equal(t, 2, list["async"].Throttle.ConcurrencyLimit)
	})

	t.Run("get unknown", func(t *testing.T) {
		resp := get(t, srv, "/actuator/executors/nope")
		assert.Equal(t, http.StatusNotFound, resp.status)
		assert.Contains(t, resp.body, `"error"`)
	})

	t.Run("update with json", func(t *testing.T) {
		resp := postJSON(t, srv, "/actuator/executors/async", `{"concurrencyLimit": 5}`)
		assert.Equal(t, http.StatusNoContent, resp.status)
		assert.Equal(t, 5, async.ConcurrencyLimit())
	})

	t.Run("update with form", func(t *testing.T) {
		resp := postForm(t, srv, "/actuator/executors/async", "concurrencyLimit=3")
		assert.Equal(t, http.StatusNoContent, resp.status)
		assert.Equal(t, 3, async.ConcurrencyLimit())
	})

	t.Run("update with patch method", func(t *testing.T) {
		resp := doRequest(t, srv, http.MethodPatch, "/actuator/executors/async", "application/json", `{"concurrencyLimit": 4}`)
		assert.Equal(t, http.StatusNoContent, resp.status)
		assert.Equal(t, 4, async.ConcurrencyLimit())
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		before := get(t, srv, "/actuator/executors/async").body
		resp := postJSON(t, srv, "/actuator/executors/async", `{}`)
		assert.Equal(t, http.StatusNoContent, resp.status)
		assert.Equal(t, before, get(t, srv, "/actuator/executors/async").body)
	})

	t.Run("bad values", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, postJSON(t, srv, "/actuator/executors/async", `{"concurrencyLimit": "many"}`).status)
		assert.Equal(t, http.StatusBadRequest, postJSON(t, srv, "/actuator/executors/async", `{not json`).status)
	})

	t.Run("update unknown", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, postJSON(t, srv, "/actuator/executors/nope", `{}`).status)
	})

	t.Run("actions", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/executors/async/actions/purge", "").status)
		assert.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/executors/actions/SHUTDOWN_NOW", "").status)
		assert.Equal(t, http.StatusBadRequest, postJSON(t, srv, "/actuator/executors/async/actions/explode", "").status)
		assert.Equal(t, http.StatusNotFound, postJSON(t, srv, "/actuator/executors/nope/actions/purge", "").status)
	})
}

func TestFanOutOverEmptySet(t *testing.T) {
	_, srv := newTestServer(t, testConfig(), ServiceDependencies{})

	assert.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/listeners/actions/start", "").status)
	assert.Equal(t, http.StatusBadRequest, postJSON(t, srv, "/actuator/listeners/actions/bogus", "").status)
	assert.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/interceptors/actions/refresh", "").status)
	assert.Equal(t, http.StatusBadRequest, postJSON(t, srv, "/actuator/httpclients/actions/bogus", "").status)

	resp := get(t, srv, "/actuator/listeners")
	assert.Equal(t, http.StatusOK, resp.status)
	assert.JSONEq(t, `{}`, resp.body)
}

func TestListenersEndpointActions(t *testing.T) {
	reg := registry.New()
	c := &fakeContainer{}
	reg.MustRegister("orders", c)
	_, srv := newTestServer(t, testConfig(), ServiceDependencies{Registry: reg})

	require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/listeners/orders/actions/start", "").status)
	assert.True(t, c.IsRunning())

	require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/listeners/orders/actions/start", "").status)
	starts, stops := c.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/listeners/orders/actions/restart", "").status)
	starts, stops = c.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
	assert.True(t, c.IsRunning())

	require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/listeners/actions/stop", "").status)
	assert.False(t, c.IsRunning())

	resp := get(t, srv, "/actuator/listeners/orders")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, `"kind":"base"`)
	assert.Contains(t, resp.body, `"running":false`)
}

func TestLifecycleFailureIsServerError(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("broken", &fakeContainer{startErr: errors.New("broker down")})
	_, srv := newTestServer(t, testConfig(), ServiceDependencies{Registry: reg})

	resp := postJSON(t, srv, "/actuator/listeners/broken/actions/start", "")
	assert.Equal(t, http.StatusInternalServerError, resp.status)
	assert.Contains(t, resp.body, "broker down")
}

func configurationEnabled() *configpkg.Config {
	cfg := testConfig()
	cfg.Endpoints.Configuration = configpkg.Enable(true)
	return cfg
}

func TestConfigurationEndpoint(t *testing.T) {
	refresher := &countingRefresher{}
	store := layers.NewStore(refresher.Refresh, layers.NewRuntimeLayer())
	_, srv := newTestServer(t, configurationEnabled(), ServiceDependencies{Layers: store})

	t.Run("empty layer dump", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, get(t, srv, "/actuator/configuration?layer=dynamic").status)
	})

	t.Run("put then dump", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, postForm(t, srv, "/actuator/configuration/dynamic", "name=a.b&value=v").status)
		resp := get(t, srv, "/actuator/configuration?layer=dynamic")
		require.Equal(t, http.StatusOK, resp.status)
		assert.Equal(t, "a.b=v\n", resp.body)
		assert.True(t, strings.HasPrefix(resp.header.Get("Content-Type"), "text/plain"))
	})

	t.Run("put json", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/configuration/dynamic", `{"name":"a.n","value":42}`).status)
		assert.Equal(t, "42\n", get(t, srv, "/actuator/configuration/a.n").body)
	})

	t.Run("full dump has banners", func(t *testing.T) {
		resp := get(t, srv, "/actuator/configuration")
		require.Equal(t, http.StatusOK, resp.status)
		assert.Contains(t, resp.body, "**********************************   runtime   **********************************\n")
		assert.Contains(t, resp.body, "**********************************   dynamic   **********************************\na.b=v\n")
	})

	t.Run("get and search", func(t *testing.T) {
		assert.Equal(t, "v\n", get(t, srv, "/actuator/configuration/a.b").body)
		assert.Equal(t, http.StatusNoContent, get(t, srv, "/actuator/configuration/missing").status)

		resp := get(t, srv, "/actuator/configuration/a.?operator=startsWith")
		require.Equal(t, http.StatusOK, resp.status)
		assert.Equal(t, "a.b=v\na.n=42\n", resp.body)

		assert.Equal(t, http.StatusNoContent, get(t, srv, "/actuator/configuration/zzz?operator=contains").status)
		assert.Equal(t, http.StatusBadRequest, get(t, srv, "/actuator/configuration/a?operator=near").status)
	})

	t.Run("runtime layer is not searched", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, get(t, srv, "/actuator/configuration/goroutines").status)
	})

	t.Run("bad layers and names", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, postForm(t, srv, "/actuator/configuration/galaxy", "name=x&value=y").status)
		assert.Equal(t, http.StatusBadRequest, postForm(t, srv, "/actuator/configuration/dynamic", "value=y").status)
		assert.Equal(t, http.StatusBadRequest, get(t, srv, "/actuator/configuration?layer=galaxy").status)
		assert.Equal(t, http.StatusNoContent, postForm(t, srv, "/actuator/configuration/system", "name=x&value=y").status)
	})

	t.Run("put without value is undefined", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, postForm(t, srv, "/actuator/configuration/dynamic", "name=a.none").status)
		resp := get(t, srv, "/actuator/configuration/a.none")
		assert.Equal(t, http.StatusNoContent, resp.status)
		assert.Empty(t, resp.body)
		assert.Contains(t, get(t, srv, "/actuator/configuration?layer=dynamic").body, "a.none=\n")
		require.Equal(t, http.StatusNoContent, doRequest(t, srv, http.MethodDelete, "/actuator/configuration/dynamic/a.none", "", "").status)
	})

	t.Run("delete key", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, doRequest(t, srv, http.MethodDelete, "/actuator/configuration/dynamic/a.n", "", "").status)
		assert.Equal(t, http.StatusNoContent, get(t, srv, "/actuator/configuration/a.n").status)
	})

	t.Run("actions", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/configuration/actions/refreshBeans", "").status)
		assert.Equal(t, 1, refresher.Count())
		assert.Equal(t, http.StatusBadRequest, postJSON(t, srv, "/actuator/configuration/actions/explode", "").status)
	})

	t.Run("delete layer refreshes", func(t *testing.T) {
		before := refresher.Count()
		require.Equal(t, http.StatusNoContent, doRequest(t, srv, http.MethodDelete, "/actuator/configuration/dynamic", "", "").status)
		assert.Equal(t, before+1, refresher.Count())
		assert.Equal(t, http.StatusNoContent, get(t, srv, "/actuator/configuration/a.b").status)

		require.Equal(t, http.StatusNoContent, doRequest(t, srv, http.MethodDelete, "/actuator/configuration/dynamic", "", "").status)
		assert.Equal(t, before+1, refresher.Count())
	})
}

func TestConfigurationRefreshReachesRegistry(t *testing.T) {
	reg := registry.New()
	refresher := &countingRefresher{}
	reg.MustRegister("client", refresher)
	_, srv := newTestServer(t, configurationEnabled(), ServiceDependencies{Registry: reg})

	require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/configuration/actions/refreshBeans", "").status)
	assert.Equal(t, 1, refresher.Count())

	require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/configuration/actions/reload", "").status)
	assert.Equal(t, 2, refresher.Count())
}

func TestMetricsOnManagementPort(t *testing.T) {
	reg := registry.New()
	pool, err := executor.NewPool(executor.PoolConfig{CorePoolSize: 1, MaxPoolSize: 2}, executor.Settings{}, nil)
	require.NoError(t, err)
	reg.MustRegister("pool", pool)

	cfg := testConfig()
	cfg.MetricsEnabled = true
	_, srv := newTestServer(t, cfg, ServiceDependencies{Registry: reg, Registerer: prometheus.NewRegistry()})

	require.Equal(t, http.StatusOK, get(t, srv, "/actuator/executors").status)

	resp := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, `actuator_operations_total{endpoint="executors",operation="list",outcome="success"} 1`)
	assert.Contains(t, resp.body, `actuator_executor_pool_size{executor="pool",kind="pool"}`)
}

func TestAuditFactoryFailure(t *testing.T) {
	cfg := testConfig()
	cfg.AuditTopic = "audit"
	factory := transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, transport.Binding, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{}, errors.New("no broker")
	})

	_, err := NewService(cfg, nil, context.Background(), ServiceDependencies{TransportFactory: factory})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no broker")
}

func TestCallerHooksRunAfterBuiltIns(t *testing.T) {
	var ops []string
	hooks := OperationHooks{OnDone: func(op OperationContext) { ops = append(ops, op.Endpoint+"."+op.Operation) }}
	logger := newRecordingLogger()

	svc, err := NewService(testConfig(), logger, context.Background(), ServiceDependencies{Hooks: hooks})
	require.NoError(t, err)
	srv := httptestServer(t, svc)

	require.Equal(t, http.StatusNoContent, postJSON(t, srv, "/actuator/executors/actions/purge", "").status)
	assert.Equal(t, []string{"executors.action"}, ops)

	var infos int
	for _, e := range logger.Entries() {
		if e.level == "info" && e.msg == "Actuator operation completed" {
			infos++
			assert.Equal(t, "purge", e.fields["action"])
		}
	}
	assert.Equal(t, 1, infos)
}

func TestStartRunsListenersAndShutsDown(t *testing.T) {
	var ln net.Listener
	ready := make(chan struct{})
	orig := listenAndServe
	listenAndServe = func(srv *http.Server) error {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		ln = l
		close(ready)
		return srv.Serve(l)
	}
	t.Cleanup(func() { listenAndServe = orig })

	reg := registry.New()
	c := &fakeContainer{}
	reg.MustRegister("orders", c)

	svc, err := NewService(testConfig(), loggingpkg.NopServiceLogger(), context.Background(), ServiceDependencies{Registry: reg})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	assert.True(t, c.IsRunning())

	resp, err := http.Get("http://" + ln.Addr().String() + "/actuator/listeners")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.False(t, c.IsRunning())
}

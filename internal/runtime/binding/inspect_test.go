package binding

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/trust/internal/runtime/config"
	"github.com/drblury/trust/internal/runtime/execution"
	jsoncodec "github.com/drblury/trust/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
	"github.com/drblury/trust/internal/runtime/reqrep"
)

func newInspectGateway(t *testing.T, conf *configpkg.Config) (*Gateway, *execution.Registry) {
	t.Helper()
	reg := metricspkg.NewPrometheusRegistry()
	executors := execution.NewRegistry(execution.WithLogger(loggingpkg.Nop()), execution.WithMetrics(reg))
	g, err := NewGateway(conf, loggingpkg.Nop(), Dependencies{Metrics: reg, Executors: executors})
	require.NoError(t, err)
	return g, executors
}

func TestExecutorsSnapshot(t *testing.T) {
	g, executors := newInspectGateway(t, nil)
	builder := execution.NewExecutorBuilder(execution.NewExecutorID())
	builder.PoolSize = 3
	builder.NamePrefix = "workers"
	_, err := executors.Register(builder)
	require.NoError(t, err)

	infos := g.Executors()
	require.Len(t, infos, 2)
	assert.True(t, infos[0].Global)
	assert.Equal(t, execution.GlobalExecutorID.String(), infos[0].ID)
	assert.Equal(t, ExecutorInfo{
		ID:             builder.ID.String(),
		Name:           "workers",
		ThreadPoolSize: 3,
	}, infos[1])
}

func TestInspectHandlerServesBindings(t *testing.T) {
	g, _ := newInspectGateway(t, &configpkg.Config{InspectCORSAllowedOrigins: []string{"https://ops.example.com"}})
	client := startService(t, metricspkg.NewPrometheusRegistry(), reqrep.ProcessorFunc[string, string](upper))
	require.NoError(t, Bind(g, Config{Name: "upper", ConsumeTopic: "requests", PublishTopic: "replies"}, client, JSON[string, string]()))

	req := httptest.NewRequest(http.MethodGet, "/api/bindings", nil)
	req.Header.Set("Origin", "https://OPS.example.com")
	rec := httptest.NewRecorder()
	g.inspectHandler(func() any { return g.Bindings() }).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jsoncodec.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "https://OPS.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	var got []map[string]string
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "upper", got[0]["name"])
	assert.Equal(t, client.ID().String(), got[0]["reqrep_id"])
}

func TestInspectHandlerPreflight(t *testing.T) {
	g, _ := newInspectGateway(t, &configpkg.Config{InspectCORSAllowedOrigins: []string{"*"}})

	rec := httptest.NewRecorder()
	g.inspectHandler(func() any { return nil }).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/executors", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestInspectHandlersRegisteredWhenEnabled(t *testing.T) {
	g, _ := newInspectGateway(t, &configpkg.Config{InspectEnabled: true})
	_, ok := g.httpServers[defaultInspectPort]
	assert.True(t, ok)

	disabled, _ := newInspectGateway(t, nil)
	assert.Empty(t, disabled.httpServers)
}

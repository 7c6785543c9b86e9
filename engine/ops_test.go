package engine

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/health"
	"github.com/c360/logstreams/metric"
)

// startOpsServer brings up an ops server on an ephemeral port and tears it
// down with the test
func startOpsServer(t *testing.T, monitor *health.Monitor, metricsHandler http.Handler) *OpsServer {
	t.Helper()

	ops := NewOpsServer("127.0.0.1:0", monitor, metricsHandler, testLogger())
	require.NoError(t, ops.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ops.Stop(ctx)
	})
	return ops
}

func getStatus(t *testing.T, addr, path string) (int, []byte) {
	t.Helper()

	resp, err := http.Get("http://" + addr + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestOpsServer_Healthz(t *testing.T) {
	monitor := health.NewMonitor()
	monitor.UpdateHealthy("src-a", "running")
	monitor.UpdateHealthy("src-b", "running")

	ops := startOpsServer(t, monitor, nil)

	code, body := getStatus(t, ops.Addr(), "/healthz")
	assert.Equal(t, http.StatusOK, code)

	var status health.Status
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "logstreams", status.Component)
	assert.True(t, status.Healthy)
	assert.Len(t, status.SubStatuses, 2)
}

func TestOpsServer_HealthzUnhealthy(t *testing.T) {
	monitor := health.NewMonitor()
	monitor.UpdateHealthy("src-a", "running")
	monitor.UpdateUnhealthy("src-b", "listener gone")

	ops := startOpsServer(t, monitor, nil)

	code, body := getStatus(t, ops.Addr(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	var status health.Status
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.IsUnhealthy())
}

func TestOpsServer_HealthzDegradedStaysUp(t *testing.T) {
	monitor := health.NewMonitor()
	monitor.UpdateDegraded("src-a", "reconnecting")

	ops := startOpsServer(t, monitor, nil)

	// Degraded keeps answering 200 so orchestrators don't restart a node
	// that is still ingesting.
	code, body := getStatus(t, ops.Addr(), "/healthz")
	assert.Equal(t, http.StatusOK, code)

	var status health.Status
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.IsDegraded())
}

func TestOpsServer_ReadyzGate(t *testing.T) {
	ops := startOpsServer(t, health.NewMonitor(), nil)

	code, _ := getStatus(t, ops.Addr(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready until flipped")

	ops.SetReady(true)
	code, body := getStatus(t, ops.Addr(), "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", string(body))

	ops.SetReady(false)
	code, _ = getStatus(t, ops.Addr(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestOpsServer_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	registry.CoreMetrics().RecordComponentStatus("src-a", 2)

	ops := startOpsServer(t, health.NewMonitor(), registry.Handler())

	code, body := getStatus(t, ops.Addr(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `logstreams_component_status{component="src-a"} 2`)
}

func TestOpsServer_MetricsDisabled(t *testing.T) {
	ops := startOpsServer(t, health.NewMonitor(), nil)

	code, _ := getStatus(t, ops.Addr(), "/metrics")
	assert.Equal(t, http.StatusNotFound, code, "no metrics route without a handler")
}

func TestOpsServer_BindFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	ops := NewOpsServer(listener.Addr().String(), health.NewMonitor(), nil, testLogger())
	err = ops.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBindFailed)
	assert.True(t, errors.IsFatal(err), "a taken ops port should not be retried")
}

func TestOpsServer_StopIdempotent(t *testing.T) {
	ops := NewOpsServer("127.0.0.1:0", health.NewMonitor(), nil, testLogger())
	require.NoError(t, ops.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ops.Stop(ctx))
	require.NoError(t, ops.Stop(ctx), "second Stop is harmless")
}

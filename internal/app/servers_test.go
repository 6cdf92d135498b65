package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/commerce/internal/health"
	"github.com/vladislavdragonenkov/commerce/internal/version"
)

func listenLocal(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return lis
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsServer_Endpoints(t *testing.T) {
	logger := log.WithField("test", "http")
	lis := listenLocal(t)
	base := "http://" + lis.Addr().String()

	reg := prometheus.NewRegistry()
	registerCollector(reg, version.NewBuildInfoCollector(), logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveHTTP(ctx, "metrics", lis, newMetricsMux(reg, healthHandler), time.Second, logger)
	}()

	status, body := get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "commerce_build_info")

	status, _ = get(t, base+"/healthz")
	require.Equal(t, http.StatusOK, status)

	status, body = get(t, base+"/readyz")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ready", body)

	status, body = get(t, base+"/livez")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestServeHTTP_ReturnsServeError(t *testing.T) {
	lis := listenLocal(t)
	require.NoError(t, lis.Close())

	err := serveHTTP(context.Background(), "api", lis, http.NotFoundHandler(), time.Second, log.WithField("test", "http"))
	require.Error(t, err)
	require.False(t, errors.Is(err, http.ErrServerClosed))
}

func TestGRPCServer_HealthAndShutdown(t *testing.T) {
	logger := log.WithField("test", "grpc")
	lis := listenLocal(t)

	server, healthServer := newGRPCServer(prometheus.NewRegistry(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveGRPC(ctx, lis, server, healthServer, time.Second, logger)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer callCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: grpcHealthService})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("grpc server did not stop")
	}
}

func TestNewGRPCServer_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := log.WithField("test", "grpc")

	first, _ := newGRPCServer(reg, logger)
	second, _ := newGRPCServer(reg, logger)
	require.NotNil(t, first)
	require.NotNil(t, second)
}

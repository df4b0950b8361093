package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
)

// startServer serves the reporter over an in-memory listener and returns a client.
func startServer(t *testing.T, reporter *Reporter) healthpb.HealthClient {
	t.Helper()

	listener := bufconn.Listen(1 << 16)
	server := grpc.NewServer()
	reporter.Register(server)

	go func() {
		_ = server.Serve(listener)
	}()

	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return healthpb.NewHealthClient(conn)
}

// TestReporter_PublishesRunOutcome flips the status with each report.
func TestReporter_PublishesRunOutcome(t *testing.T) {
	t.Parallel()

	reporter := NewReporter()
	client := startServer(t, reporter)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		require.NoError(t, err)

		return resp.GetStatus()
	}

	require.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, check())

	reporter.Publish(&update.Report{})
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	reporter.Publish(&update.Report{Err: update.ErrUnavailable})
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	reporter.Shutdown()
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, StatusOf(nil))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, StatusOf(&update.Report{}))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, StatusOf(&update.Report{Err: update.ErrInstallFailed}))
}

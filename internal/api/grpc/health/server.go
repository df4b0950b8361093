package health

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
)

// ServiceName is the health service name of the update pipeline.
const ServiceName = "kiosk.updater"

// Reporter maps update run reports onto health statuses.
type Reporter struct {
	// server is the standard health service implementation.
	server *health.Server
}

// NewReporter returns a reporter whose pipeline status is unknown until the first run.
func NewReporter() *Reporter {
	server := health.NewServer()
	server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_UNKNOWN)

	return &Reporter{
		server: server,
	}
}

// Register attaches the health service to a gRPC server.
func (r *Reporter) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, r.server)
}

// Publish records the outcome of a finished run.
func (r *Reporter) Publish(report *update.Report) {
	r.server.SetServingStatus(ServiceName, StatusOf(report))
}

// Shutdown marks every service as not serving ahead of a graceful stop.
func (r *Reporter) Shutdown() {
	r.server.Shutdown()
}

// StatusOf returns the health status matching a run report.
func StatusOf(report *update.Report) healthpb.HealthCheckResponse_ServingStatus {
	switch {
	case report == nil:
		return healthpb.HealthCheckResponse_UNKNOWN
	case report.Succeeded():
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

// Package health implements the gRPC transport for the update agent.
//
// It publishes the outcome of the latest update run through the standard
// grpc.health.v1.Health service, so any health-checking client can tell
// whether the kiosk pipeline is working.
package health

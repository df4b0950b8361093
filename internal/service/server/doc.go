// Package server runs the long-lived update agent.
//
// The agent triggers an update run at start-up and then on every check
// interval, persists each run report and publishes the outcome through the
// gRPC health service so the status tool and supervisors can query it.
package server

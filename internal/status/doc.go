// Package status serves the node's local HTTP endpoint.
//
// Routes:
//
//	GET /healthz  liveness, 503 once bring-up has failed terminally
//	GET /status   bring-up snapshot, schedule and last reading as JSON
//	GET /metrics  Prometheus exposition
//
// The server follows the same lifecycle as the infrastructure clients:
//
//	srv, err := status.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package status

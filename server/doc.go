// Package server runs the HTTP API: a gin engine mounted on a ServeMux,
// served over HTTP/1.1 and cleartext HTTP/2.
//
// The net/http middleware in server/middleware wraps the whole mux, so
// request ids, CORS, body limits and request logging cover every route.
// System endpoints from server/endpoint:
//
//   - /health: component health, 503 when any component is unhealthy
//   - /ready: readiness for load balancers
//   - /info: build information
//   - /metrics: Prometheus exposition
package server

// Package server provides the HTTP routing and middleware behind the client's local status endpoint.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Status Endpoint
//
// [NewRouter] mounts:
//   - /metrics : Prometheus metrics of the request pipeline, cache and realtime subscriber
//   - /status : JSON snapshot produced by a [StatusFunc]
//   - /healthz : liveness probe
//
// The `watch --listen` command serves it with [Serve] while the realtime subscriber runs.
package server

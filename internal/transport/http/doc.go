// Package http exposes the dashboard API over chi: license status and
// activation, HWID profile management, the changelog feed, health, and
// Prometheus metrics. Handlers translate typed license errors into
// structured JSON bodies; the caller's identity arrives in the
// X-User-ID header set by the fronting auth layer.
package http

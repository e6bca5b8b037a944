// Package api hosts the HTTP server, middleware, and REST handlers for the
// lead pipeline. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/leads/generate to run the pipeline for a city and category.
//   - GET /v1/leads and PATCH /v1/leads/{id} to review stored candidates.
//   - POST /v1/outreach to draft a cold email or call script.
package api

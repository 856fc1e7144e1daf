// Package api hosts the status server for operator access. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET and POST /v1/runs to list and submit crawl runs.
//   - GET /v1/runs/{run_id} for one run with its target summaries.
package api

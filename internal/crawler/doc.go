// Package crawler implements the crawl orchestrator: the retrying navigator, the
// pagination scanner, the batch executor with its session scope, follow-up target
// discovery and the request-level orchestration that ties them to a store.
package crawler

// Package observability owns process metrics and HTTP middleware.
//
// Ownership boundary:
// - prometheus collectors and Record helpers
// - gin request id, logging and metrics middleware
// - app-tagged logger bootstrap
package observability

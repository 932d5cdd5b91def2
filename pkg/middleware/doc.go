// Package middleware provides request-level policy enforcement for the
// registry API, currently Redis-backed rate limiting of download traffic.
package middleware

// Package middleware provides the HTTP middleware of the front-end.
//
//   - CORS: cross-origin access, exposing the trace headers
//   - RateLimit: per-IP token buckets; idle clients are forgotten
//   - GlobalRateLimit: one token bucket for all clients
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware

// Package config provides 12-factor configuration for the server.
//
// Configuration comes from environment variables with defaults matching a
// plain local setup, or from a YAML/TOML file given with --config. The two
// sources are not merged: a file replaces the environment.
//
// Configuration Sections:
//   - Server: listen address and shutdown timeout
//   - Script: language target, module root, entry module, fetch policy
//   - ObjectStore: optional s3:// module source
//   - Logging: level, format and output paths
//   - RateLimit: per-IP rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - SCRIPT_TARGET, SCRIPT_MODULE_ROOT, SCRIPT_ENTRY, SCRIPT_ALLOWED_DOMAINS, SCRIPT_DISPATCH_TIMEOUT
//   - S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY, S3_BUCKETS
//   - LOG_LEVEL, LOG_DEV, LOG_OUTPUT
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config

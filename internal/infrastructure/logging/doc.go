// Package logging provides structured logging using uber/zap.
//
// Two modes are available:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// OutputPaths accepts anything zap can open, so the log can go to stdout,
// a file such as myapp.log, or both. The level can be changed at runtime.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info", OutputPaths: []string{"stdout", "myapp.log"}})
//	logger.Info("server starting", zap.String("addr", addr))
package logging

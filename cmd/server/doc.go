// Package main is the entry point for the scriptbridge server.
//
// The server hosts one scripting environment. At startup it installs the
// host objects, loads the entry module from the module root and then serves
// HTTP; each request raises a "request" event on com.mycompany.MyApp.
//
// Configuration:
//   - Environment variables (12-factor)
//   - A YAML or TOML file passed with --config
//   - Defaults for development
//
// Usage:
//
//	# Serve with environment configuration
//	./server
//
//	# Serve from a file, debug logging
//	./server serve --config scriptbridge.yaml --dev
//
//	# Preprocess every module without running anything
//	./server check
//
// Exit status is non-zero when the port cannot be bound, when the entry
// module fails, or when check finds a broken module.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

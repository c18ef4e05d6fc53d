// Package server assembles the process: it binds the listener, builds the
// module resolver and the script environment, installs the host objects,
// loads the entry module and serves HTTP until asked to stop.
//
// Startup failures are typed so the command can exit non-zero:
// ErrBind when the address is taken, ErrEntry when the entry module fails
// to resolve, preprocess or evaluate.
package server

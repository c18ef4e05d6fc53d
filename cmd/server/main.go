package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/server"
)

const (
	exitFailure = 1
	exitBind    = 2
	exitEntry   = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, server.ErrBind):
		return exitBind
	case errors.Is(err, server.ErrEntry):
		return exitEntry
	default:
		return exitFailure
	}
}

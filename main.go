// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sinescope/cmd"
	"sinescope/internal/log"
	"sinescope/pkg/build"
)

// main wires build info, signals and the command line together. Every mode
// runs until its duration ends or SIGINT/SIGTERM cancels the context; the
// engine then stops streams and closes the backend before returning.
func main() {
	if err := build.Initialize(); err != nil {
		log.Fatalf("Build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, os.Args[1:], os.Stdout); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}

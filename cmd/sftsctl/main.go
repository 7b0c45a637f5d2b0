package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sfts-dev/sfts/cmd/sftsctl/commands"
	"github.com/sfts-dev/sfts/pkg/uploader"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps command errors to process exit codes. Interrupted
// transfers exit 130 so shells can tell a Ctrl+C from a failure.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 130
	case errors.Is(err, uploader.ErrAborted):
		return 2
	case errors.Is(err, uploader.ErrAssemblyFailed):
		return 3
	}
	return 1
}

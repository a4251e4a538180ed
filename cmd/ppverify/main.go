// Command ppverify checks PayPal webhook transmission signatures from the
// command line. It exits 0 for a valid signature, 1 for an invalid one and 2
// when the delivery could not be verified.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gitshopapp/paypal-webhooks/cmd/ppverify/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "error:", exitErr.Err)
		}
		stop()
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	stop()
	os.Exit(cmd.ExitFailure)
}

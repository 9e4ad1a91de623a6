package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/aussiebroadwan/iotrac/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		color.New(color.FgRed).Fprintln(os.Stderr, "Error: "+cli.Describe(err))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/timelock-labs/withdrawal-deployer/engine/commands"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/deploy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := commands.Execute(ctx, deploy.Config{}, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

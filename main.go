package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"akashchat/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cmd.Main(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}

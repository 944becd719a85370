package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const usage = `akashchat is a chat client for the Akash Chat API.

Usage:
  akashchat <command> [flags]

Commands:
  serve    Start the HTTP chat API
  chat     Chat interactively in the terminal
  analyze  Run a one-shot behavior analysis
  models   List known models

Flags:
  -h, --help  Show this help message

The API key is read from AKASH_API_KEY (a .env file in the working directory is honoured).`

// Main runs Execute and maps its outcome to a process exit code.
// An interrupted run exits 130.
func Main(ctx context.Context, args []string, stderr io.Writer) int {
	err := Execute(ctx, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "interrupted")
		return 130
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "chat":
		return chat(ctx, args[1:])
	case "analyze":
		return analyze(ctx, args[1:])
	case "models":
		return listModels(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}

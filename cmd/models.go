package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"akashchat/internal/provider"
)

func listModels(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	var cfgPath string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse models flags: %w", err)
	}

	a, err := newApp(context.Background(), cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	printModels(os.Stdout, a.registry)
	return nil
}

func printModels(out io.Writer, registry *provider.Registry) {
	for _, m := range registry.Models() {
		if m.Default {
			fmt.Fprintf(out, "%s (default)\n", m.ID)
			continue
		}
		fmt.Fprintln(out, m.ID)
	}
}

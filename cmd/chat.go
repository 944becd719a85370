package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"akashchat/internal/provider"
	"akashchat/internal/session"
)

const chatUsage = `Usage:
  akashchat chat [--config <path>] [--model <id>]

Flags:
  --config string   Path to YAML configuration file (optional)
  --model  string   Model to start with (defaults to the registry default)

Inside the chat:
  /models        list known models
  /model <id>    switch model
  /reset         start a new conversation
  /quit          leave`

// lineReader is the part of *liner.State the chat loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

func chat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, chatUsage)
	}

	var cfgPath, model string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&model, "model", "", "initial model")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse chat flags: %w", err)
	}

	a, err := newApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.session.CanSend() {
		return fmt.Errorf("%w: set AKASH_API_KEY", session.ErrMissingAPIKey)
	}
	if model != "" {
		if err := a.session.SetModel(model); err != nil {
			return err
		}
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := chatHistoryPath()
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer saveChatHistory(line, historyPath)

	return runChatLoop(ctx, line, os.Stdout, a.session, a.registry)
}

func runChatLoop(ctx context.Context, in lineReader, out io.Writer, sess *session.Session, registry *provider.Registry) error {
	for _, entry := range sess.Transcript() {
		fmt.Fprintf(out, "assistant> %s\n\n", entry.Content)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		input, err := in.Prompt(fmt.Sprintf("[%s] you> ", sess.Model()))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := runChatCommand(out, input, sess, registry); quit {
				return nil
			}
			continue
		}

		turn, err := sess.Send(ctx, input)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if turn.Notice != "" {
			fmt.Fprintf(out, "! %s\n", turn.Notice)
		}
		if turn.Reply != nil {
			fmt.Fprintf(out, "assistant> %s\n\n", turn.Reply.Content)
		}
	}
}

func runChatCommand(out io.Writer, input string, sess *session.Session, registry *provider.Registry) (quit bool) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/models":
		current := sess.Model()
		for _, m := range registry.Models() {
			marker := " "
			if m.ID == current {
				marker = "*"
			}
			suffix := ""
			if m.Default {
				suffix = " (default)"
			}
			fmt.Fprintf(out, "%s %s%s\n", marker, m.ID, suffix)
		}
	case "/model":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: /model <id>")
			return false
		}
		if err := sess.SetModel(fields[1]); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "switched to %s\n", sess.Model())
	case "/reset":
		sess.Reset()
		fmt.Fprintln(out, "conversation cleared")
	default:
		fmt.Fprintln(out, "commands: /models, /model <id>, /reset, /quit")
	}
	return false
}

func chatHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "akashchat", "chat_history")
}

func saveChatHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

// Command call-client places consultation calls and runs the chat view
// against the consultline backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"consultline/internal/repository/api"
	"consultline/pkg/config"
	"consultline/pkg/logger"
)

const usage = `usage: call-client <command> [flags]

commands:
  call   -party <id> [-name <name>] [-type voice|video]
  answer -session <id>
  chat   (-with <user id> | -conversation <id>)`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	out := newConsole(os.Stdin, os.Stdout)

	switch os.Args[1] {
	case "call":
		err = runCall(ctx, cfg, client, out, os.Args[2:])
	case "answer":
		err = runAnswer(ctx, cfg, client, out, os.Args[2:])
	case "chat":
		err = runChat(ctx, cfg, client, out, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

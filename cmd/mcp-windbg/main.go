package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmfrank63/mcp-windbg/internal/commands"
	"github.com/jmfrank63/mcp-windbg/pkg/logger"
)

const (
	errCommandError = 1
	errSetupError   = 2
)

func main() {
	log := logger.New("mcp-windbg")
	defer log.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := commands.NewRootCommand(log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errSetupError)
	}

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.Flush()
		os.Exit(errCommandError)
	}
}

// Command xlimport imports a spreadsheet from the command line and prints
// the run report.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/JonMunkholm/xlimport/internal/core/profiles" // Register all profiles
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment is used as is.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

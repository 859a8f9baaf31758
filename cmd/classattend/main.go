package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"classattend/internal/app"
	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "classattend",
	Short: "Classroom attendance from class photos",
	Long: `classattend keeps a school roster and marks attendance per class and
section from a single class photo, using a face recognition service.
Students missed by recognition can be marked present with their QR card
or id. Reports are written as CSV or Excel.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp loads configuration and bootstraps the database and collaborators.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	return app.New(cmd.Context(), cfg)
}

// dateFlag parses the --date flag, defaulting to today.
func dateFlag(cmd *cobra.Command) (civil.Date, error) {
	v := mustGetString(cmd, "date")
	if v == "" {
		return civil.DateOf(time.Now()), nil
	}
	return attendance.ParseDate(v)
}

func readFile(path, what string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	return data, nil
}

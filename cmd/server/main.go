// LawAid - Indian legal assistant chat server
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newRootCmd(logger).ExecuteContext(context.Background()); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var (
		envFile       string
		endpointsFile string
	)

	cmd := &cobra.Command{
		Use:           "lawaid",
		Short:         "LawAid chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnv(envFile); err != nil {
				return err
			}
			return run(cmd.Context(), logger, endpointsFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")
	cmd.Flags().StringVar(&endpointsFile, "endpoints", "", "YAML file with the ordered inference endpoints (overrides ENDPOINTS_FILE)")
	return cmd
}

func loadEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil {
			slog.Info("No .env file found, using environment variables")
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

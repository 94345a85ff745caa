package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/docqa"
	"github.com/Protocol-Lattice/docqa/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about uploaded PDF documents",
	Long: `docqa indexes the text of PDF files into a vector index and answers
questions with a chat model that can search that index.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config (default docqa.yaml if present)")
}

// setup loads configuration and builds the service.
func setup(ctx context.Context) (config.Config, *docqa.Service, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	svc, err := docqa.New(ctx, cfg, logger)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, svc, logger, nil
}

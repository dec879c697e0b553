package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"benchml/internal/config"
	"benchml/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:           "bench",
	Short:         "bench runs machine-learning pipelines over molecular benchmark datasets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "benchml.yml", "Engine config file (missing file means defaults + env)")
	rootCmd.PersistentFlags().String("data", "", "Dataset root; overrides data.root")
	rootCmd.PersistentFlags().String("log-level", "", "Log level; overrides log.level")
}

// loadConfig reads the engine config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.EngineConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadEngineConfig(path)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if v, _ := cmd.Flags().GetString("data"); v != "" {
		cfg.Data.Root = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, nil
}

// withEngine boots the engine with a context cancelled on SIGINT/SIGTERM.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer e.Close()
	return fn(ctx, e)
}

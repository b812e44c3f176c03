package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/churn"
	"github.com/aretw0/churn/internal/platform"
)

var (
	verbose    bool
	configPath string
	adapter    string
	dsn        string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "churn",
	Short: "Keeps a record store under continuous background churn",
	Long: `Churn runs a fleet of producers that recolor, toggle, delete and insert
records, and a single flush loop that applies each drained batch inside
one store transaction.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: nearest churn.yaml)")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "", "Storage adapter: memory, sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "SQLite file or Postgres connection string")
}

// loadConfig reads the config file, if any, and applies the flag overrides.
// Without --config a missing churn.yaml is not an error.
func loadConfig() (platform.FileConfig, error) {
	path := configPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return platform.FileConfig{}, err
		}
		if found, err := platform.FindConfig(wd); err == nil {
			path = found
		}
	}

	var cfg platform.FileConfig
	if path != "" {
		loaded, err := platform.LoadConfig(path)
		if err != nil {
			return platform.FileConfig{}, err
		}
		cfg = loaded
		slog.Debug("loaded config", "path", path)
	}

	if adapter != "" {
		cfg.Adapter = adapter
	}
	if dsn != "" {
		cfg.DSN = dsn
	}
	return cfg, nil
}

func options(cfg platform.FileConfig, extra ...churn.Option) []churn.Option {
	opts := append(cfg.Options(), churn.WithLogger(slog.Default()))
	return append(opts, extra...)
}

package main

import (
	"fmt"
	"os"

	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "sqlscope",
	Short:         "sqlscope manages scoped database sessions",
	Long:          `sqlscope opens SQLite, MySQL, PostgreSQL or Badger databases from a connection URL and checks them through a session scope.`,
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
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Config file (JSON or YAML); defaults to $"+config.EnvConfigPath+" or ./config.yaml")
	rootCmd.PersistentFlags().String("url", "", "Database URL, overrides the config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Echo SQL and pool events")
}

// loadConfig 按命令行参数加载配置
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	url, _ := cmd.Flags().GetString("url")
	debug, _ := cmd.Flags().GetBool("debug")

	var cfg *config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.LoadConfigOrDefault()
	}

	if url != "" {
		cfg.Database.URL = url
	}
	if debug {
		cfg.Database.DebugSQL = true
		cfg.Log.Level = api.LogDebug.String()
	}
	return cfg, cfg.Validate()
}

package commands

import (
	"context"
	"fmt"
	"os"

	"staypermit/internal/components/telemetry"
	"staypermit/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envPath    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "staypermit",
	Short: "staypermit collects stay permit applications from the immigration admin portal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)
		return config.LoadDotenv(envPath)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file loaded before reading credentials")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load %s: %w", configPath, err)
	}
	return cfg, nil
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

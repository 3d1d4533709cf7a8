package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/config"
	"github.com/nidhogg/agri-assist/internal/logging"
)

const defaultConfigPath = "configs/agri.yaml"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "agri",
	Short: "Agricultural query assistant",
	Long: `agri answers farmers' questions for Bargarh district, Odisha.

Queries are classified by intent, matched against the knowledge sources
for that intent plus live weather, and answered by the configured
generation providers. Planning questions that span several topics run as
stepped workflows whose progress can be polled or streamed.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	def := os.Getenv("CONFIG_PATH")
	if def == "" {
		def = defaultConfigPath
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", def, "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// loadConfig reads the config file. A missing default file yields the
// built-in defaults so the binary runs without any setup.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	return cfg, nil
}

func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Server.LogLevel, cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

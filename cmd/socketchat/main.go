// Command socketchat is a terminal chat client and the relay it talks to.
package main

import (
	"fmt"
	"os"

	"github.com/omochice/socketchat/internal/config"
	"github.com/omochice/socketchat/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var (
	cfg config.Config
	log = zap.NewNop()
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "socketchat",
	Short: "Minimal WebSocket chat client and relay",
	Long: `socketchat connects to a chat endpoint, shows every message exchanged on it
exactly once, and can run the relay that rebroadcasts messages between clients.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		loaded.LogLevel = logLevel
	}

	l, err := logger.New(loaded.LogLevel)
	if err != nil {
		return err
	}
	cfg = loaded
	log = l
	return nil
}

// Execute runs the root command.
func Execute() {
	defer func() { _ = log.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newClientCmd(), newRelayCmd())
}

func main() {
	Execute()
}

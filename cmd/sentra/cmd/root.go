// Package cmd provides the CLI commands for Sentra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentra-security/sentra/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentra",
	Short: "Sentra - tool-call security evaluation service",
	Long: `Sentra evaluates an agent's proposed tool call against a configured
plugin pipeline and returns an allow/block decision.

Quick start:
  1. Create a config file: sentra.yaml
  2. Run: sentra serve

Configuration:
  Config is loaded from sentra.yaml in the current directory,
  $HOME/.sentra/, or /etc/sentra/.

  Environment variables can override config values with the SENTRA_ prefix.
  Example: SENTRA_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the evaluation server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentra.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

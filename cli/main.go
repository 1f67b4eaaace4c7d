package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"biomedtube/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "biomedtube",
	Short: "Generate and upload a daily biomedical concept video",
	Long: `biomedtube picks a biomedical concept from PubMed, renders a short narrated
video over a matching Unsplash photo and uploads it to YouTube.

Configuration is read from biomedtube.yaml (or --config), then from the
environment and an optional .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./biomedtube.yaml or ~/.config/biomedtube/biomedtube.yaml)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "biomedtube", version)
	},
}

// loadConfig loads configuration from the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

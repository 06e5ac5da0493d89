package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "smsrelay",
	Short: "Relays received SMS to a collection endpoint with durable retry",
	Long: `smsrelay accepts SMS events over HTTP or a websocket stream, forwards them
to the configured collection endpoint and keeps failed deliveries in a local
SQLite queue until the endpoint accepts them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml",
		"Path to the configuration file (YAML or JSON)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().Bool("verbose", false,
		"Enable debug logging (includes unmasked event fields)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

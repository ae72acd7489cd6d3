// Command vanctl-controller is the management controller daemon: it runs
// every reconciler loop (internal/reconciler), the backbone-link manager
// (internal/backbonelink), the state-sync engine (internal/statesync) and
// the claim server (internal/claim) against one database, and serves a
// Prometheus /metrics endpoint as a single long-lived cobra command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vanctl-controller",
	Short: "Run the VAN fabric management controller",
	Long: `vanctl-controller is the management controller daemon for a Virtual
Application Network fabric: it advances every entity lifecycle, maintains
backbone-link sessions, runs state-sync heartbeats, and completes member
onboarding claims.`,
	SilenceUsage: true,
	RunE:         runController,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the controller's YAML configuration file")
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(`{{printf "vanctl-controller version %s\n" .Version}}`)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

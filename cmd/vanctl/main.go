// Command vanctl is the operator CLI for a Virtual Application Network
// fabric: it talks straight to the same database cmd/vanctl-controller
// reconciles against (the admin REST surface is a separate, out-of-scope
// system), creating backbones, sites, VANs and invitations and reporting
// their lifecycle.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"
var configPath string

var rootCmd = &cobra.Command{
	Use:          "vanctl",
	Short:        "Operate a Virtual Application Network fabric",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to vanctl.yaml (defaults if absent)")
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(`{{printf "vanctl version %s\n" .Version}}`)

	rootCmd.AddCommand(newBackbonesCmd())
	rootCmd.AddCommand(newSitesCmd())
	rootCmd.AddCommand(newVansCmd())
	rootCmd.AddCommand(newInvitationsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newAppsCmd())
	rootCmd.AddCommand(newCertsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

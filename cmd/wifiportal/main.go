// Wifiportal is a headless WiFi connection manager with a captive
// configuration portal.
//
// It joins the configured network at startup and falls back to its own
// access point, with a captive DNS responder and a configuration web page,
// whenever the network cannot be joined.
//
// Usage:
//
//	wifiportal run [flags]
//	wifiportal config init|show|path
//
// See 'wifiportal --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wifiportal/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wifiportal",
	Short: "Headless WiFi manager with a captive configuration portal",
	Long: `A headless WiFi connection manager.

wifiportal joins the configured station network and, when that fails,
brings up an access point with a captive portal where credentials can be
entered from any phone or laptop.

Use the separate 'wifiportal-cfg' utility to provision a device from the
command line.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default: platform config directory)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wifiportal %s\n", version.Full())
	},
}

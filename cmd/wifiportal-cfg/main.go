// Wifiportal-cfg provisions wifiportal devices from the command line.
//
// It talks to a device's configuration portal over HTTP the same way a
// browser on the device's access point would, and finds devices that have
// already joined a network through mDNS.
//
// Usage:
//
//	wifiportal-cfg [command] [flags]
//
// See 'wifiportal-cfg --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/muurk/wifiportal/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wifiportal-cfg",
	Short: "wifiportal provisioning utility",
	Long: `A standalone utility for provisioning wifiportal devices.

Join the device's access point and run 'wifiportal-cfg provision' to hand it
network credentials, or use 'wifiportal-cfg discover' to find devices that
are already on your network.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wifiportal-cfg %s\n", version.Full())
	},
}

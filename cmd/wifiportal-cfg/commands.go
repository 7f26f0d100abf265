package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muurk/wifiportal/internal/discovery"
	"github.com/muurk/wifiportal/internal/portalclient"
	"github.com/muurk/wifiportal/internal/ui"
)

// DefaultPortalIP is where a device serves its portal on its own access point.
const DefaultPortalIP = "192.168.4.1"

var (
	deviceIP       string
	devicePort     int
	requestTimeout time.Duration
	retries        int

	discoverTimeout time.Duration

	ssid       string
	passphrase string
	fields     []string
	staticIP   string
	gateway    string
	subnet     string
	dns1       string
	dns2       string

	rescan bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&deviceIP, "device", DefaultPortalIP, "Device portal IP address")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", 80, "Device portal HTTP port")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout-request", portalclient.DefaultTimeout, "HTTP request timeout")
	rootCmd.PersistentFlags().IntVar(&retries, "retries", portalclient.DefaultMaxRetries, "Retries for busy or unreachable portals")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(infoCmd)
}

func newClient() *portalclient.Client {
	client := portalclient.NewClient(deviceIP, devicePort)
	client.SetTimeout(requestTimeout)
	client.SetRetry(retries, portalclient.DefaultRetryDelay)
	return client
}

// fail prints a failure box and returns err for the exit status.
func fail(title string, err error) error {
	ui.NewPrinter(os.Stderr).Println(ui.NewFailureResult(title, err, portalclient.GetTroubleshootingHint(err)).Render())
	return err
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find wifiportal devices announced on this network",
	Long: `Browse mDNS for _wifiportal._tcp.

Devices announce themselves only after joining a station network. A device
that is still showing its access point will not appear; join its access
point and use the portal address (usually 192.168.4.1) instead.`,
	Example: `  wifiportal-cfg discover
  wifiportal-cfg discover --timeout 10s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultBrowseTimeout, "How long to listen for announcements")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Browsing for wifiportal devices (timeout: %s)...\n\n", discoverTimeout)

	browser := discovery.NewBrowser()
	browser.Timeout = discoverTimeout
	devices, err := browser.Browse(cmd.Context())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Devices only announce once they have joined a network")
		fmt.Println("  - Check that multicast is not blocked on this network")
		fmt.Println("  - Try increasing --timeout")
		return nil
	}

	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{d.Instance, d.ChipID(), d.IP, strconv.Itoa(d.Port), d.GetMetadata("version")})
	}
	ui.NewPrinter(nil).Table([]string{"INSTANCE", "CHIP", "IP", "PORT", "VERSION"}, rows)
	return nil
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Send network credentials to a device's portal",
	Long: `Submit credentials to the portal's /wifisave endpoint.

Run this while joined to the device's access point. When --passphrase is
not given and stdin is a terminal, the passphrase is prompted without echo.
An empty passphrase selects an open network.`,
	Example: `  # Prompt for the passphrase
  wifiportal-cfg provision --ssid home

  # Static address and a custom field
  wifiportal-cfg provision --ssid home --passphrase homepass1 \
      --static-ip 192.168.1.80 --gateway 192.168.1.1 --subnet 255.255.255.0 \
      --field mqtt=broker.local`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringVar(&ssid, "ssid", "", "Network name (required)")
	provisionCmd.Flags().StringVar(&passphrase, "passphrase", "", "Network passphrase (prompted when omitted)")
	provisionCmd.Flags().StringArrayVar(&fields, "field", nil, "Custom portal field as id=value (repeatable)")
	provisionCmd.Flags().StringVar(&staticIP, "static-ip", "", "Static station address")
	provisionCmd.Flags().StringVar(&gateway, "gateway", "", "Static gateway")
	provisionCmd.Flags().StringVar(&subnet, "subnet", "", "Static subnet mask")
	provisionCmd.Flags().StringVar(&dns1, "dns1", "", "Static DNS server")
	provisionCmd.Flags().StringVar(&dns2, "dns2", "", "Second static DNS server")
	_ = provisionCmd.MarkFlagRequired("ssid")
}

func runProvision(cmd *cobra.Command, args []string) error {
	pass := passphrase
	if !cmd.Flags().Changed("passphrase") && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Printf("Passphrase for %s (empty for an open network): ", ssid)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read passphrase: %w", err)
		}
		pass = string(b)
	}

	extra, err := parseFields(fields)
	if err != nil {
		return err
	}

	req := &portalclient.ProvisionRequest{
		SSID:       ssid,
		Passphrase: pass,
		IP:         staticIP,
		Gateway:    gateway,
		Subnet:     subnet,
		DNS1:       dns1,
		DNS2:       dns2,
		Fields:     extra,
	}
	if errs := req.Validate(); len(errs) > 0 {
		return fail("Invalid request", errs[0])
	}

	printer := ui.NewPrinter(nil)
	params := []ui.Detail{{Key: "Device", Value: fmt.Sprintf("%s:%d", deviceIP, devicePort)}, {Key: "Network", Value: ssid}}
	if staticIP != "" {
		params = append(params, ui.Detail{Key: "Static IP", Value: staticIP})
	}
	printer.Println(ui.NewHeader("Provision", "wifiportal-cfg provision", params...).Render())

	if err := newClient().Provision(cmd.Context(), req); err != nil {
		return fail("Provisioning failed", err)
	}

	printer.Println(ui.NewSuccessResult("Credentials sent",
		ui.Detail{Key: "Network", Value: ssid},
		ui.Detail{Key: "Next", Value: "wifiportal-cfg info"},
	).Render())
	return nil
}

// parseFields turns id=value pairs into a map.
func parseFields(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --field %q (want id=value)", p)
		}
		out[k] = v
	}
	return out, nil
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the networks a device can see",
	RunE:  runNetworks,
}

func init() {
	networksCmd.Flags().BoolVar(&rescan, "scan", false, "Ask the device to rescan first")
}

func runNetworks(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx := cmd.Context()

	if rescan {
		if err := client.RequestScan(ctx); err != nil {
			return fail("Scan request failed", err)
		}
		fmt.Println("Scanning...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}

	networks, err := client.Networks(ctx)
	if err != nil {
		return fail("Could not read networks", err)
	}
	if len(networks) == 0 {
		fmt.Println("No networks found. Try --scan.")
		return nil
	}

	rows := make([][]string, 0, len(networks))
	for _, n := range networks {
		security := "open"
		if n.Encrypted {
			security = "secured"
		}
		name := n.SSID
		if n.Hidden {
			name = "(hidden)"
		}
		rows = append(rows, []string{name, fmt.Sprintf("%d%%", n.Quality), security})
	}
	ui.NewPrinter(nil).Table([]string{"SSID", "QUALITY", "SECURITY"}, rows)
	return nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show a device's diagnostics",
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	info, err := newClient().Info(cmd.Context())
	if err != nil {
		return fail("Could not read diagnostics", err)
	}

	details := make([]ui.Detail, 0, len(info.Fields)+1)
	if info.Connecting {
		details = append(details, ui.Detail{Key: "State", Value: "trying to connect"})
	}
	for _, f := range info.Fields {
		details = append(details, ui.Detail{Key: f.Name, Value: f.Value})
	}
	ui.NewPrinter(nil).Println(ui.NewSuccessResult("Device info", details...).Render())
	return nil
}

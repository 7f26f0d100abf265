// Package radio defines the driver surface the connection supervisor, the
// configuration portal and the network scanner consume. Implementations wrap
// a real wireless driver; package sim provides an in-memory one.
package radio

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Status mirrors the driver's station status codes. The numeric values are
// shown on the portal's info page, so they stay stable.
type Status int

const (
	StatusIdle           Status = 0
	StatusNoSSID         Status = 1
	StatusScanCompleted  Status = 2
	StatusConnected      Status = 3
	StatusConnectFailed  Status = 4
	StatusConnectionLost Status = 5
	StatusDisconnected   Status = 6
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusNoSSID:
		return "no_ssid_available"
	case StatusScanCompleted:
		return "scan_completed"
	case StatusConnected:
		return "connected"
	case StatusConnectFailed:
		return "connect_failed"
	case StatusConnectionLost:
		return "connection_lost"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Scan counts below zero are sentinels, not results.
const (
	ScanRunning = -1
	ScanFailed  = -2
)

// Credentials selects a station network. An empty SSID means the driver's
// stored credentials.
type Credentials struct {
	SSID       string
	Passphrase string
}

// IPConfig is a static address assignment. A nil IP means DHCP.
type IPConfig struct {
	IP      net.IP
	Gateway net.IP
	Subnet  net.IP
	DNS1    net.IP
	DNS2    net.IP
}

// IsStatic reports whether an address is configured.
func (c IPConfig) IsStatic() bool {
	return c.IP != nil
}

// APConfig configures the access point. An empty Passphrase brings the AP up
// open.
type APConfig struct {
	SSID       string
	Passphrase string
	Static     IPConfig
}

// Network is one entry of a scan.
type Network struct {
	SSID      string
	BSSID     string
	RSSI      int
	Channel   int
	Encrypted bool
	Hidden    bool
}

// Info carries the diagnostic fields shown on the portal's info page.
type Info struct {
	ChipID      string
	Hostname    string
	APSSID      string
	APIP        net.IP
	APMAC       string
	StationSSID string
	StationIP   net.IP
	StationMAC  string
}

// EventType identifies an asynchronous driver notification.
type EventType int

const (
	EventAssociated EventType = iota
	EventDisassociated
	EventGotIP
)

func (t EventType) String() string {
	switch t {
	case EventAssociated:
		return "associated"
	case EventDisassociated:
		return "disassociated"
	case EventGotIP:
		return "got_ip"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is delivered on the driver's event channel.
type Event struct {
	Type   EventType
	SSID   string
	IP     net.IP
	Reason string
	At     time.Time
}

// Station joins and leaves infrastructure networks.
type Station interface {
	// Join starts association. It does not wait for the link to come up.
	Join(ctx context.Context, creds Credentials) error
	Disconnect() error
	Connected() bool
	Status() Status
	ConfigureStation(cfg IPConfig) error
}

// AccessPoint brings the device's own network up and down.
type AccessPoint interface {
	EnableAP(ctx context.Context, cfg APConfig) (net.IP, error)
	DisableAP() error
	APAddr() net.IP
}

// Scanner exposes the driver's indexed scan API.
type Scanner interface {
	// ScanNetworks blocks until the scan completes and returns the number of
	// results, or ScanRunning / ScanFailed.
	ScanNetworks(ctx context.Context) int
	ScanResult(i int) (Network, bool)
	ScanDelete()
}

// Diagnostics reports device identity and restarts the device.
type Diagnostics interface {
	Info() Info
	Restart() error
}

// Radio is the complete driver surface.
type Radio interface {
	Station
	AccessPoint
	Scanner
	Diagnostics

	// Events delivers association notifications. The channel is closed when
	// the radio is shut down.
	Events() <-chan Event
}

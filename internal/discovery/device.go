package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device is an announced wifiportal instance.
type Device struct {
	Instance     string
	Hostname     string
	IP           string
	Port         int
	Metadata     map[string]string
	DiscoveredAt time.Time
}

// ChipID returns the chip identifier from the TXT record.
func (d *Device) ChipID() string {
	return d.GetMetadata("chip")
}

// AdminPort returns the admin listener port, or 0 when not announced.
func (d *Device) AdminPort() int {
	p, err := strconv.Atoi(d.GetMetadata("admin"))
	if err != nil {
		return 0
	}
	return p
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s (chip %s) at %s", d.Instance, d.ChipID(), net.JoinHostPort(d.IP, strconv.Itoa(d.Port)))
}

// BaseURL returns the HTTP base URL for the device
func (d *Device) BaseURL() string {
	return "http://" + net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a metadata value by key, or "" when absent
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type wifiportal devices register.
	ServiceType = "_wifiportal._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultBrowseTimeout bounds a Browse call.
	DefaultBrowseTimeout = 5 * time.Second

	// DefaultPort is assumed when an entry carries no port.
	DefaultPort = 80
)

// Browser finds announced devices.
type Browser struct {
	Timeout time.Duration
}

// NewBrowser returns a browser with the default timeout.
func NewBrowser() *Browser {
	return &Browser{Timeout: DefaultBrowseTimeout}
}

// Browse collects every device that answers before the timeout.
func (b *Browser) Browse(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()

	var (
		mu      sync.Mutex
		devices []*Device
		seen    = make(map[string]bool)
	)
	err := b.browse(ctx, func(d *Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[d.Instance] {
			seen[d.Instance] = true
			devices = append(devices, d)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

// WaitFor returns the first device whose chip ID matches.
func (b *Browser) WaitFor(ctx context.Context, chipID string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()

	var found *Device
	err := b.browse(ctx, func(d *Device) bool {
		if strings.EqualFold(d.ChipID(), chipID) {
			found = d
			cancel()
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("device with chip %s not found within %s", chipID, b.timeout())
	}
	return found, nil
}

// browse feeds parsed entries to fn until ctx ends or fn returns false. It
// returns only after the entry consumer has finished.
func (b *Browser) browse(ctx context.Context, fn func(*Device) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		wanted := true
		for entry := range entries {
			if !wanted {
				continue
			}
			if d := parseServiceEntry(entry); d != nil {
				wanted = fn(d)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

func (b *Browser) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultBrowseTimeout
	}
	return b.Timeout
}

// parseServiceEntry converts a zeroconf entry to a Device, or nil when the
// entry has no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		if key != "" {
			metadata[key] = value
		}
	}

	return &Device{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

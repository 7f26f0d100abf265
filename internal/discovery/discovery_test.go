package discovery

import (
	"errors"
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	withIPv4 := zeroconf.NewServiceEntry("wifiportal-1A2B3C", ServiceType, ServiceDomain)
	withIPv4.HostName = "wifiportal.local."
	withIPv4.Port = 80
	withIPv4.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.50")}
	withIPv4.Text = []string{"chip=1A2B3C", "mode=station", "admin=9090", "flag"}

	ipv6Only := zeroconf.NewServiceEntry("wifiportal-v6", ServiceType, ServiceDomain)
	ipv6Only.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

	noAddr := zeroconf.NewServiceEntry("wifiportal-none", ServiceType, ServiceDomain)

	tests := []struct {
		name      string
		entry     *zeroconf.ServiceEntry
		wantNil   bool
		wantIP    string
		wantPort  int
		wantChip  string
		wantAdmin int
	}{
		{"ipv4 with txt", withIPv4, false, "192.168.1.50", 80, "1A2B3C", 9090},
		{"ipv6 only, default port", ipv6Only, false, "fe80::1", DefaultPort, "", 0},
		{"no address", noAddr, true, "", 0, "", 0},
		{"nil entry", nil, true, "", 0, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if d != nil {
					t.Fatalf("parseServiceEntry() = %v, want nil", d)
				}
				return
			}
			if d == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if d.IP != tt.wantIP || d.Port != tt.wantPort {
				t.Errorf("address = %s:%d, want %s:%d", d.IP, d.Port, tt.wantIP, tt.wantPort)
			}
			if d.ChipID() != tt.wantChip || d.AdminPort() != tt.wantAdmin {
				t.Errorf("chip = %q admin = %d", d.ChipID(), d.AdminPort())
			}
		})
	}

	d := parseServiceEntry(withIPv4)
	if _, ok := d.Metadata["flag"]; !ok {
		t.Error("key-only TXT record dropped")
	}
	if d.BaseURL() != "http://192.168.1.50:80" {
		t.Errorf("BaseURL() = %s", d.BaseURL())
	}
}

type fakeServer struct{ shutdowns int }

func (s *fakeServer) Shutdown() { s.shutdowns++ }

func TestAnnouncerFollowsStation(t *testing.T) {
	srv := &fakeServer{}
	registrations := 0
	a := NewAnnouncer("wifiportal-1A2B3C", 80, []string{"chip=1A2B3C"})
	a.register = func(instance, service, domain string, port int, text []string) (shutdowner, error) {
		registrations++
		if service != ServiceType || port != 80 {
			t.Errorf("register(%s, %d)", service, port)
		}
		return srv, nil
	}

	if err := a.SetStation(true); err != nil {
		t.Fatalf("SetStation(true) error = %v", err)
	}
	_ = a.SetStation(true)
	if registrations != 1 || !a.Registered() {
		t.Errorf("registrations = %d, registered = %v", registrations, a.Registered())
	}

	_ = a.SetStation(false)
	a.Close()
	if srv.shutdowns != 1 || a.Registered() {
		t.Errorf("shutdowns = %d, registered = %v", srv.shutdowns, a.Registered())
	}
}

func TestAnnouncerRegisterError(t *testing.T) {
	a := NewAnnouncer("x", 80, nil)
	a.register = func(string, string, string, int, []string) (shutdowner, error) {
		return nil, errors.New("no multicast interface")
	}
	if err := a.SetStation(true); err == nil {
		t.Fatal("SetStation(true) should fail")
	}
	if a.Registered() {
		t.Error("Registered() after failure")
	}
}

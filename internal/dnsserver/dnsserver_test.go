package dnsserver

import (
	"net"
	"testing"

	"github.com/miekg/dns"
)

var apIP = net.IPv4(192, 168, 4, 1)

func TestAnswer(t *testing.T) {
	tests := []struct {
		name    string
		qtype   uint16
		answers int
	}{
		{"A", dns.TypeA, 1},
		{"ANY", dns.TypeANY, 1},
		{"AAAA", dns.TypeAAAA, 0},
		{"MX", dns.TypeMX, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := new(dns.Msg)
			req.SetQuestion("connectivitycheck.gstatic.com.", tt.qtype)

			resp := Answer(req, apIP, DefaultTTL)
			if resp.Rcode != dns.RcodeSuccess {
				t.Fatalf("Rcode = %d, want NOERROR", resp.Rcode)
			}
			if resp.Id != req.Id {
				t.Errorf("response id %d does not match %d", resp.Id, req.Id)
			}
			if len(resp.Answer) != tt.answers {
				t.Fatalf("answers = %d, want %d", len(resp.Answer), tt.answers)
			}
			if tt.answers == 0 {
				return
			}
			a, ok := resp.Answer[0].(*dns.A)
			if !ok {
				t.Fatalf("answer type %T, want *dns.A", resp.Answer[0])
			}
			if !a.A.Equal(apIP) || a.Hdr.Ttl != DefaultTTL || a.Hdr.Name != "connectivitycheck.gstatic.com." {
				t.Errorf("answer = %v", a)
			}
		})
	}
}

func TestServerStartStopIdempotent(t *testing.T) {
	s := New("127.0.0.1:0")

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() before Start error = %v", err)
	}
	if err := s.Start(apIP); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	addr := s.LocalAddr()
	if err := s.Start(apIP); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if s.LocalAddr().String() != addr.String() {
		t.Errorf("second Start() rebound the listener")
	}

	c := new(dns.Client)
	req := new(dns.Msg)
	req.SetQuestion("anything.example.", dns.TypeA)
	resp, _, err := c.Exchange(req, addr.String())
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("answers = %d, want 1", len(resp.Answer))
	}
	if a := resp.Answer[0].(*dns.A); !a.A.Equal(apIP) || a.Hdr.Ttl != DefaultTTL {
		t.Errorf("answer = %v", a)
	}
	if s.Queries() != 1 {
		t.Errorf("Queries() = %d, want 1", s.Queries())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if s.Running() {
		t.Error("Running() after Stop")
	}
}

func TestStartRejectsIPv6(t *testing.T) {
	s := New("127.0.0.1:0")
	if err := s.Start(net.ParseIP("fe80::1")); err == nil {
		_ = s.Stop()
		t.Fatal("Start() with IPv6 address should fail")
	}
}

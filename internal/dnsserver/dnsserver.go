// Package dnsserver answers every A query with the access point's address so
// that clients on the portal network resolve all names to the portal.
package dnsserver

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/muurk/wifiportal/internal/logging"
	"go.uber.org/zap"
)

// DefaultTTL is the record lifetime in seconds. It is kept short so clients
// re-resolve soon after the device leaves AP mode.
const DefaultTTL = 5

// DefaultAddr is the standard DNS port on all interfaces.
const DefaultAddr = ":53"

// Server is a wildcard DNS responder. Start and Stop are idempotent.
type Server struct {
	addr string
	ttl  uint32

	mu      sync.Mutex
	ip      net.IP
	srv     *dns.Server
	conn    net.PacketConn
	queries uint64
}

// New returns a responder that will listen on addr (UDP).
func New(addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{addr: addr, ttl: DefaultTTL}
}

// Start begins answering with ip. Calling Start while running does nothing.
func (s *Server) Start(ip net.IP) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		logging.Debug("DNS responder already running", zap.String("addr", s.addr))
		return nil
	}
	if ip.To4() == nil {
		return fmt.Errorf("dns responder needs an IPv4 address, got %v", ip)
	}

	pc, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen for dns on %s: %w", s.addr, err)
	}

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(s.serveDNS),
		NotifyStartedFunc: func() { close(started) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ActivateAndServe()
	}()

	select {
	case <-started:
	case err := <-errCh:
		_ = pc.Close()
		return fmt.Errorf("dns responder failed to start: %w", err)
	case <-time.After(2 * time.Second):
		_ = pc.Close()
		return fmt.Errorf("dns responder did not start within 2s")
	}

	s.ip = ip.To4()
	s.srv = srv
	s.conn = pc

	logging.Info("DNS responder started",
		zap.String("addr", pc.LocalAddr().String()),
		zap.String("answer", s.ip.String()),
	)
	return nil
}

// Stop shuts the responder down. Calling Stop while stopped does nothing.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.conn = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop dns responder: %w", err)
	}
	logging.Info("DNS responder stopped")
	return nil
}

// Running reports whether the responder is serving.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// LocalAddr returns the bound address while running.
func (s *Server) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Queries returns the number of queries answered since construction.
func (s *Server) Queries() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *Server) serveDNS(w dns.ResponseWriter, req *dns.Msg) {
	s.mu.Lock()
	ip := s.ip
	s.queries++
	s.mu.Unlock()

	resp := Answer(req, ip, s.ttl)
	if err := w.WriteMsg(resp); err != nil {
		logging.Debug("Failed to write dns response", zap.Error(err))
	}
}

// Answer builds the wildcard reply for req. A and ANY questions get an A
// record for ip; other types get an empty NOERROR answer.
func Answer(req *dns.Msg, ip net.IP, ttl uint32) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true

	if req.Opcode != dns.OpcodeQuery {
		resp.SetRcode(req, dns.RcodeNotImplemented)
		return resp
	}

	for _, q := range req.Question {
		logging.Debug("DNS query", zap.String("name", q.Name), zap.Uint16("type", q.Qtype))
		if q.Qclass != dns.ClassINET && q.Qclass != dns.ClassANY {
			continue
		}
		if q.Qtype != dns.TypeA && q.Qtype != dns.TypeANY {
			continue
		}
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    ttl,
			},
			A: ip,
		})
	}
	return resp
}

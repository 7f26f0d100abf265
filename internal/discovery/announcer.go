package discovery

import (
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/wifiportal/internal/logging"
	"go.uber.org/zap"
)

// registrar abstracts zeroconf.Register for tests.
type registrar func(instance, service, domain string, port int, text []string) (shutdowner, error)

type shutdowner interface {
	Shutdown()
}

func zeroconfRegister(instance, service, domain string, port int, text []string) (shutdowner, error) {
	return zeroconf.Register(instance, service, domain, port, text, nil)
}

// Announcer keeps the mDNS registration in step with the connection mode:
// registered while on the station network, withdrawn otherwise.
type Announcer struct {
	instance string
	port     int
	text     []string
	register registrar

	mu     sync.Mutex
	server shutdowner
}

// NewAnnouncer prepares an announcement. Nothing is sent until SetStation.
func NewAnnouncer(instance string, port int, text []string) *Announcer {
	return &Announcer{
		instance: instance,
		port:     port,
		text:     text,
		register: zeroconfRegister,
	}
}

// SetStation registers the service when onStation is true and withdraws it
// otherwise. Repeated calls with the same value do nothing.
func (a *Announcer) SetStation(onStation bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !onStation {
		if a.server != nil {
			a.server.Shutdown()
			a.server = nil
			logging.Info("mDNS announcement withdrawn", zap.String("instance", a.instance))
		}
		return nil
	}
	if a.server != nil {
		return nil
	}

	srv, err := a.register(a.instance, ServiceType, ServiceDomain, a.port, a.text)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = srv
	logging.Info("mDNS announcement registered",
		zap.String("instance", a.instance),
		zap.String("service", ServiceType),
		zap.Int("port", a.port),
	)
	return nil
}

// Registered reports whether the service is currently announced.
func (a *Announcer) Registered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Close withdraws any announcement.
func (a *Announcer) Close() {
	_ = a.SetStation(false)
}

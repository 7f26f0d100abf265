// Package portal runs the captive configuration portal: the device's own
// access point, a wildcard DNS responder and the page set that collects
// station credentials.
package portal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/muurk/wifiportal/internal/captive"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/params"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/scan"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// WPA2 passphrase bounds. Anything outside brings the AP up open.
const (
	MinPassphraseLen = 8
	MaxPassphraseLen = 63
)

// DefaultResetDelay is the pause between the reset page and the restart.
const DefaultResetDelay = 5 * time.Second

// Router is the mutable route table the portal registers into.
type Router interface {
	Handle(pattern string, h http.Handler, methods ...string)
	Remove(pattern string)
	SetNotFound(h http.Handler)
}

// DNS is the wildcard responder.
type DNS interface {
	Start(ip net.IP) error
	Stop() error
}

// Device is the part of the radio the portal drives.
type Device interface {
	radio.AccessPoint
	radio.Diagnostics
	Status() radio.Status
}

// Controller receives what the pages submit. The connection supervisor
// implements it.
type Controller interface {
	RequestConnect(creds radio.Credentials, static radio.IPConfig)
	RequestScan()
	ConnectPending() bool
	StationConfig() radio.IPConfig
	LastFault() *radio.Fault
}

// Config holds the portal settings.
type Config struct {
	SSID       string
	Passphrase string
	Static     radio.IPConfig // AP address; zero value uses the driver default

	Port              int    // listener port, used in redirect targets
	Title             string // page title; defaults to the SSID
	CustomHeadHTML    string // appended inside <head>
	CustomOptionsHTML string // replaces the landing-page menu
	ShowStaticFields  bool   // always show static address inputs on /wifi
	ResetDelay        time.Duration
}

// Deps are the collaborators the portal needs.
type Deps struct {
	Device  Device
	DNS     DNS
	Router  Router
	Scanner *scan.Scanner
	Params  *params.Registry
	Faults  radio.FaultReporter
	Clock   clockz.Clock // defaults to the real clock
}

// State describes an active portal. It exists only between Activate and
// Deactivate.
type State struct {
	SSID             string
	IP               net.IP
	Open             bool
	RoutesRegistered bool
	ActivatedAt      time.Time
	ShutdownDeadline time.Time
}

// Portal is the configuration portal. Activate and Deactivate are
// idempotent and safe for concurrent use.
type Portal struct {
	cfg  Config
	deps Deps

	redirect *captive.Redirector

	ctrlMu sync.RWMutex
	ctrl   Controller

	mu    sync.Mutex
	state *State
}

// New builds a portal. Attach must be called before Activate.
func New(cfg Config, deps Deps) *Portal {
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	if cfg.Title == "" {
		cfg.Title = cfg.SSID
	}
	if deps.Params == nil {
		deps.Params = params.NewRegistry(0)
	}
	if deps.Clock == nil {
		deps.Clock = clockz.RealClock
	}

	p := &Portal{cfg: cfg, deps: deps}
	p.redirect = &captive.Redirector{Addr: p.IP, Port: cfg.Port}
	return p
}

// Attach sets the controller the pages report to.
func (p *Portal) Attach(ctrl Controller) {
	p.ctrlMu.Lock()
	p.ctrl = ctrl
	p.ctrlMu.Unlock()
}

func (p *Portal) controller() Controller {
	p.ctrlMu.RLock()
	defer p.ctrlMu.RUnlock()
	return p.ctrl
}

// Params returns the field registry.
func (p *Portal) Params() *params.Registry {
	return p.deps.Params
}

// Active reports whether the portal is up.
func (p *Portal) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != nil
}

// State returns a copy of the active state, or nil.
func (p *Portal) State() *State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil
	}
	s := *p.state
	return &s
}

// IP returns the AP address while active.
func (p *Portal) IP() net.IP {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil
	}
	return p.state.IP
}

// SetShutdownDeadline records when a pending drain will take the portal
// down. It is informational only.
func (p *Portal) SetShutdownDeadline(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != nil {
		p.state.ShutdownDeadline = t
	}
}

// Activate brings up the AP, the DNS responder and the route set. Calling it
// while active records a duplicate-initialization fault and does nothing.
func (p *Portal) Activate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != nil {
		p.deps.Faults.Report(radio.NewFault(radio.FaultDuplicateInitialization, "portal already active", nil))
		return nil
	}

	pass := p.cfg.Passphrase
	if pass != "" && (len(pass) < MinPassphraseLen || len(pass) > MaxPassphraseLen) {
		p.deps.Faults.Report(radio.NewFault(radio.FaultConfiguration,
			fmt.Sprintf("AP passphrase must be %d-%d characters, starting open AP", MinPassphraseLen, MaxPassphraseLen), nil))
		pass = ""
	}

	ip, err := p.deps.Device.EnableAP(ctx, radio.APConfig{
		SSID:       p.cfg.SSID,
		Passphrase: pass,
		Static:     p.cfg.Static,
	})
	if err != nil {
		return fmt.Errorf("failed to enable access point: %w", err)
	}

	state := &State{
		SSID:        p.cfg.SSID,
		IP:          ip,
		Open:        pass == "",
		ActivatedAt: p.deps.Clock.Now(),
	}

	if p.deps.DNS != nil {
		if err := p.deps.DNS.Start(ip); err != nil {
			logging.Warn("Portal running without DNS responder", zap.Error(err))
		}
	}

	p.registerRoutes()
	state.RoutesRegistered = true
	p.state = state

	logging.Info("Portal activated",
		zap.String("ssid", state.SSID),
		zap.String("ip", ipString(ip)),
		zap.Bool("open", state.Open),
	)
	return nil
}

// Deactivate tears down everything Activate set up. Calling it while
// inactive does nothing.
func (p *Portal) Deactivate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == nil {
		return nil
	}

	if p.deps.DNS != nil {
		if err := p.deps.DNS.Stop(); err != nil {
			logging.Warn("Failed to stop DNS responder", zap.Error(err))
		}
	}
	if p.state.RoutesRegistered {
		p.removeRoutes()
	}

	err := p.deps.Device.DisableAP()
	if p.deps.Scanner != nil {
		p.deps.Scanner.Clear()
	}
	p.state = nil

	if err != nil {
		return fmt.Errorf("failed to disable access point: %w", err)
	}
	logging.Info("Portal deactivated")
	return nil
}

// Routes returns the patterns the portal registers.
func Routes() []string {
	return []string{"/", "/wifi", "/0wifi", "/wifisave", "/i", "/r", "/fwlink"}
}

// registerRoutes installs the page set. Routes accept every method at the
// router so the captive redirect runs before any method check.
func (p *Portal) registerRoutes() {
	r := p.deps.Router
	r.Handle("/", p.guard(p.handleRoot))
	r.Handle("/wifi", p.guard(p.handleWifi(true), http.MethodGet))
	r.Handle("/0wifi", p.guard(p.handleWifi(false), http.MethodGet))
	r.Handle("/wifisave", p.guard(p.handleWifiSave, http.MethodGet, http.MethodPost))
	r.Handle("/i", p.redirect.Wrap(allowMethods(http.HandlerFunc(p.handleInfo), http.MethodGet)))
	r.Handle("/r", p.guard(p.handleReset, http.MethodGet, http.MethodPost))
	r.Handle("/fwlink", p.guard(p.handleRoot))
	r.SetNotFound(p.guard(p.handleNotFound))
}

func (p *Portal) removeRoutes() {
	for _, pattern := range Routes() {
		p.deps.Router.Remove(pattern)
	}
	p.deps.Router.SetNotFound(nil)
}

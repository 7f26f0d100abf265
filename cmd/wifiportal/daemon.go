package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/muurk/wifiportal/internal/admin"
	"github.com/muurk/wifiportal/internal/config"
	"github.com/muurk/wifiportal/internal/discovery"
	"github.com/muurk/wifiportal/internal/dnsserver"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/metrics"
	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/radio/sim"
	"github.com/muurk/wifiportal/internal/scan"
	"github.com/muurk/wifiportal/internal/server"
	"github.com/muurk/wifiportal/internal/supervisor"
	"github.com/muurk/wifiportal/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// daemon owns every long-running component of "wifiportal run".
type daemon struct {
	settings     *config.Settings
	settingsPath string // empty when running from defaults only

	radio     *sim.Radio
	scanner   *scan.Scanner
	dns       *dnsserver.Server
	web       *server.Server
	adminWeb  *server.Server
	portal    *portal.Portal
	sup       *supervisor.Supervisor
	metrics   *metrics.Collector
	announcer *discovery.Announcer

	saveMu sync.Mutex
}

// newDaemon wires the components together without starting anything.
func newDaemon(s *config.Settings, settingsPath string, dev *sim.Radio, registry *prometheus.Registry) (*daemon, error) {
	d := &daemon{settings: s, settingsPath: settingsPath, radio: dev}
	clock := clockz.RealClock

	modes := make([]string, len(supervisor.Modes))
	for i, m := range supervisor.Modes {
		modes[i] = m.String()
	}
	collector, err := metrics.New(registry, modes)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	d.metrics = collector

	reg, err := s.Registry()
	if err != nil {
		return nil, err
	}
	apStatic, err := s.AccessPoint.Static.IPConfig()
	if err != nil {
		return nil, fmt.Errorf("access_point.static: %w", err)
	}
	stationStatic, err := s.Station.Static.IPConfig()
	if err != nil {
		return nil, fmt.Errorf("station.static: %w", err)
	}

	host, port, err := splitListen(s.Portal.Listen)
	if err != nil {
		return nil, fmt.Errorf("portal.listen: %w", err)
	}
	d.web = server.New(&server.Config{Host: host, Port: port})
	d.web.SetObserver(collector)

	d.dns = dnsserver.New(s.Portal.DNSListen)

	d.scanner = scan.New(dev, s.Scan.ScanOptions())
	d.scanner.SetObserver(collector)
	d.scanner.SetFaultReporter(d.reportFault)
	d.scanner.SetClock(clock)

	d.portal = portal.New(portal.Config{
		SSID:              s.AccessPoint.SSID,
		Passphrase:        s.AccessPoint.Passphrase,
		Static:            apStatic,
		Port:              port,
		Title:             s.Portal.Title,
		CustomHeadHTML:    s.Portal.CustomHeadHTML,
		CustomOptionsHTML: s.Portal.CustomOptionsHTML,
		ShowStaticFields:  s.Portal.ShowStaticFields,
		ResetDelay:        s.Portal.ResetDelay(),
	}, portal.Deps{
		Device:  dev,
		DNS:     d.dns,
		Router:  d.web,
		Scanner: d.scanner,
		Params:  reg,
		Faults:  d.reportFault,
		Clock:   clock,
	})

	d.sup = supervisor.New(supervisor.Config{
		Credentials:      s.Credentials(),
		StationStatic:    stationStatic,
		ConnectTimeout:   s.Timeouts.ConnectTimeout(),
		RetryInterval:    s.Timeouts.RetryInterval(),
		DrainTimeout:     s.Timeouts.DrainTimeout(),
		LinkLossFallback: s.Timeouts.LinkLossFallback(),
		Clock:            clock,
		Observer:         collector,
		OnAPModeChanged:  d.onAPModeChanged,
		OnConfigSaved:    d.onConfigSaved,
		OnConnected:      d.onConnected,
	}, dev, d.portal, d.scanner)
	d.portal.Attach(d.sup)

	if s.Admin.Listen != "" {
		ahost, aport, err := splitListen(s.Admin.Listen)
		if err != nil {
			return nil, fmt.Errorf("admin.listen: %w", err)
		}
		d.adminWeb = server.New(&server.Config{Host: ahost, Port: aport})
		admin.New(d.sup, collector.Handler(), time.Second).Register(d.adminWeb)
	}

	return d, nil
}

// reportFault forwards to the supervisor once it exists.
func (d *daemon) reportFault(f *radio.Fault) {
	if d.sup != nil {
		d.sup.ReportFault(f)
	}
}

// run starts everything and blocks until ctx is done.
func (d *daemon) run(ctx context.Context) error {
	if err := d.web.Start(); err != nil {
		return fmt.Errorf("failed to start portal listener: %w", err)
	}
	logging.Info("Portal listener started", zap.String("addr", d.web.Addr().String()))

	if d.adminWeb != nil {
		if err := d.adminWeb.Start(); err != nil {
			d.shutdown()
			return fmt.Errorf("failed to start admin listener: %w", err)
		}
		logging.Info("Admin listener started", zap.String("addr", d.adminWeb.Addr().String()))
	}

	if d.settings.Discovery.Announce {
		d.announcer = discovery.NewAnnouncer(d.instanceName(), d.web.Port(), d.announceText())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = supervisor.NewBridge(d.sup).Run(ctx, d.radio.Events())
	}()

	if d.settingsPath != "" {
		updates, err := config.Watch(ctx, d.settingsPath)
		if err != nil {
			logging.Warn("Settings will not be reloaded", zap.Error(err))
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for s := range updates {
					d.apply(s)
				}
			}()
		}
	}

	if d.sup.Start(ctx) {
		logging.Info("Joined station network at startup")
	}

	err := d.sup.Run(ctx)
	d.shutdown()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// apply takes the settings that can change without a restart.
func (d *daemon) apply(s *config.Settings) {
	d.scanner.SetOptions(s.Scan.ScanOptions())
	d.sup.SetRetryInterval(s.Timeouts.RetryInterval())
	logging.Info("Applied reloaded settings",
		zap.Int("minimum_quality", s.Scan.MinimumQuality),
		zap.Duration("retry_interval", s.Timeouts.RetryInterval()),
	)
}

func (d *daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.portal.Deactivate(ctx); err != nil {
		logging.Warn("Failed to deactivate portal", zap.Error(err))
	}
	if d.announcer != nil {
		d.announcer.Close()
	}
	if err := d.web.Shutdown(ctx); err != nil {
		logging.Warn("Portal listener shutdown", zap.Error(err))
	}
	if d.adminWeb != nil {
		if err := d.adminWeb.Shutdown(ctx); err != nil {
			logging.Warn("Admin listener shutdown", zap.Error(err))
		}
	}
	d.radio.Close()
}

func (d *daemon) onAPModeChanged(active bool) {
	logging.Info("Access point state changed", zap.Bool("active", active))
	if d.announcer == nil {
		return
	}
	if active {
		_ = d.announcer.SetStation(false)
		return
	}
	if d.sup.Mode() == supervisor.Station {
		if err := d.announcer.SetStation(true); err != nil {
			logging.Warn("mDNS announcement failed", zap.Error(err))
		}
	}
}

func (d *daemon) onConnected() {
	logging.Info("Connected to station network", zap.String("ssid", d.sup.Credentials().SSID))
	if d.announcer == nil {
		return
	}
	if err := d.announcer.SetStation(true); err != nil {
		logging.Warn("mDNS announcement failed", zap.Error(err))
	}
}

// onConfigSaved persists credentials submitted through the portal.
func (d *daemon) onConfigSaved() {
	if d.settingsPath == "" {
		return
	}
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	creds := d.sup.Credentials()
	d.settings.Station.SSID = creds.SSID
	d.settings.Station.Passphrase = creds.Passphrase
	d.settings.Station.Static = ipSettings(d.sup.StationConfig())

	if err := d.settings.Save(d.settingsPath); err != nil {
		logging.Error("Failed to persist credentials", zap.Error(err))
		return
	}
	logging.Info("Credentials persisted", zap.String("path", d.settingsPath), zap.String("ssid", creds.SSID))
}

func (d *daemon) instanceName() string {
	if d.settings.Discovery.Instance != "" {
		return d.settings.Discovery.Instance
	}
	return "wifiportal-" + d.radio.Info().ChipID
}

func (d *daemon) announceText() []string {
	txt := []string{
		"chip=" + d.radio.Info().ChipID,
		"mode=station",
		"version=" + version.Version,
	}
	if d.adminWeb != nil {
		txt = append(txt, "admin="+strconv.Itoa(d.adminWeb.Port()))
	}
	return txt
}

func ipSettings(cfg radio.IPConfig) *config.IPSettings {
	if !cfg.IsStatic() {
		return nil
	}
	str := func(ip net.IP) string {
		if ip == nil {
			return ""
		}
		return ip.String()
	}
	return &config.IPSettings{
		IP:      str(cfg.IP),
		Gateway: str(cfg.Gateway),
		Subnet:  str(cfg.Subnet),
		DNS1:    str(cfg.DNS1),
		DNS2:    str(cfg.DNS2),
	}
}

func splitListen(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", p)
	}
	return host, port, nil
}

// Package supervisor owns the connection-mode state machine. A single worker
// calls Tick; radio events and portal submissions only set flags that the
// next tick acts on.
package supervisor

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultRetryInterval    = 10 * time.Second
	DefaultDrainTimeout     = 30 * time.Second
	DefaultLinkLossFallback = 60 * time.Second
	DefaultPollInterval     = 10 * time.Millisecond
	DefaultTickInterval     = 100 * time.Millisecond
)

// Portal is the configuration portal as the supervisor sees it.
type Portal interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Active() bool
	SetShutdownDeadline(t time.Time)
}

// Scanner runs one network scan.
type Scanner interface {
	Scan(ctx context.Context) error
}

// Observer receives state machine telemetry; the metrics collector
// implements it.
type Observer interface {
	ObserveTransition(from, to string)
	ObserveConnectAttempt(ok bool)
	ObserveFault(kind string)
}

// Config holds supervisor tuning and callbacks.
type Config struct {
	Credentials   radio.Credentials // empty SSID uses the radio's stored credentials
	StationStatic radio.IPConfig

	// ConnectTimeout bounds the wait for association after a join. Zero
	// falls back to the access point immediately.
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	DrainTimeout   time.Duration
	// LinkLossFallback starts the access point when a lost link has not
	// come back in time. Negative disables it.
	LinkLossFallback time.Duration
	PollInterval     time.Duration
	TickInterval     time.Duration

	Clock    clockz.Clock
	Observer Observer

	// Callbacks run on the tick worker, never under the supervisor lock.
	OnAPModeChanged func(active bool)
	OnConfigSaved   func()
	OnConnected     func()
}

// RetryPolicy schedules reconnection attempts. An Interval of zero means
// retries are disabled.
type RetryPolicy struct {
	Interval    time.Duration
	LastAttempt time.Time
}

// Enabled reports whether retries are scheduled.
func (p RetryPolicy) Enabled() bool {
	return p.Interval > 0
}

type apRequestKind int

const (
	apNone apRequestKind = iota
	apStart
	apStop
)

type apRequest struct {
	kind        apRequestKind
	grace       time.Duration
	requestedAt time.Time
}

// Supervisor is the connection supervisor.
type Supervisor struct {
	cfg     Config
	radio   radio.Station
	portal  Portal
	scanner Scanner
	clock   clockz.Clock

	ticking atomic.Bool

	mu               sync.Mutex
	mode             Mode
	creds            radio.Credentials
	static           radio.IPConfig
	retry            RetryPolicy
	ap               apRequest
	connectRequested bool
	connectedPending bool
	connectedFired   bool
	scanRequested    bool
	linkLostAt       time.Time
	stationIP        net.IP
	lastFault        *radio.Fault
	retryInterval    time.Duration
}

// New builds a supervisor in Idle mode.
func New(cfg Config, r radio.Station, portal Portal, scanner Scanner) *Supervisor {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.LinkLossFallback == 0 {
		cfg.LinkLossFallback = DefaultLinkLossFallback
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}

	return &Supervisor{
		cfg:           cfg,
		radio:         r,
		portal:        portal,
		scanner:       scanner,
		clock:         cfg.Clock,
		mode:          Idle,
		creds:         cfg.Credentials,
		static:        cfg.StationStatic,
		retryInterval: cfg.RetryInterval,
	}
}

// Mode returns the current connection mode.
func (s *Supervisor) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Retry returns the current retry policy.
func (s *Supervisor) Retry() RetryPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retry
}

// Start performs the initial connection attempt and falls back to the
// access point when it fails. It reports whether the station associated.
func (s *Supervisor) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.mode == Idle {
		s.setModeLocked(Connecting, "start")
	}
	creds, static := s.creds, s.static
	s.mu.Unlock()

	return s.attempt(ctx, creds, static)
}

// Connect asks the next tick to re-run the connection attempt with the
// current credentials.
func (s *Supervisor) Connect() {
	s.mu.Lock()
	s.connectRequested = true
	s.mu.Unlock()
}

// RequestConnect stores new credentials and asks the next tick to connect
// with them. A static address, when given, replaces the station config.
func (s *Supervisor) RequestConnect(creds radio.Credentials, static radio.IPConfig) {
	s.mu.Lock()
	s.creds = creds
	if static.IsStatic() {
		s.static = static
	}
	s.connectRequested = true
	s.mu.Unlock()

	logging.Debug("Connect requested", zap.String("ssid", creds.SSID))
}

// ConnectPending reports whether a connect request has not finished yet.
func (s *Supervisor) ConnectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectRequested
}

// RequestScan asks the next tick to scan.
func (s *Supervisor) RequestScan() {
	s.mu.Lock()
	s.scanRequested = true
	s.mu.Unlock()
}

// StartPortal asks the next tick to bring the access point up.
func (s *Supervisor) StartPortal() {
	s.mu.Lock()
	s.ap = apRequest{kind: apStart}
	s.mu.Unlock()
}

// StopPortal asks for the access point to come down once grace has passed.
// A zero grace stops it on the next tick.
func (s *Supervisor) StopPortal(grace time.Duration) {
	now := s.clock.Now()

	s.mu.Lock()
	s.ap = apRequest{kind: apStop, grace: grace, requestedAt: now}
	draining := s.mode == AccessPoint
	if draining {
		s.setModeLocked(AccessPointDraining, "stop requested")
	}
	s.mu.Unlock()

	if draining {
		s.portal.SetShutdownDeadline(now.Add(grace))
	}
}

// StationConfig returns the static station address, if any.
func (s *Supervisor) StationConfig() radio.IPConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.static
}

// Credentials returns the credentials used by the next attempt.
func (s *Supervisor) Credentials() radio.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// SetRetryInterval changes the retry interval used from the next arming.
func (s *Supervisor) SetRetryInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultRetryInterval
	}
	s.mu.Lock()
	s.retryInterval = d
	if s.retry.Enabled() {
		s.retry.Interval = d
	}
	s.mu.Unlock()
}

// ReportFault records f as the most recent fault.
func (s *Supervisor) ReportFault(f *radio.Fault) {
	if f == nil {
		return
	}
	s.mu.Lock()
	s.lastFault = f
	s.mu.Unlock()

	logging.LogFault(f.Kind.String(), f.Message, f.Err)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveFault(f.Kind.String())
	}
}

// LastFault returns the most recent fault, or nil.
func (s *Supervisor) LastFault() *radio.Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFault
}

// Run ticks until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		s.Tick(ctx)

		timer := s.clock.NewTimer(s.cfg.TickInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
}

// Tick evaluates every pending flag once. Each check takes the lock to read
// and clear its flag and releases it before acting. A Tick that starts
// while another is running returns immediately.
func (s *Supervisor) Tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		return
	}
	defer s.ticking.Store(false)

	s.checkConnectRequest(ctx)
	s.checkRetry(ctx)
	s.checkAccessPoint(ctx)
	s.checkConnected(ctx)
	s.checkScan(ctx)
	s.checkLinkLoss(ctx)
}

func (s *Supervisor) checkConnectRequest(ctx context.Context) {
	s.mu.Lock()
	if !s.connectRequested {
		s.mu.Unlock()
		return
	}
	if s.mode == Idle || s.mode == Station {
		s.setModeLocked(Connecting, "connect requested")
	}
	creds, static := s.creds, s.static
	s.mu.Unlock()

	// Drop whatever association is in progress before joining again.
	if err := s.radio.Disconnect(); err != nil {
		logging.Debug("Disconnect before connect failed", zap.Error(err))
	}
	s.attempt(ctx, creds, static)

	s.mu.Lock()
	s.connectRequested = false
	s.mu.Unlock()

	if s.cfg.OnConfigSaved != nil {
		s.cfg.OnConfigSaved()
	}
}

func (s *Supervisor) checkRetry(ctx context.Context) {
	s.mu.Lock()
	if !s.retry.Enabled() || s.clock.Since(s.retry.LastAttempt) < s.retry.Interval {
		s.mu.Unlock()
		return
	}
	s.retry.LastAttempt = s.clock.Now()
	creds := s.creds
	s.mu.Unlock()

	logging.Info("Retrying station connection", zap.String("ssid", creds.SSID))
	if err := s.radio.Disconnect(); err != nil {
		logging.Debug("Disconnect before retry failed", zap.Error(err))
	}
	if err := s.radio.Join(ctx, creds); err != nil {
		logging.Warn("Reconnect failed", zap.Error(err))
	}
	s.observeAttempt(false)
}

func (s *Supervisor) checkAccessPoint(ctx context.Context) {
	s.mu.Lock()
	req := s.ap
	switch req.kind {
	case apStart:
		s.ap = apRequest{}
		s.mu.Unlock()
		s.startPortal(ctx, "start requested")
	case apStop:
		if s.clock.Since(req.requestedAt) < req.grace {
			s.mu.Unlock()
			return
		}
		s.ap = apRequest{}
		s.mu.Unlock()
		s.stopPortal(ctx)
	default:
		s.mu.Unlock()
	}
}

func (s *Supervisor) checkConnected(ctx context.Context) {
	s.mu.Lock()
	if !s.connectedPending {
		s.mu.Unlock()
		return
	}
	s.connectedPending = false
	if s.connectedFired {
		s.mu.Unlock()
		return
	}
	s.connectedFired = true
	if s.mode == Idle || s.mode == Connecting {
		s.setModeLocked(Station, "got ip")
	}
	s.mu.Unlock()

	if s.portal.Active() {
		s.StopPortal(s.cfg.DrainTimeout)
	}
	if s.cfg.OnConnected != nil {
		s.cfg.OnConnected()
	}
}

func (s *Supervisor) checkScan(ctx context.Context) {
	s.mu.Lock()
	if !s.scanRequested {
		s.mu.Unlock()
		return
	}
	s.scanRequested = false
	s.mu.Unlock()

	if s.scanner != nil {
		_ = s.scanner.Scan(ctx)
	}
}

func (s *Supervisor) checkLinkLoss(ctx context.Context) {
	s.mu.Lock()
	if s.linkLostAt.IsZero() || s.cfg.LinkLossFallback < 0 || s.mode != Connecting ||
		s.clock.Since(s.linkLostAt) < s.cfg.LinkLossFallback {
		s.mu.Unlock()
		return
	}
	s.linkLostAt = time.Time{}
	s.mu.Unlock()

	s.ReportFault(radio.NewFault(radio.FaultConnectionTimeout, "link did not come back", nil))
	s.startPortal(ctx, "link loss fallback")
}

// attempt joins and waits up to the connect timeout. On failure it arms the
// retry timer and brings the portal up.
func (s *Supervisor) attempt(ctx context.Context, creds radio.Credentials, static radio.IPConfig) bool {
	s.mu.Lock()
	s.connectedFired = false
	s.mu.Unlock()

	if static.IsStatic() {
		if err := s.radio.ConfigureStation(static); err != nil {
			logging.Warn("Failed to apply static station address", zap.Error(err))
		}
	}

	logging.Info("Connecting to station network",
		zap.String("ssid", creds.SSID),
		zap.Duration("timeout", s.cfg.ConnectTimeout),
	)
	if err := s.radio.Join(ctx, creds); err != nil {
		logging.Warn("Join failed", zap.Error(err))
	}

	if s.waitForConnect(ctx) {
		s.observeAttempt(true)
		s.mu.Lock()
		s.retry = RetryPolicy{}
		s.linkLostAt = time.Time{}
		if s.mode == Idle || s.mode == Connecting {
			s.setModeLocked(Station, "associated")
		}
		s.mu.Unlock()
		return true
	}

	s.observeAttempt(false)
	s.ReportFault(radio.NewFault(radio.FaultConnectionTimeout,
		"no association within "+s.cfg.ConnectTimeout.String(), nil))

	s.mu.Lock()
	s.retry = RetryPolicy{Interval: s.retryInterval, LastAttempt: s.clock.Now()}
	s.mu.Unlock()

	s.startPortal(ctx, "connect timeout")
	return false
}

func (s *Supervisor) waitForConnect(ctx context.Context) bool {
	if s.radio.Connected() {
		return true
	}
	if s.cfg.ConnectTimeout <= 0 {
		return false
	}

	deadline := s.clock.Now().Add(s.cfg.ConnectTimeout)
	for s.clock.Now().Before(deadline) {
		timer := s.clock.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C():
		}
		if s.radio.Connected() {
			return true
		}
	}
	return false
}

func (s *Supervisor) startPortal(ctx context.Context, reason string) {
	if s.portal.Active() {
		s.mu.Lock()
		cancelled := s.ap.kind == apStop || s.mode == AccessPointDraining
		if s.ap.kind == apStop {
			s.ap = apRequest{}
		}
		if s.mode == AccessPointDraining {
			s.setModeLocked(AccessPoint, "drain cancelled")
		}
		s.mu.Unlock()

		if cancelled {
			s.portal.SetShutdownDeadline(time.Time{})
		}
		return
	}

	if s.scanner != nil {
		_ = s.scanner.Scan(ctx)
	}
	if err := s.portal.Activate(ctx); err != nil {
		logging.Error("Failed to start portal", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.setModeLocked(AccessPoint, reason)
	creds := s.creds
	s.mu.Unlock()

	// Keep trying the station side while the AP is up.
	if !s.radio.Connected() {
		if err := s.radio.Join(ctx, creds); err != nil {
			logging.Debug("Background join failed", zap.Error(err))
		}
	}

	if s.cfg.OnAPModeChanged != nil {
		s.cfg.OnAPModeChanged(true)
	}
}

func (s *Supervisor) stopPortal(ctx context.Context) {
	if !s.portal.Active() {
		return
	}
	if err := s.portal.Deactivate(ctx); err != nil {
		logging.Error("Failed to stop portal", zap.Error(err))
	}

	connected := s.radio.Connected()
	s.mu.Lock()
	switch {
	case connected:
		s.setModeLocked(Station, "access point stopped")
	case s.retry.Enabled():
		s.setModeLocked(Connecting, "access point stopped")
		if s.linkLostAt.IsZero() {
			s.linkLostAt = s.clock.Now()
		}
	default:
		s.setModeLocked(Idle, "access point stopped")
	}
	s.mu.Unlock()

	if s.cfg.OnAPModeChanged != nil {
		s.cfg.OnAPModeChanged(false)
	}
}

func (s *Supervisor) setModeLocked(to Mode, reason string) {
	from := s.mode
	if from == to {
		return
	}
	s.mode = to
	logging.LogModeTransition(from.String(), to.String(), reason)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveTransition(from.String(), to.String())
	}
}

func (s *Supervisor) observeAttempt(ok bool) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveConnectAttempt(ok)
	}
}

// Snapshot is a point-in-time view for status endpoints and the monitor.
type Snapshot struct {
	Mode           Mode       `json:"mode"`
	Connected      bool       `json:"connected"`
	SSID           string     `json:"ssid,omitempty"`
	StationIP      string     `json:"station_ip,omitempty"`
	PortalActive   bool       `json:"portal_active"`
	ConnectPending bool       `json:"connect_pending"`
	RetryEnabled   bool       `json:"retry_enabled"`
	NextRetry      *time.Time `json:"next_retry,omitempty"`
	LastFault      string     `json:"last_fault,omitempty"`
	At             time.Time  `json:"at"`
}

// Snapshot returns the current state.
func (s *Supervisor) Snapshot() Snapshot {
	connected := s.radio.Connected()
	portalActive := s.portal.Active()
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Mode:           s.mode,
		Connected:      connected,
		SSID:           s.creds.SSID,
		PortalActive:   portalActive,
		ConnectPending: s.connectRequested,
		RetryEnabled:   s.retry.Enabled(),
		At:             now,
	}
	if s.stationIP != nil {
		snap.StationIP = s.stationIP.String()
	}
	if s.retry.Enabled() {
		next := s.retry.LastAttempt.Add(s.retry.Interval)
		snap.NextRetry = &next
	}
	if s.lastFault != nil {
		snap.LastFault = s.lastFault.Error()
	}
	return snap
}

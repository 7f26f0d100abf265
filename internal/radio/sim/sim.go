// Package sim is an in-memory radio used by tests and by `wifiportal run
// --simulate`. Joins complete instantly (or after JoinDelay) and emit the same
// events a hardware driver would.
package sim

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultAPAddr is used when the AP config has no static address.
var DefaultAPAddr = net.IPv4(192, 168, 4, 1)

// NetworkSpec describes one simulated network.
type NetworkSpec struct {
	SSID       string `yaml:"ssid"`
	BSSID      string `yaml:"bssid,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"`
	RSSI       int    `yaml:"rssi"`
	Channel    int    `yaml:"channel,omitempty"`
	Hidden     bool   `yaml:"hidden,omitempty"`
	OutOfRange bool   `yaml:"out_of_range,omitempty"` // neither visible nor joinable
}

// File is the YAML layout read by Load.
type File struct {
	ChipID    string        `yaml:"chip_id,omitempty"`
	Hostname  string        `yaml:"hostname,omitempty"`
	JoinDelay string        `yaml:"join_delay,omitempty"` // Go duration, e.g. "2s"
	Stored    *StoredCreds  `yaml:"stored,omitempty"`
	Networks  []NetworkSpec `yaml:"networks"`
}

// StoredCreds are the credentials the simulated driver "remembers".
type StoredCreds struct {
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase,omitempty"`
}

// Counters records calls for assertions in tests.
type Counters struct {
	Joins       int
	Disconnects int
	APEnables   int
	APDisables  int
	Scans       int
	Restarts    int
}

// Radio implements radio.Radio in memory.
type Radio struct {
	mu sync.Mutex

	chipID    string
	hostname  string
	joinDelay time.Duration
	networks  []NetworkSpec
	stored    radio.Credentials

	status    radio.Status
	connected bool
	ssid      string
	staCfg    radio.IPConfig
	staIP     net.IP

	ap   *radio.APConfig
	apIP net.IP

	results     []radio.Network
	forcedScans []int

	pendingJoin *time.Timer
	counters    Counters

	events chan radio.Event
	closed bool
}

// New returns a simulated radio that can see the given networks.
func New(networks ...NetworkSpec) *Radio {
	return &Radio{
		chipID:   "1A2B3C",
		hostname: "wifiportal",
		networks: networks,
		status:   radio.StatusIdle,
		events:   make(chan radio.Event, 32),
	}
}

// Load builds a simulated radio from a YAML network file.
func Load(path string) (*Radio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse network file: %w", err)
	}

	r := New(f.Networks...)
	if f.ChipID != "" {
		r.chipID = f.ChipID
	}
	if f.Hostname != "" {
		r.hostname = f.Hostname
	}
	if f.Stored != nil {
		r.stored = radio.Credentials{SSID: f.Stored.SSID, Passphrase: f.Stored.Passphrase}
	}
	if f.JoinDelay != "" {
		d, err := time.ParseDuration(f.JoinDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid join_delay %q: %w", f.JoinDelay, err)
		}
		r.joinDelay = d
	}
	return r, nil
}

// SetJoinDelay makes successful joins associate after d.
func (r *Radio) SetJoinDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinDelay = d
}

// SetStored replaces the remembered credentials.
func (r *Radio) SetStored(creds radio.Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = creds
}

// SetNetworks replaces the simulated environment.
func (r *Radio) SetNetworks(networks ...NetworkSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks = networks
}

// ForceScanResult queues a count to return from the next ScanNetworks call,
// typically radio.ScanFailed or radio.ScanRunning.
func (r *Radio) ForceScanResult(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forcedScans = append(r.forcedScans, n)
}

// DropLink simulates the access point going away.
func (r *Radio) DropLink(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return
	}
	r.connected = false
	r.status = radio.StatusConnectionLost
	r.staIP = nil
	r.emitLocked(radio.Event{Type: radio.EventDisassociated, SSID: r.ssid, Reason: reason})
}

// Counters returns a copy of the call counters.
func (r *Radio) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// Close closes the event channel.
func (r *Radio) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.pendingJoin != nil {
		r.pendingJoin.Stop()
	}
	close(r.events)
}

func (r *Radio) Join(ctx context.Context, creds radio.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Joins++
	if creds.SSID == "" {
		creds = r.stored
	}
	if creds.SSID == "" {
		r.status = radio.StatusNoSSID
		return fmt.Errorf("no stored credentials")
	}

	r.stored = creds
	r.ssid = creds.SSID

	spec, ok := r.lookupLocked(creds.SSID)
	switch {
	case !ok:
		r.status = radio.StatusNoSSID
		logging.Debug("Simulated join: network not in range", zap.String("ssid", creds.SSID))
		return nil
	case spec.Passphrase != creds.Passphrase:
		r.status = radio.StatusConnectFailed
		logging.Debug("Simulated join: wrong passphrase", zap.String("ssid", creds.SSID))
		return nil
	}

	if r.pendingJoin != nil {
		r.pendingJoin.Stop()
		r.pendingJoin = nil
	}
	if r.joinDelay <= 0 {
		r.associateLocked()
		return nil
	}

	r.status = radio.StatusDisconnected
	r.pendingJoin = time.AfterFunc(r.joinDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.pendingJoin = nil
		if !r.closed && r.ssid == creds.SSID {
			r.associateLocked()
		}
	})
	return nil
}

func (r *Radio) associateLocked() {
	r.connected = true
	r.status = radio.StatusConnected
	if r.staCfg.IsStatic() {
		r.staIP = r.staCfg.IP
	} else {
		r.staIP = net.IPv4(192, 168, 1, 50)
	}
	r.emitLocked(radio.Event{Type: radio.EventAssociated, SSID: r.ssid})
	r.emitLocked(radio.Event{Type: radio.EventGotIP, SSID: r.ssid, IP: r.staIP})
}

func (r *Radio) lookupLocked(ssid string) (NetworkSpec, bool) {
	for _, n := range r.networks {
		if n.SSID == ssid && !n.OutOfRange {
			return n, true
		}
	}
	return NetworkSpec{}, false
}

func (r *Radio) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Disconnects++
	if r.pendingJoin != nil {
		r.pendingJoin.Stop()
		r.pendingJoin = nil
	}
	if r.connected {
		r.connected = false
		r.staIP = nil
		r.emitLocked(radio.Event{Type: radio.EventDisassociated, SSID: r.ssid, Reason: "requested"})
	}
	r.status = radio.StatusDisconnected
	return nil
}

func (r *Radio) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Radio) Status() radio.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Radio) ConfigureStation(cfg radio.IPConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staCfg = cfg
	return nil
}

func (r *Radio) EnableAP(ctx context.Context, cfg radio.APConfig) (net.IP, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.APEnables++
	c := cfg
	r.ap = &c
	if cfg.Static.IsStatic() {
		r.apIP = cfg.Static.IP
	} else {
		r.apIP = DefaultAPAddr
	}
	return r.apIP, nil
}

func (r *Radio) DisableAP() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.APDisables++
	r.ap = nil
	r.apIP = nil
	return nil
}

func (r *Radio) APAddr() net.IP {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apIP
}

// APConfig returns the active AP configuration, or nil when the AP is down.
func (r *Radio) APConfig() *radio.APConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ap == nil {
		return nil
	}
	c := *r.ap
	return &c
}

func (r *Radio) ScanNetworks(ctx context.Context) int {
	if ctx.Err() != nil {
		return radio.ScanFailed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Scans++
	if len(r.forcedScans) > 0 {
		n := r.forcedScans[0]
		r.forcedScans = r.forcedScans[1:]
		if n < 0 {
			return n
		}
	}

	r.results = r.results[:0]
	for _, n := range r.networks {
		if n.OutOfRange {
			continue
		}
		r.results = append(r.results, radio.Network{
			SSID:      n.SSID,
			BSSID:     n.BSSID,
			RSSI:      n.RSSI,
			Channel:   n.Channel,
			Encrypted: n.Passphrase != "",
			Hidden:    n.Hidden,
		})
	}
	return len(r.results)
}

func (r *Radio) ScanResult(i int) (radio.Network, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.results) {
		return radio.Network{}, false
	}
	return r.results[i], true
}

func (r *Radio) ScanDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = nil
}

func (r *Radio) Info() radio.Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := radio.Info{
		ChipID:     r.chipID,
		Hostname:   r.hostname,
		APIP:       r.apIP,
		APMAC:      "02:00:00:00:00:01",
		StationMAC: "02:00:00:00:00:02",
	}
	if r.ap != nil {
		info.APSSID = r.ap.SSID
	}
	if r.connected {
		info.StationSSID = r.ssid
		info.StationIP = r.staIP
	}
	return info
}

func (r *Radio) Restart() error {
	r.mu.Lock()
	r.counters.Restarts++
	r.mu.Unlock()

	logging.Info("Simulated restart")
	_ = r.Disconnect()
	return r.DisableAP()
}

func (r *Radio) Events() <-chan radio.Event {
	return r.events
}

func (r *Radio) emitLocked(ev radio.Event) {
	if r.closed {
		return
	}
	ev.At = time.Now()
	select {
	case r.events <- ev:
	default:
		logging.Warn("Simulated radio event dropped", zap.Stringer("event", ev.Type))
	}
}

var _ radio.Radio = (*Radio)(nil)

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/wifiportal/internal/params"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/scan"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the settings schema version written by Save.
const CurrentVersion = 1

// fileMutex serialises writes to settings files.
var fileMutex sync.Mutex

// Settings is the whole settings file.
type Settings struct {
	Version     int             `yaml:"version"`
	AccessPoint AccessPoint     `yaml:"access_point"`
	Station     Station         `yaml:"station"`
	Timeouts    Timeouts        `yaml:"timeouts"`
	Scan        ScanSettings    `yaml:"scan"`
	Portal      PortalSettings  `yaml:"portal"`
	Parameters  []ParameterSpec `yaml:"parameters,omitempty"`
	Admin       AdminSettings   `yaml:"admin"`
	Discovery   Discovery       `yaml:"discovery"`
	Log         LogSettings     `yaml:"log"`
}

// AccessPoint configures the configuration access point.
type AccessPoint struct {
	SSID       string      `yaml:"ssid"`
	Passphrase string      `yaml:"passphrase,omitempty"` // empty or 8..63 bytes
	Static     *IPSettings `yaml:"static,omitempty"`
}

// Station holds the network to join at startup. An empty SSID means use
// whatever the radio has stored.
type Station struct {
	SSID       string      `yaml:"ssid,omitempty"`
	Passphrase string      `yaml:"passphrase,omitempty"`
	Static     *IPSettings `yaml:"static,omitempty"`
}

// IPSettings is a static IPv4 assignment.
type IPSettings struct {
	IP      string `yaml:"ip"`
	Gateway string `yaml:"gateway"`
	Subnet  string `yaml:"subnet"`
	DNS1    string `yaml:"dns1,omitempty"`
	DNS2    string `yaml:"dns2,omitempty"`
}

// Timeouts are in milliseconds.
type Timeouts struct {
	ConnectMS  int `yaml:"connect_ms"`
	RetryMS    int `yaml:"retry_ms"`
	DrainMS    int `yaml:"drain_ms"`
	LinkLossMS int `yaml:"link_loss_ms"` // negative disables the link-loss fallback
}

// ScanSettings controls result canonicalisation.
type ScanSettings struct {
	RemoveDuplicates bool `yaml:"remove_duplicates"`
	MinimumQuality   int  `yaml:"minimum_quality"` // -1 disables filtering
}

// PortalSettings configures the HTTP and DNS side of the portal.
type PortalSettings struct {
	Listen            string `yaml:"listen"`
	DNSListen         string `yaml:"dns_listen"`
	Title             string `yaml:"title,omitempty"`
	CustomHeadHTML    string `yaml:"custom_head_html,omitempty"`
	CustomOptionsHTML string `yaml:"custom_options_html,omitempty"`
	ShowStaticFields  bool   `yaml:"show_static_fields"`
	ResetDelayMS      int    `yaml:"reset_delay_ms"`
}

// ParameterSpec declares a custom form field. A spec with only HTML set is
// rendered verbatim.
type ParameterSpec struct {
	ID        string `yaml:"id,omitempty"`
	Label     string `yaml:"label,omitempty"`
	Default   string `yaml:"default,omitempty"`
	MaxLength int    `yaml:"max_length,omitempty"`
	Custom    string `yaml:"custom,omitempty"`
	HTML      string `yaml:"html,omitempty"`
}

// AdminSettings configures the metrics/status listener. Empty disables it.
type AdminSettings struct {
	Listen string `yaml:"listen,omitempty"`
}

// Discovery controls the mDNS announcement made on the station network.
type Discovery struct {
	Announce bool   `yaml:"announce"`
	Instance string `yaml:"instance,omitempty"` // defaults to wifiportal-<chip id>
}

// LogSettings configures logging.
type LogSettings struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// Default returns settings that bring up an open "wifiportal" access point
// on port 80 with a wildcard DNS responder on port 53.
func Default() *Settings {
	return &Settings{
		Version: CurrentVersion,
		AccessPoint: AccessPoint{
			SSID: "wifiportal",
		},
		Timeouts: Timeouts{
			ConnectMS:  10000,
			RetryMS:    10000,
			DrainMS:    30000,
			LinkLossMS: 60000,
		},
		Scan: ScanSettings{
			RemoveDuplicates: true,
			MinimumQuality:   scan.NoFilter,
		},
		Portal: PortalSettings{
			Listen:       ":80",
			DNSListen:    ":53",
			ResetDelayMS: 5000,
		},
		Discovery: Discovery{
			Announce: true,
		},
	}
}

// Load reads settings from path, or from the default location when path is
// empty. A missing file yields Default().
func Load(path string) (*Settings, error) {
	path, err := ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes settings over the defaults, so omitted keys keep their
// default values.
func Parse(data []byte) (*Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if s.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", s.Version, CurrentVersion)
	}
	return s, nil
}

// Save writes the settings to path (or the default location) atomically.
func (s *Settings) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	path, err := ResolvePath(path)
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	header := []byte("# wifiportal settings\n# Durations are in milliseconds.\n#\n# Location: " + path + "\n\n")
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// Validate reports every problem found; an empty result means the settings
// are usable. A bad access point passphrase is reported here even though the
// portal would still come up open.
func (s *Settings) Validate() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Version != CurrentVersion {
		add("version: unsupported %d", s.Version)
	}
	if s.AccessPoint.SSID == "" || len(s.AccessPoint.SSID) > 32 {
		add("access_point.ssid: must be 1 to 32 bytes")
	}
	if n := len(s.AccessPoint.Passphrase); n > 0 && (n < 8 || n > 63) {
		add("access_point.passphrase: must be empty or 8 to 63 bytes, got %d", n)
	}
	if len(s.Station.SSID) > 32 {
		add("station.ssid: must be at most 32 bytes")
	}
	if _, err := s.AccessPoint.Static.IPConfig(); err != nil {
		add("access_point.static: %v", err)
	}
	if _, err := s.Station.Static.IPConfig(); err != nil {
		add("station.static: %v", err)
	}
	if s.Timeouts.ConnectMS < 0 {
		add("timeouts.connect_ms: must not be negative")
	}
	if s.Timeouts.RetryMS < 0 {
		add("timeouts.retry_ms: must not be negative")
	}
	if s.Timeouts.DrainMS < 0 {
		add("timeouts.drain_ms: must not be negative")
	}
	if q := s.Scan.MinimumQuality; q != scan.NoFilter && (q < 0 || q > 100) {
		add("scan.minimum_quality: must be -1 or 0 to 100, got %d", q)
	}
	if _, _, err := net.SplitHostPort(s.Portal.Listen); err != nil {
		add("portal.listen: %v", err)
	}
	if _, _, err := net.SplitHostPort(s.Portal.DNSListen); err != nil {
		add("portal.dns_listen: %v", err)
	}
	if s.Admin.Listen != "" {
		if _, _, err := net.SplitHostPort(s.Admin.Listen); err != nil {
			add("admin.listen: %v", err)
		}
	}
	if len(s.Parameters) > params.DefaultCapacity {
		add("parameters: at most %d allowed, got %d", params.DefaultCapacity, len(s.Parameters))
	}
	seen := make(map[string]bool)
	for i, p := range s.Parameters {
		if p.ID == "" && p.HTML == "" {
			add("parameters[%d]: needs an id or html", i)
		}
		if p.ID != "" {
			if seen[p.ID] {
				add("parameters[%d]: duplicate id %q", i, p.ID)
			}
			seen[p.ID] = true
		}
	}
	return errs
}

// IPConfig parses the settings into a radio static assignment.
func (ip *IPSettings) IPConfig() (radio.IPConfig, error) {
	var cfg radio.IPConfig
	if ip == nil {
		return cfg, nil
	}
	fields := []struct {
		name     string
		value    string
		dst      *net.IP
		required bool
	}{
		{"ip", ip.IP, &cfg.IP, true},
		{"gateway", ip.Gateway, &cfg.Gateway, true},
		{"subnet", ip.Subnet, &cfg.Subnet, true},
		{"dns1", ip.DNS1, &cfg.DNS1, false},
		{"dns2", ip.DNS2, &cfg.DNS2, false},
	}
	for _, f := range fields {
		if f.value == "" {
			if f.required {
				return radio.IPConfig{}, fmt.Errorf("%s is required", f.name)
			}
			continue
		}
		parsed := net.ParseIP(f.value).To4()
		if parsed == nil {
			return radio.IPConfig{}, fmt.Errorf("%s: %q is not an IPv4 address", f.name, f.value)
		}
		*f.dst = parsed
	}
	return cfg, nil
}

// Credentials returns the configured station credentials.
func (s *Settings) Credentials() radio.Credentials {
	return radio.Credentials{SSID: s.Station.SSID, Passphrase: s.Station.Passphrase}
}

// ConnectTimeout returns timeouts.connect_ms as a duration.
func (t Timeouts) ConnectTimeout() time.Duration { return ms(t.ConnectMS) }

// RetryInterval returns timeouts.retry_ms as a duration.
func (t Timeouts) RetryInterval() time.Duration { return ms(t.RetryMS) }

// DrainTimeout returns timeouts.drain_ms as a duration.
func (t Timeouts) DrainTimeout() time.Duration { return ms(t.DrainMS) }

// LinkLossFallback returns timeouts.link_loss_ms as a duration.
func (t Timeouts) LinkLossFallback() time.Duration { return ms(t.LinkLossMS) }

// ResetDelay returns portal.reset_delay_ms as a duration.
func (p PortalSettings) ResetDelay() time.Duration { return ms(p.ResetDelayMS) }

// ScanOptions converts the scan section.
func (s ScanSettings) ScanOptions() scan.Options {
	return scan.Options{RemoveDuplicates: s.RemoveDuplicates, MinimumQuality: s.MinimumQuality}
}

// Registry builds a parameter registry holding the declared fields.
func (s *Settings) Registry() (*params.Registry, error) {
	reg := params.NewRegistry(params.DefaultCapacity)
	for _, p := range s.Parameters {
		var f *params.Field
		if p.ID == "" {
			f = params.NewHTML(p.HTML)
		} else {
			f = params.NewField(p.ID, p.Label, p.Default, p.MaxLength, p.Custom)
		}
		if err := reg.Add(f); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.ID, err)
		}
	}
	return reg, nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muurk/wifiportal/internal/scan"
)

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(dir, "wifiportal") {
		t.Errorf("GetConfigDir() = %v, should contain 'wifiportal'", dir)
	}

	path, err := ResolvePath("")
	if err != nil {
		t.Fatalf("ResolvePath() error = %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("ResolvePath(\"\") = %v, want config.yaml", path)
	}
	if got, _ := ResolvePath("/etc/wifiportal.yaml"); got != "/etc/wifiportal.yaml" {
		t.Errorf("ResolvePath() = %v", got)
	}
}

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	if errs := s.Validate(); len(errs) != 0 {
		t.Fatalf("Default().Validate() = %v", errs)
	}
	if s.Timeouts.RetryInterval() != 10*time.Second {
		t.Errorf("RetryInterval() = %v", s.Timeouts.RetryInterval())
	}
	if s.Timeouts.DrainTimeout() != 30*time.Second {
		t.Errorf("DrainTimeout() = %v", s.Timeouts.DrainTimeout())
	}
	if s.Scan.MinimumQuality != scan.NoFilter {
		t.Errorf("MinimumQuality = %d", s.Scan.MinimumQuality)
	}
}

func TestParseKeepsDefaults(t *testing.T) {
	s, err := Parse([]byte(`
version: 1
access_point:
  ssid: Setup-1A2B
station:
  ssid: home
  passphrase: homepass1
  static:
    ip: 192.168.1.80
    gateway: 192.168.1.1
    subnet: 255.255.255.0
scan:
  minimum_quality: 20
parameters:
  - id: mqtt
    label: MQTT server
    default: broker.local
    max_length: 40
  - html: "<p>Extra</p>"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Portal.Listen != ":80" || s.Timeouts.ConnectMS != 10000 {
		t.Errorf("defaults lost: listen=%q connect=%d", s.Portal.Listen, s.Timeouts.ConnectMS)
	}
	if !s.Scan.RemoveDuplicates {
		t.Error("remove_duplicates default lost")
	}
	if s.Credentials().SSID != "home" {
		t.Errorf("Credentials() = %+v", s.Credentials())
	}
	ip, err := s.Station.Static.IPConfig()
	if err != nil || ip.IP.String() != "192.168.1.80" || ip.DNS1 != nil {
		t.Errorf("IPConfig() = %+v, %v", ip, err)
	}

	reg, err := s.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("Registry().Len() = %d, want 2", reg.Len())
	}
	if f, ok := reg.Lookup("mqtt"); !ok || f.Value() != "broker.local" {
		t.Errorf("Lookup(mqtt) = %v, %v", f, ok)
	}
}

func TestParseRejectsVersion(t *testing.T) {
	if _, err := Parse([]byte("version: 2\n")); err == nil {
		t.Error("Parse() accepted version 2")
	}
	if _, err := Parse([]byte("version: [\n")); err == nil {
		t.Error("Parse() accepted malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"short passphrase", func(s *Settings) { s.AccessPoint.Passphrase = "short" }, "access_point.passphrase"},
		{"long passphrase", func(s *Settings) { s.AccessPoint.Passphrase = strings.Repeat("x", 64) }, "access_point.passphrase"},
		{"empty ap ssid", func(s *Settings) { s.AccessPoint.SSID = "" }, "access_point.ssid"},
		{"bad static", func(s *Settings) {
			s.Station.Static = &IPSettings{IP: "10.0.0.300", Gateway: "10.0.0.1", Subnet: "255.0.0.0"}
		}, "station.static"},
		{"missing gateway", func(s *Settings) {
			s.AccessPoint.Static = &IPSettings{IP: "10.0.0.1", Subnet: "255.0.0.0"}
		}, "access_point.static"},
		{"negative retry", func(s *Settings) { s.Timeouts.RetryMS = -1 }, "timeouts.retry_ms"},
		{"quality out of range", func(s *Settings) { s.Scan.MinimumQuality = 101 }, "scan.minimum_quality"},
		{"listen without port", func(s *Settings) { s.Portal.Listen = "0.0.0.0" }, "portal.listen"},
		{"duplicate parameter", func(s *Settings) {
			s.Parameters = []ParameterSpec{{ID: "a"}, {ID: "a"}}
		}, "duplicate id"},
		{"empty parameter", func(s *Settings) { s.Parameters = []ParameterSpec{{}} }, "needs an id or html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			errs := s.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want one error", errs)
			}
			if !strings.Contains(errs[0].Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", errs[0], tt.want)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	s := Default()
	s.Station.SSID = "home"
	s.Timeouts.LinkLossMS = -1
	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Station.SSID != "home" || loaded.Timeouts.LinkLossFallback() >= 0 {
		t.Errorf("Load() = %+v", loaded)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.AccessPoint.SSID != "wifiportal" {
		t.Errorf("Load() of missing file = %+v, want defaults", s.AccessPoint)
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Default().Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := Watch(ctx, path)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	next := Default()
	next.Scan.MinimumQuality = 40
	if err := next.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.Scan.MinimumQuality == 40 {
				cancel()
				for range updates {
				}
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

package logging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSilentWithoutLevel(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(Options{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent when no level is set")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifiportal.log")
	if err := Initialize(Options{Level: "info", File: path, DisableConsole: true}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer SetLogger(nil)

	Info("portal up", zap.String("ssid", "wifiportal"))
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}
}

func TestHelpersUseFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogModeTransition("connecting", "access_point", "connect timeout")
	LogFault("scan", "scan did not complete", errors.New("busy"))
	LogRadioEvent("associated", zap.String("ssid", "home"))

	if logs.Len() != 3 {
		t.Fatalf("got %d entries, want 3", logs.Len())
	}
	first := logs.All()[0].ContextMap()
	if first["from"] != "connecting" || first["to"] != "access_point" {
		t.Errorf("transition fields = %v", first)
	}
	fault := logs.All()[1]
	if fault.Level != zapcore.WarnLevel || fault.ContextMap()["kind"] != "scan" {
		t.Errorf("fault entry = %+v", fault)
	}
}

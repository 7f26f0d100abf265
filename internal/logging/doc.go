// Package logging provides structured logging for the wifiportal daemon and CLI.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used throughout the project: connection-mode transitions,
// portal HTTP requests, radio events and faults.
//
// # Log Levels
//
//   - Debug: Per-tick decisions, DNS queries, scan entries
//   - Info: Mode transitions, portal activation, saved credentials
//   - Warn: Faults (scan failures, connect timeouts, rejected passphrases)
//   - Error: Listener failures and other startup problems
//
// # Configuration
//
// Logging is silent unless a level is given, either explicitly or through the
// WIFIPORTAL_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize(logging.Options{Level: "debug"}); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When Options.File is set, entries are also written to a size-rotated file
// (lumberjack). The monitor UI uses this to keep stdout clear.
//
// # Structured Logging
//
//	logging.Info("Portal activated",
//	    zap.String("ssid", "ESP-1A2B3C"),
//	    zap.String("ip", "192.168.4.1"),
//	)
//
//	logging.LogModeTransition("connecting", "access_point", "connect timeout")
package logging

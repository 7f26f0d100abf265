// Package config loads, validates and saves the wifiportal settings file.
//
// The settings file is YAML and lives in the platform configuration
// directory unless a path is given explicitly:
//   - Linux: $XDG_CONFIG_HOME/wifiportal/config.yaml or $HOME/.config/wifiportal/config.yaml
//   - macOS: $HOME/.config/wifiportal/config.yaml
//   - Windows: %LOCALAPPDATA%\wifiportal\config.yaml
//
// Durations are stored in milliseconds so the file reads the same way the
// portal's retry and drain intervals are documented.
//
// # Usage Example
//
//	settings, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if errs := settings.Validate(); len(errs) > 0 {
//	    log.Fatal(errs[0])
//	}
//
//	w, err := config.Watch(ctx, path)
//	for s := range w.Updates() {
//	    scanner.SetMinimumQuality(s.Scan.MinimumQuality)
//	}
//
// # Security
//
// The station passphrase may be stored in this file. Save writes it with
// user-only permissions (0600) inside a 0700 directory.
package config

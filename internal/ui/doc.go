// Package ui renders terminal output for the wifiportal commands.
//
// It has two parts: a live Bubble Tea monitor for "wifiportal run --monitor"
// that polls the supervisor snapshot, and static boxes (headers, success and
// failure results) printed by wifiportal-cfg.
//
// # Monitor
//
//	m := ui.NewMonitor(sup, sup, time.Second)
//	_, err := tea.NewProgram(m).Run()
//
// Keys: s requests a scan, p starts the access point, q quits.
//
// # Result boxes
//
//	ui.NewPrinter(nil).Println(ui.NewSuccessResult("Credentials sent", details).Render())
package ui

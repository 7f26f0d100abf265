// Package discovery announces wifiportal devices over mDNS once they have
// joined a station network, and finds announced devices from a workstation.
//
// Devices register the "_wifiportal._tcp" service with TXT records:
//
//	chip=1A2B3C        chip identifier
//	mode=station       connection mode at announcement time
//	version=v0.3.0     daemon version
//	admin=9090         admin listener port, when enabled
//
// # Browsing
//
//	browser := discovery.NewBrowser()
//	browser.Timeout = 5 * time.Second
//	devices, err := browser.Browse(ctx)
//
// # Announcing
//
//	a := discovery.NewAnnouncer("wifiportal-1A2B3C", 80, txt)
//	a.SetStation(true)  // registers
//	a.SetStation(false) // withdraws
package discovery

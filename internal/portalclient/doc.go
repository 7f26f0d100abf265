// Package portalclient talks to a running wifiportal configuration portal
// over HTTP, the same way a phone's browser would.
//
// It submits station credentials to /wifisave, reads the visible network
// list from /wifi and the diagnostics from /i. Requests that fail with
// network errors or 5xx responses are retried with exponential backoff;
// the portal answers 503 while a connection attempt is in progress.
//
// # Usage Example
//
//	client := portalclient.NewClient("192.168.4.1", 80)
//
//	if err := client.Ping(ctx); err != nil {
//	    fmt.Println(portalclient.GetTroubleshootingHint(err))
//	}
//
//	req := &portalclient.ProvisionRequest{SSID: "home", Passphrase: "homepass1"}
//	if errs := req.Validate(); len(errs) > 0 {
//	    log.Fatal(errs[0])
//	}
//	if err := client.Provision(ctx, req); err != nil {
//	    log.Fatal(err)
//	}
package portalclient

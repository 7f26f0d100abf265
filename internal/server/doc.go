// Package server is the portal's HTTP listener.
//
// Unlike http.ServeMux, the route table can shrink: the configuration portal
// registers its pages when the access point comes up and removes them when it
// goes down, so the same listener can serve nothing at all while the device
// is on its station network.
//
// # Routing
//
// Dispatch is by exact path. A route may restrict methods; a request with a
// registered path but another method gets 405. Unknown paths go to the
// not-found handler when one is set, otherwise to a plain 404.
//
// # Usage Example
//
//	srv := server.New(&server.Config{Port: 80})
//	srv.Handle("/", http.HandlerFunc(root), http.MethodGet)
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
//
// # Connection Tracking
//
// Active connections are tracked through http.Server.ConnState. Shutdown
// waits for in-flight requests and force-closes whatever is left after the
// shutdown timeout.
package server

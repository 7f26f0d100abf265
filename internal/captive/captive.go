// Package captive decides when a portal request must be bounced to the
// portal's own address. Operating systems probe well-known hostnames after
// joining a network; answering those probes with a redirect makes them show
// the portal page.
package captive

import (
	"net"
	"net/http"
	"strconv"
)

// IsIPLiteral reports whether every character of host is a decimal digit or
// a dot. "" and "..." count as literals.
func IsIPLiteral(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Redirector issues the portal redirect.
type Redirector struct {
	// Addr returns the AP address. A nil result disables redirection.
	Addr func() net.IP
	// Port is appended to the target unless it is 0 or 80.
	Port int
}

// Target returns the redirect location, e.g. "http://192.168.4.1".
func (rd *Redirector) Target() string {
	ip := rd.Addr()
	if ip == nil {
		return ""
	}
	if rd.Port == 0 || rd.Port == 80 {
		return "http://" + ip.String()
	}
	return "http://" + net.JoinHostPort(ip.String(), strconv.Itoa(rd.Port))
}

// Redirect writes a 302 to the portal when the request's host is a name
// rather than an address. It returns true when it handled the request, in
// which case the caller must not write anything else.
func (rd *Redirector) Redirect(w http.ResponseWriter, r *http.Request) bool {
	if IsIPLiteral(hostOnly(r.Host)) {
		return false
	}
	target := rd.Target()
	if target == "" {
		return false
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
	return true
}

// Wrap runs the redirect check before h.
func (rd *Redirector) Wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rd.Redirect(w, r) {
			return
		}
		h.ServeHTTP(w, r)
	})
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}

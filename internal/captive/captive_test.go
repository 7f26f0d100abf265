package captive

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsIPLiteral(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"192.168.4.1", true},
		{"10.0.0.1", true},
		{"", true},
		{"...", true},
		{"999.1", true},
		{"captive.apple.com", false},
		{"connectivitycheck.gstatic.com", false},
		{"192.168.4.1a", false},
		{"::1", false},
		{"localhost", false},
	}
	for _, tt := range tests {
		if got := IsIPLiteral(tt.host); got != tt.want {
			t.Errorf("IsIPLiteral(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func newRedirector(port int) *Redirector {
	return &Redirector{Addr: func() net.IP { return net.IPv4(192, 168, 4, 1) }, Port: port}
}

func TestRedirect(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		redirect bool
		location string
	}{
		{"hostname", "captive.apple.com", 0, true, "http://192.168.4.1"},
		{"hostname with port", "example.com:8080", 80, true, "http://192.168.4.1"},
		{"non default port", "example.com", 8080, true, "http://192.168.4.1:8080"},
		{"ip literal", "192.168.4.1", 0, false, ""},
		{"ip literal with port", "192.168.4.1:8080", 8080, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/generate_204", nil)
			req.Host = tt.host
			rec := httptest.NewRecorder()

			got := newRedirector(tt.port).Redirect(rec, req)
			if got != tt.redirect {
				t.Fatalf("Redirect() = %v, want %v", got, tt.redirect)
			}
			if !tt.redirect {
				return
			}
			if rec.Code != http.StatusFound {
				t.Errorf("status = %d, want 302", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tt.location {
				t.Errorf("Location = %q, want %q", loc, tt.location)
			}
		})
	}
}

func TestRedirectWithoutAddress(t *testing.T) {
	rd := &Redirector{Addr: func() net.IP { return nil }}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "example.com"
	if rd.Redirect(httptest.NewRecorder(), req) {
		t.Error("Redirect() without AP address should not handle the request")
	}
}

func TestWrap(t *testing.T) {
	called := false
	h := newRedirector(0).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "msftconnecttest.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if called || rec.Code != http.StatusFound {
		t.Errorf("hostname request reached handler (called=%v, code=%d)", called, rec.Code)
	}

	req.Host = "192.168.4.1"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Error("IP-literal request did not reach handler")
	}
}

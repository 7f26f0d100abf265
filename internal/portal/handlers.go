package portal

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
	"go.uber.org/zap"
)

// guard runs the captive redirect, then the method check, and then drops
// the request while a connection attempt is in flight. With no methods every
// method is accepted.
func (p *Portal) guard(h http.HandlerFunc, methods ...string) http.Handler {
	return p.redirect.Wrap(allowMethods(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctrl := p.controller(); ctrl != nil && ctrl.ConnectPending() {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		h(w, r)
	}), methods...))
}

// allowMethods answers 405 for methods outside the list. HEAD is accepted
// wherever GET is.
func allowMethods(h http.Handler, methods ...string) http.Handler {
	if len(methods) == 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m || (r.Method == http.MethodHead && m == http.MethodGet) {
				h.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Allow", strings.Join(methods, ", "))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

func (p *Portal) handleRoot(w http.ResponseWriter, r *http.Request) {
	pg := newPage("Options", p.cfg.CustomHeadHTML, nil).
		heading(p.cfg.Title).
		text("h3", "WiFi manager")

	if p.cfg.CustomOptionsHTML != "" {
		pg.raw(p.cfg.CustomOptionsHTML)
	} else {
		pg.raw(defaultOptions)
	}
	writeHTML(w, pg.String())
}

func (p *Portal) handleWifi(listNetworks bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ctrl := p.controller()

		if listNetworks && q.Has("scan") {
			if ctrl != nil {
				ctrl.RequestScan()
			}
			back := "/wifi"
			if q.Get("static") == "1" {
				back += "?static=1"
			}
			pg := newPage("Scanning", p.cfg.CustomHeadHTML, &refresh{seconds: 3, url: back}).
				text("p", "Scanning for networks, this page will refresh in a moment.")
			writeHTML(w, pg.String())
			return
		}

		pg := newPage("Config ESP", p.cfg.CustomHeadHTML, nil)
		if listNetworks && p.deps.Scanner != nil {
			pg.raw(networkList(p.deps.Scanner.Visible()))
		}

		pg.raw(formStart)
		pg.raw(p.deps.Params.Render())

		var station radio.IPConfig
		if ctrl != nil {
			station = ctrl.StationConfig()
		}
		if p.cfg.ShowStaticFields || q.Get("static") == "1" || station.IsStatic() {
			pg.raw(staticFields(station))
		}
		pg.raw(formEnd)
		if listNetworks {
			pg.raw(scanLink)
		}
		writeHTML(w, pg.String())
	}
}

func (p *Portal) handleWifiSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad form", http.StatusBadRequest)
		return
	}

	creds := radio.Credentials{
		SSID:       r.Form.Get("s"),
		Passphrase: r.Form.Get("p"),
	}
	p.deps.Params.Apply(r.Form.Get)

	static := radio.IPConfig{
		IP:      parseIPv4(r.Form.Get("ip")),
		Gateway: parseIPv4(r.Form.Get("gw")),
		Subnet:  parseIPv4(r.Form.Get("sn")),
		DNS1:    parseIPv4(r.Form.Get("dns1")),
		DNS2:    parseIPv4(r.Form.Get("dns2")),
	}

	logging.Info("Credentials submitted",
		zap.String("ssid", creds.SSID),
		zap.Bool("static", static.IsStatic()),
		zap.Int("fields", p.deps.Params.Len()),
	)

	if ctrl := p.controller(); ctrl != nil {
		ctrl.RequestConnect(creds, static)
	}

	pg := newPage("Credentials Saved", p.cfg.CustomHeadHTML, &refresh{seconds: 15, url: "/i"}).
		text("p", "Credentials saved.").
		text("p", "Trying to connect the device to the network. If it fails, reconnect to the access point and try again.")
	writeHTML(w, pg.String())
}

func (p *Portal) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctrl := p.controller()
	pending := ctrl != nil && ctrl.ConnectPending()

	var rf *refresh
	if pending {
		rf = &refresh{seconds: 5, url: "/i"}
	}
	pg := newPage("Info", p.cfg.CustomHeadHTML, rf)

	status := p.deps.Device.Status()
	if pending {
		pg.text("p", "Trying to connect").
			text("p", fmt.Sprintf("Status: %d (%s)", int(status), status))
	}

	info := p.deps.Device.Info()
	pairs := [][2]string{
		{"Chip ID", orDash(info.ChipID)},
		{"Hostname", orDash(info.Hostname)},
		{"Connection status", fmt.Sprintf("%d", int(status))},
		{"Soft AP SSID", orDash(info.APSSID)},
		{"Soft AP IP", ipString(info.APIP)},
		{"Soft AP MAC", orDash(info.APMAC)},
		{"Station SSID", orDash(info.StationSSID)},
		{"Station IP", ipString(info.StationIP)},
		{"Station MAC", orDash(info.StationMAC)},
	}
	if ctrl != nil {
		if f := ctrl.LastFault(); f != nil {
			pairs = append(pairs, [2]string{"Last fault", f.Error()})
		}
	}
	pg.raw(definitionList(pairs))
	writeHTML(w, pg.String())
}

func (p *Portal) handleReset(w http.ResponseWriter, r *http.Request) {
	pg := newPage("Info", p.cfg.CustomHeadHTML, nil).
		text("p", "Module will reset in a few seconds.")
	writeHTML(w, pg.String())

	logging.Info("Restart requested from portal", zap.Duration("delay", p.cfg.ResetDelay))
	p.deps.Clock.AfterFunc(p.cfg.ResetDelay, func() {
		if err := p.deps.Device.Restart(); err != nil {
			logging.Error("Restart failed", zap.Error(err))
		}
	})
}

func (p *Portal) handleNotFound(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	var b strings.Builder
	b.WriteString("File Not Found\n\n")
	fmt.Fprintf(&b, "URI: %s\n", r.URL.Path)
	fmt.Fprintf(&b, "Method: %s\n", r.Method)

	names := make([]string, 0, len(r.Form))
	args := 0
	for name, values := range r.Form {
		names = append(names, name)
		args += len(values)
	}
	sort.Strings(names)
	fmt.Fprintf(&b, "Arguments: %d\n", args)
	for _, name := range names {
		for _, v := range r.Form[name] {
			fmt.Fprintf(&b, " %s: %s\n", name, v)
		}
	}

	h := w.Header()
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "-1")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, b.String())
}

func parseIPv4(s string) net.IP {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil
	}
	return ip.To4()
}

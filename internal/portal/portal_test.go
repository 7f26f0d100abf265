package portal

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/wifiportal/internal/params"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/radio/sim"
	"github.com/muurk/wifiportal/internal/scan"
	"github.com/muurk/wifiportal/internal/server"
	"github.com/zoobzio/clockz"
)

type countingRouter struct {
	*server.Server
	handles int
}

func (r *countingRouter) Handle(pattern string, h http.Handler, methods ...string) {
	r.handles++
	r.Server.Handle(pattern, h, methods...)
}

type fakeDNS struct {
	starts, stops int
	running       bool
	ip            net.IP
}

func (d *fakeDNS) Start(ip net.IP) error {
	d.starts++
	d.running = true
	d.ip = ip
	return nil
}

func (d *fakeDNS) Stop() error {
	d.stops++
	d.running = false
	return nil
}

type fakeController struct {
	mu      sync.Mutex
	pending bool
	creds   []radio.Credentials
	static  radio.IPConfig
	scans   int
	station radio.IPConfig
	fault   *radio.Fault
}

func (c *fakeController) RequestConnect(creds radio.Credentials, static radio.IPConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = append(c.creds, creds)
	c.static = static
	c.pending = true
}

func (c *fakeController) RequestScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans++
}

func (c *fakeController) ConnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *fakeController) StationConfig() radio.IPConfig { return c.station }
func (c *fakeController) LastFault() *radio.Fault        { return c.fault }

type fixture struct {
	portal  *Portal
	radio   *sim.Radio
	router  *countingRouter
	dns     *fakeDNS
	ctrl    *fakeController
	scanner *scan.Scanner
	faults  []*radio.Fault
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	return newFixtureWithClock(t, cfg, clockz.NewFakeClock())
}

func newFixtureWithClock(t *testing.T, cfg Config, clock clockz.Clock) *fixture {
	t.Helper()

	f := &fixture{
		radio: sim.New(
			sim.NetworkSpec{SSID: "home", RSSI: -60, Passphrase: "homepass1"},
			sim.NetworkSpec{SSID: "cafe", RSSI: -45},
			sim.NetworkSpec{SSID: "attic", RSSI: -95},
		),
		router: &countingRouter{Server: server.New(nil)},
		dns:    &fakeDNS{},
		ctrl:   &fakeController{},
	}
	f.scanner = scan.New(f.radio, scan.DefaultOptions())

	if cfg.SSID == "" {
		cfg.SSID = "wifiportal-1A2B3C"
	}
	f.portal = New(cfg, Deps{
		Device:  f.radio,
		DNS:     f.dns,
		Router:  f.router,
		Scanner: f.scanner,
		Params:  params.NewRegistry(0),
		Faults:  func(fl *radio.Fault) { f.faults = append(f.faults, fl) },
		Clock:   clock,
	})
	f.portal.Attach(f.ctrl)
	return f
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = "192.168.4.1"
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestActivateIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.portal.Activate(ctx); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	handles := f.router.handles
	if err := f.portal.Activate(ctx); err != nil {
		t.Fatalf("second Activate() error = %v", err)
	}

	if got := f.radio.Counters().APEnables; got != 1 {
		t.Errorf("APEnables = %d, want 1", got)
	}
	if f.router.handles != handles || handles != len(Routes()) {
		t.Errorf("route registrations = %d (after first %d), want %d", f.router.handles, handles, len(Routes()))
	}
	if f.dns.starts != 1 || !f.dns.ip.Equal(sim.DefaultAPAddr) {
		t.Errorf("dns starts = %d ip = %v", f.dns.starts, f.dns.ip)
	}
	if len(f.faults) != 1 || f.faults[0].Kind != radio.FaultDuplicateInitialization {
		t.Errorf("faults = %v, want one duplicate initialization", f.faults)
	}
}

func TestPassphraseBounds(t *testing.T) {
	tests := []struct {
		name     string
		pass     string
		wantOpen bool
		fault    bool
	}{
		{"open", "", true, false},
		{"too short", "1234567", true, true},
		{"minimum", "12345678", false, false},
		{"maximum", strings.Repeat("x", 63), false, false},
		{"too long", strings.Repeat("x", 64), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{Passphrase: tt.pass})
			if err := f.portal.Activate(context.Background()); err != nil {
				t.Fatalf("Activate() error = %v", err)
			}
			ap := f.radio.APConfig()
			if ap == nil {
				t.Fatal("AP not enabled")
			}
			if open := ap.Passphrase == ""; open != tt.wantOpen {
				t.Errorf("open = %v, want %v", open, tt.wantOpen)
			}
			if f.portal.State().Open != tt.wantOpen {
				t.Errorf("State().Open = %v", f.portal.State().Open)
			}
			gotFault := len(f.faults) == 1 && f.faults[0].Kind == radio.FaultConfiguration
			if gotFault != tt.fault {
				t.Errorf("configuration fault = %v, want %v (%v)", gotFault, tt.fault, f.faults)
			}
		})
	}
}

func TestDeactivateRemovesEverything(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_ = f.portal.Activate(ctx)
	_ = f.scanner.Scan(ctx)
	if rec := f.get("/"); rec.Code != http.StatusOK {
		t.Fatalf("GET / while active = %d", rec.Code)
	}

	if err := f.portal.Deactivate(ctx); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if err := f.portal.Deactivate(ctx); err != nil {
		t.Fatalf("second Deactivate() error = %v", err)
	}

	if len(f.router.Routes()) != 0 {
		t.Errorf("routes left after Deactivate: %v", f.router.Routes())
	}
	if rec := f.get("/"); rec.Code != http.StatusNotFound {
		t.Errorf("GET / after Deactivate = %d, want 404", rec.Code)
	}
	if f.dns.running || f.dns.stops != 1 {
		t.Errorf("dns running=%v stops=%d", f.dns.running, f.dns.stops)
	}
	if c := f.radio.Counters(); c.APDisables != 1 {
		t.Errorf("APDisables = %d, want 1", c.APDisables)
	}
	if f.scanner.Latest() != nil {
		t.Error("scan results not cleared")
	}
	if f.portal.Active() || f.portal.IP() != nil {
		t.Error("portal still reports active")
	}

	if err := f.portal.Activate(ctx); err != nil {
		t.Fatalf("re-Activate() error = %v", err)
	}
	if f.router.handles != 2*len(Routes()) {
		t.Errorf("re-activation registrations = %d, want %d", f.router.handles, 2*len(Routes()))
	}
}

func TestCaptiveRedirectBeforeHandlers(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Activate(context.Background())
	f.ctrl.pending = true

	for _, path := range []string{"/", "/i", "/generate_204", "/hotspot-detect.html"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Host = "connectivitycheck.gstatic.com"
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusFound {
			t.Errorf("%s: status = %d, want 302", path, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "http://192.168.4.1" {
			t.Errorf("%s: Location = %q", path, loc)
		}
	}
}

func TestWifiSaveAndReflectField(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Params().Add(params.NewField("mqtt", "MQTT server", "mqtt.local", 40, ""))
	_ = f.portal.Activate(context.Background())

	form := url.Values{
		"s":    {"home"},
		"p":    {"homepass1"},
		"mqtt": {"broker.lan"},
		"ip":   {"10.0.0.50"},
		"gw":   {"10.0.0.1"},
		"sn":   {"255.255.255.0"},
	}
	req := httptest.NewRequest(http.MethodPost, "/wifisave", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "192.168.4.1"
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /wifisave = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `content="15; url=/i"`) {
		t.Errorf("saved page missing refresh to /i: %s", rec.Body.String())
	}
	if len(f.ctrl.creds) != 1 || f.ctrl.creds[0] != (radio.Credentials{SSID: "home", Passphrase: "homepass1"}) {
		t.Errorf("controller creds = %+v", f.ctrl.creds)
	}
	if !f.ctrl.static.IP.Equal(net.IPv4(10, 0, 0, 50)) || f.ctrl.static.DNS1 != nil {
		t.Errorf("static = %+v", f.ctrl.static)
	}

	f.ctrl.pending = false
	body := f.get("/0wifi").Body.String()
	if !strings.Contains(body, "value='broker.lan'") {
		t.Errorf("/0wifi does not reflect submitted field: %s", body)
	}
}

func TestPendingConnectDropsRequestsExceptInfo(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Activate(context.Background())
	f.ctrl.pending = true

	for _, path := range []string{"/", "/wifi", "/wifisave", "/nope"} {
		rec := f.get(path)
		if rec.Code != http.StatusServiceUnavailable || rec.Body.Len() != 0 {
			t.Errorf("%s while pending = %d %q, want empty 503", path, rec.Code, rec.Body.String())
		}
	}

	rec := f.get("/i")
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("/i while pending = %d", rec.Code)
	}
	if !strings.Contains(body, `content="5; url=/i"`) || !strings.Contains(body, "Trying to connect") {
		t.Errorf("/i while pending missing refresh: %s", body)
	}

	f.ctrl.pending = false
	if strings.Contains(f.get("/i").Body.String(), "http-equiv") {
		t.Error("/i refreshes without a pending connect")
	}
}

func TestInfoPage(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Activate(context.Background())
	f.ctrl.fault = radio.NewFault(radio.FaultScan, "scan did not complete", nil)

	body := f.get("/i").Body.String()
	for _, want := range []string{
		"<dt>Chip ID</dt><dd>1A2B3C</dd>",
		"<dt>Soft AP SSID</dt><dd>wifiportal-1A2B3C</dd>",
		"<dt>Soft AP IP</dt><dd>192.168.4.1</dd>",
		"<dt>Station IP</dt><dd>-</dd>",
		"<dt>Last fault</dt><dd>scan: scan did not complete</dd>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/i missing %q", want)
		}
	}
}

func TestWifiScanInterstitial(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Activate(context.Background())

	body := f.get("/wifi?scan=1&static=1").Body.String()
	if f.ctrl.scans != 1 {
		t.Errorf("scans requested = %d, want 1", f.ctrl.scans)
	}
	if !strings.Contains(body, `content="3; url=/wifi?static=1"`) {
		t.Errorf("interstitial missing refresh: %s", body)
	}

	f.get("/0wifi?scan=1")
	if f.ctrl.scans != 1 {
		t.Error("/0wifi must not scan")
	}
}

func TestWifiListsNetworks(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Activate(context.Background())

	if body := f.get("/wifi").Body.String(); !strings.Contains(body, "No networks found") {
		t.Errorf("empty list message missing: %s", body)
	}

	_ = f.scanner.Scan(context.Background())
	body := f.get("/wifi").Body.String()
	cafe := strings.Index(body, ">cafe<")
	home := strings.Index(body, ">home<")
	if cafe < 0 || home < 0 || cafe > home {
		t.Errorf("networks not listed strongest first: %s", body)
	}
	if !strings.Contains(body, `class="q l">80%`) {
		t.Errorf("encrypted network quality missing: %s", body)
	}

	f.scanner.SetMinimumQuality(20)
	if strings.Contains(f.get("/wifi").Body.String(), ">attic<") {
		t.Error("weak network shown despite minimum quality")
	}
	if strings.Contains(f.get("/0wifi").Body.String(), ">cafe<") {
		t.Error("/0wifi lists networks")
	}
}

func TestStaticFields(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Activate(context.Background())

	if strings.Contains(f.get("/wifi").Body.String(), `name="ip"`) {
		t.Error("static fields shown without request")
	}
	if !strings.Contains(f.get("/wifi?static=1").Body.String(), `name="dns2"`) {
		t.Error("static fields missing with ?static=1")
	}

	f.ctrl.station = radio.IPConfig{IP: net.IPv4(10, 0, 0, 9)}
	if !strings.Contains(f.get("/wifi").Body.String(), `value="10.0.0.9"`) {
		t.Error("configured static address not pre-filled")
	}
}

func TestNotFoundBody(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Activate(context.Background())

	rec := f.get("/missing?b=2&a=1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	want := "File Not Found\n\nURI: /missing\nMethod: GET\nArguments: 2\n a: 1\n b: 2\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
	if rec.Header().Get("Cache-Control") != "no-cache, no-store, must-revalidate" ||
		rec.Header().Get("Pragma") != "no-cache" || rec.Header().Get("Expires") != "-1" {
		t.Errorf("cache headers = %v", rec.Header())
	}
}

func TestResetSchedulesRestart(t *testing.T) {
	clock := clockz.NewFakeClock()
	f := newFixtureWithClock(t, Config{ResetDelay: time.Second}, clock)
	_ = f.portal.Activate(context.Background())

	rec := f.get("/r")
	if !strings.Contains(rec.Body.String(), "reset in a few seconds") {
		t.Errorf("reset page = %s", rec.Body.String())
	}
	if f.radio.Counters().Restarts != 0 {
		t.Fatal("device restarted before the reset delay")
	}

	clock.Advance(time.Second)
	clock.BlockUntilReady()
	if f.radio.Counters().Restarts != 1 {
		t.Error("device not restarted after the reset delay")
	}
}

func TestActivatedAtUsesClock(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f := newFixtureWithClock(t, Config{}, clock)
	_ = f.portal.Activate(context.Background())

	st := f.portal.State()
	if st == nil {
		t.Fatal("State() = nil after Activate")
	}
	if !st.ActivatedAt.Equal(clock.Now()) {
		t.Errorf("ActivatedAt = %v, want %v", st.ActivatedAt, clock.Now())
	}
	if !st.RoutesRegistered {
		t.Error("RoutesRegistered = false")
	}
}

func TestRedirectRunsBeforeMethodCheck(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.portal.Activate(context.Background())

	tests := []struct {
		name     string
		method   string
		path     string
		host     string
		wantCode int
	}{
		{"post root by name", http.MethodPost, "/", "captive.apple.com", http.StatusFound},
		{"post wifi by name", http.MethodPost, "/wifi", "captive.apple.com", http.StatusFound},
		{"put info by name", http.MethodPut, "/i", "captive.apple.com", http.StatusFound},
		{"post root by address", http.MethodPost, "/", "192.168.4.1", http.StatusOK},
		{"post fwlink by address", http.MethodPost, "/fwlink", "192.168.4.1", http.StatusOK},
		{"post wifi by address", http.MethodPost, "/wifi", "192.168.4.1", http.StatusMethodNotAllowed},
		{"head wifi by address", http.MethodHead, "/wifi", "192.168.4.1", http.StatusOK},
		{"delete reset by address", http.MethodDelete, "/r", "192.168.4.1", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Host = tt.host
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("%s %s (Host %s) = %d, want %d", tt.method, tt.path, tt.host, rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusMethodNotAllowed && rec.Header().Get("Allow") == "" {
				t.Error("405 without Allow header")
			}
		})
	}
}

func TestCustomOptionsAndHead(t *testing.T) {
	f := newFixture(t, Config{
		CustomHeadHTML:    "<style>.x{}</style>",
		CustomOptionsHTML: "<a href='/wifi'>Setup</a>",
	})
	_ = f.portal.Activate(context.Background())

	body := f.get("/fwlink").Body.String()
	if !strings.Contains(body, "<style>.x{}</style></head>") || !strings.Contains(body, "<a href='/wifi'>Setup</a>") {
		t.Errorf("custom HTML missing: %s", body)
	}
	if strings.Contains(body, "Configure WiFi (No Scan)") {
		t.Error("default options shown alongside custom options")
	}
}

// Package metrics exposes the daemon's Prometheus collectors. The Collector
// implements the observer interfaces of the supervisor, the scanner and the
// HTTP server; every method is safe to call on a nil *Collector.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the wifiportal metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Mode            *prometheus.GaugeVec
	Transitions     *prometheus.CounterVec
	ConnectAttempts *prometheus.CounterVec
	Scans           *prometheus.CounterVec
	ScanNetworks    prometheus.Gauge
	PortalRequests  *prometheus.CounterVec
	Faults          *prometheus.CounterVec
}

// New registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func New(reg prometheus.Registerer, modes []string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Mode, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wifiportal_mode",
		Help: "1 for the current connection mode, 0 for the others.",
	}, []string{"mode"})); err != nil {
		return nil, err
	}
	if c.Transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifiportal_mode_transitions_total",
		Help: "Connection mode transitions, labeled by source and target mode.",
	}, []string{"from", "to"})); err != nil {
		return nil, err
	}
	if c.ConnectAttempts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifiportal_connect_attempts_total",
		Help: "Station join attempts, labeled by whether association was observed.",
	}, []string{"associated"})); err != nil {
		return nil, err
	}
	if c.Scans, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifiportal_scans_total",
		Help: "Network scans, labeled by result (ok or failed).",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.ScanNetworks, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wifiportal_scan_networks",
		Help: "Networks in the most recent successful scan.",
	})); err != nil {
		return nil, err
	}
	if c.PortalRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifiportal_portal_requests_total",
		Help: "Portal HTTP requests, labeled by route and status code.",
	}, []string{"route", "code"})); err != nil {
		return nil, err
	}
	if c.Faults, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifiportal_faults_total",
		Help: "Recoverable faults, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}

	for i, m := range modes {
		v := 0.0
		if i == 0 {
			v = 1
		}
		c.Mode.WithLabelValues(m).Set(v)
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTransition records a mode change.
func (c *Collector) ObserveTransition(from, to string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(from, to).Inc()
	c.Mode.WithLabelValues(from).Set(0)
	c.Mode.WithLabelValues(to).Set(1)
}

// ObserveConnectAttempt counts a join.
func (c *Collector) ObserveConnectAttempt(ok bool) {
	if c == nil {
		return
	}
	c.ConnectAttempts.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

// ObserveFault counts a fault.
func (c *Collector) ObserveFault(kind string) {
	if c == nil {
		return
	}
	c.Faults.WithLabelValues(kind).Inc()
}

// ObserveScan counts a scan and records its size when it succeeded.
func (c *Collector) ObserveScan(count int, ok bool) {
	if c == nil {
		return
	}
	if !ok {
		c.Scans.WithLabelValues("failed").Inc()
		return
	}
	c.Scans.WithLabelValues("ok").Inc()
	c.ScanNetworks.Set(float64(count))
}

// ObserveRequest counts a portal request.
func (c *Collector) ObserveRequest(route string, status int) {
	if c == nil {
		return
	}
	c.PortalRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return c, err
	}
	return c, nil
}

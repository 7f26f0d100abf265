// Package scan runs network scans through the radio and keeps the most
// recent canonical result list.
package scan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// NoFilter disables minimum-quality filtering.
const NoFilter = -1

// Result is one canonicalized scan entry.
type Result struct {
	radio.Network
	Quality   int
	Duplicate bool
}

// Snapshot is an immutable scan outcome.
type Snapshot struct {
	Results   []Result
	ScannedAt time.Time
}

// Observer receives scan outcomes; the metrics collector implements it.
type Observer interface {
	ObserveScan(count int, ok bool)
}

// Options tunes canonicalization and rendering.
type Options struct {
	RemoveDuplicates bool
	MinimumQuality   int
}

// DefaultOptions flags duplicates and shows every network.
func DefaultOptions() Options {
	return Options{RemoveDuplicates: true, MinimumQuality: NoFilter}
}

// Scanner owns the published result list. Readers never block on a scan in
// progress: Latest returns the previous snapshot until a new one is stored.
type Scanner struct {
	radio    radio.Scanner
	observer Observer
	faults   radio.FaultReporter
	clock    clockz.Clock

	latest  atomic.Pointer[Snapshot]
	scanMu  sync.Mutex // one scan at a time
	optsMu  sync.RWMutex
	options Options
}

// New returns a scanner over r.
func New(r radio.Scanner, opts Options) *Scanner {
	return &Scanner{radio: r, options: opts, clock: clockz.RealClock}
}

// SetClock sets the clock that stamps snapshots.
func (s *Scanner) SetClock(c clockz.Clock) {
	s.clock = c
}

// SetObserver attaches a scan observer.
func (s *Scanner) SetObserver(o Observer) {
	s.observer = o
}

// SetFaultReporter attaches the sink for scan faults.
func (s *Scanner) SetFaultReporter(r radio.FaultReporter) {
	s.faults = r
}

// Options returns the current tuning.
func (s *Scanner) Options() Options {
	s.optsMu.RLock()
	defer s.optsMu.RUnlock()
	return s.options
}

// SetOptions replaces the tuning. It applies from the next scan and render.
func (s *Scanner) SetOptions(opts Options) {
	s.optsMu.Lock()
	s.options = opts
	s.optsMu.Unlock()
}

// SetMinimumQuality changes only the rendering threshold.
func (s *Scanner) SetMinimumQuality(q int) {
	s.optsMu.Lock()
	s.options.MinimumQuality = q
	s.optsMu.Unlock()
}

// Scan runs one scan and publishes the result. Failure sentinels leave the
// previous list in place and return an error.
func (s *Scanner) Scan(ctx context.Context) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	n := s.radio.ScanNetworks(ctx)
	if n < 0 {
		err := fmt.Errorf("scan returned %d", n)
		if n == radio.ScanRunning {
			err = fmt.Errorf("scan already in progress")
		}
		s.faults.Report(radio.NewFault(radio.FaultScan, "scan did not complete", err))
		if s.observer != nil {
			s.observer.ObserveScan(0, false)
		}
		return err
	}

	networks := make([]radio.Network, 0, n)
	for i := 0; i < n; i++ {
		nw, ok := s.radio.ScanResult(i)
		if !ok {
			continue
		}
		networks = append(networks, nw)
	}
	s.radio.ScanDelete()

	results := Canonicalize(networks, s.Options().RemoveDuplicates)
	s.latest.Store(&Snapshot{Results: results, ScannedAt: s.clock.Now()})

	logging.Debug("Scan completed", zap.Int("networks", len(results)))
	for _, r := range results {
		logging.Debug("Scan entry",
			zap.String("ssid", r.SSID),
			zap.Int("rssi", r.RSSI),
			zap.Bool("duplicate", r.Duplicate),
		)
	}
	if s.observer != nil {
		s.observer.ObserveScan(len(results), true)
	}
	return nil
}

// Latest returns the current snapshot, or nil before the first scan.
func (s *Scanner) Latest() *Snapshot {
	return s.latest.Load()
}

// Count returns the number of published results.
func (s *Scanner) Count() int {
	if snap := s.latest.Load(); snap != nil {
		return len(snap.Results)
	}
	return 0
}

// Clear drops the published list.
func (s *Scanner) Clear() {
	s.latest.Store(nil)
}

// Visible returns the published results that pass the quality threshold and
// are not flagged duplicates, strongest first.
func (s *Scanner) Visible() []Result {
	snap := s.latest.Load()
	if snap == nil {
		return nil
	}
	return Filter(snap.Results, s.Options().MinimumQuality)
}

// Canonicalize sorts networks by signal strength, strongest first, keeping
// the driver's order for equal RSSI. When flagDuplicates is set, every
// entry after the first with the same SSID is marked Duplicate.
func Canonicalize(networks []radio.Network, flagDuplicates bool) []Result {
	results := make([]Result, len(networks))
	for i, n := range networks {
		results[i] = Result{Network: n, Quality: Quality(n.RSSI)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RSSI > results[j].RSSI
	})

	if flagDuplicates {
		seen := make(map[string]struct{}, len(results))
		for i := range results {
			if _, ok := seen[results[i].SSID]; ok {
				results[i].Duplicate = true
				continue
			}
			seen[results[i].SSID] = struct{}{}
		}
	}
	return results
}

// Filter drops duplicates and entries below minQuality. NoFilter keeps
// every non-duplicate entry.
func Filter(results []Result, minQuality int) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Duplicate {
			continue
		}
		if minQuality != NoFilter && r.Quality < minQuality {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Quality maps RSSI in dBm onto 0..100.
func Quality(rssi int) int {
	switch {
	case rssi <= -100:
		return 0
	case rssi >= -50:
		return 100
	default:
		return 2 * (rssi + 100)
	}
}

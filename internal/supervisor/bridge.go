package supervisor

import (
	"context"
	"net"
	"time"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
	"go.uber.org/zap"
)

// Bridge turns asynchronous radio events into supervisor flags. Handlers
// only touch shared state under the supervisor lock; the radio is never
// reconfigured from here.
type Bridge struct {
	s *Supervisor
}

// NewBridge returns a bridge feeding s.
func NewBridge(s *Supervisor) *Bridge {
	return &Bridge{s: s}
}

// OnAssociated disables the retry timer.
func (b *Bridge) OnAssociated() {
	s := b.s
	s.mu.Lock()
	s.retry = RetryPolicy{}
	s.linkLostAt = time.Time{}
	s.mu.Unlock()
}

// OnDisassociated arms the retry timer. A station that loses its link goes
// back to Connecting. Losing it while the access point drains starts the
// link-loss clock.
func (b *Bridge) OnDisassociated() {
	s := b.s
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.retry = RetryPolicy{Interval: s.retryInterval, LastAttempt: now}
	s.connectedFired = false
	s.stationIP = nil
	switch s.mode {
	case Station:
		s.setModeLocked(Connecting, "link lost")
		s.linkLostAt = now
	case AccessPointDraining:
		s.linkLostAt = now
	}
}

// OnGotIP marks the connected callback as pending.
func (b *Bridge) OnGotIP(ip net.IP) {
	s := b.s
	s.mu.Lock()
	s.connectedPending = true
	s.stationIP = ip
	s.mu.Unlock()
}

// Dispatch routes one event.
func (b *Bridge) Dispatch(ev radio.Event) {
	logging.LogRadioEvent(ev.Type.String(),
		zap.String("ssid", ev.SSID),
		zap.String("reason", ev.Reason),
	)
	switch ev.Type {
	case radio.EventAssociated:
		b.OnAssociated()
	case radio.EventDisassociated:
		b.OnDisassociated()
	case radio.EventGotIP:
		b.OnGotIP(ev.IP)
	}
}

// Run dispatches events until ctx is done or the channel closes.
func (b *Bridge) Run(ctx context.Context, events <-chan radio.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.Dispatch(ev)
		}
	}
}

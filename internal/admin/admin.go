// Package admin serves the operator endpoints on a separate listener:
// Prometheus metrics, a JSON status snapshot and a websocket stream of the
// same snapshot.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/supervisor"
	"go.uber.org/zap"
)

// DefaultInterval is the websocket push period.
const DefaultInterval = time.Second

const writeWait = 5 * time.Second

// Source provides the snapshot to publish.
type Source interface {
	Snapshot() supervisor.Snapshot
}

// Router is the route table the endpoints are registered into.
type Router interface {
	Handle(pattern string, h http.Handler, methods ...string)
}

// Admin holds the endpoint handlers.
type Admin struct {
	src      Source
	metrics  http.Handler
	interval time.Duration
	upgrader websocket.Upgrader
}

// New returns the admin endpoints. A nil metrics handler omits /metrics.
func New(src Source, metrics http.Handler, interval time.Duration) *Admin {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Admin{
		src:      src,
		metrics:  metrics,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Register adds the endpoints to r.
func (a *Admin) Register(r Router) {
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics, http.MethodGet)
	}
	r.Handle("/status", http.HandlerFunc(a.handleStatus), http.MethodGet)
	r.Handle("/ws", http.HandlerFunc(a.handleStream), http.MethodGet)
}

func (a *Admin) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(a.src.Snapshot()); err != nil {
		logging.Debug("Failed to write status", zap.Error(err))
	}
}

// handleStream pushes a snapshot every interval. Any text message from the
// client triggers an immediate push.
func (a *Admin) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	logging.Info("Status stream opened", zap.String("remote_addr", remoteAddr))
	defer logging.Info("Status stream closed", zap.String("remote_addr", remoteAddr))

	refresh := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			select {
			case refresh <- struct{}{}:
			default:
			}
		}
	}()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := a.push(conn); err != nil {
			logging.Debug("Status stream write failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
			return
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		case <-refresh:
		}
	}
}

func (a *Admin) push(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(a.src.Snapshot())
}

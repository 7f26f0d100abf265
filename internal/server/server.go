package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/muurk/wifiportal/internal/logging"
	"go.uber.org/zap"
)

// Config holds the listener configuration
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration // default 10s
	WriteTimeout    time.Duration // default 10s
	IdleTimeout     time.Duration // default 30s
	ShutdownTimeout time.Duration // default 10s
}

func (c *Config) addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// RequestObserver is notified of every dispatched request.
type RequestObserver interface {
	ObserveRequest(route string, status int)
}

type route struct {
	methods map[string]struct{}
	handler http.Handler
}

func (rt *route) allows(method string) bool {
	if len(rt.methods) == 0 {
		return true
	}
	_, ok := rt.methods[method]
	if !ok && method == http.MethodHead {
		_, ok = rt.methods[http.MethodGet]
	}
	return ok
}

// Server is an HTTP server with a mutable exact-path route table.
type Server struct {
	config   *Config
	httpSrv  *http.Server
	listener net.Listener
	wg       sync.WaitGroup

	mu          sync.Mutex
	activeConns map[string]net.Conn

	routesMu sync.RWMutex
	routes   map[string]*route
	notFound http.Handler
	observer RequestObserver
}

// New creates a server. Nothing is bound until Start.
func New(config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	return &Server{
		config:      config,
		activeConns: make(map[string]net.Conn),
		routes:      make(map[string]*route),
	}
}

// SetObserver attaches a request observer.
func (s *Server) SetObserver(o RequestObserver) {
	s.routesMu.Lock()
	s.observer = o
	s.routesMu.Unlock()
}

// Handle registers h for the exact path pattern, replacing any previous
// registration. With no methods every method is accepted.
func (s *Server) Handle(pattern string, h http.Handler, methods ...string) {
	rt := &route{handler: h}
	if len(methods) > 0 {
		rt.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			rt.methods[strings.ToUpper(m)] = struct{}{}
		}
	}

	s.routesMu.Lock()
	s.routes[pattern] = rt
	s.routesMu.Unlock()
}

// Remove unregisters pattern. Removing an unknown pattern is a no-op.
func (s *Server) Remove(pattern string) {
	s.routesMu.Lock()
	delete(s.routes, pattern)
	s.routesMu.Unlock()
}

// SetNotFound sets the handler for unknown paths. nil restores the plain 404.
func (s *Server) SetNotFound(h http.Handler) {
	s.routesMu.Lock()
	s.notFound = h
	s.routesMu.Unlock()
}

// Routes returns the registered patterns, sorted.
func (s *Server) Routes() []string {
	s.routesMu.RLock()
	defer s.routesMu.RUnlock()
	out := make([]string, 0, len(s.routes))
	for p := range s.routes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ServeHTTP dispatches r through the route table.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.Host, r.URL.Path)

	s.routesMu.RLock()
	rt := s.routes[r.URL.Path]
	notFound := s.notFound
	observer := s.observer
	s.routesMu.RUnlock()

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	label := r.URL.Path

	switch {
	case rt == nil && notFound != nil:
		label = "not_found"
		notFound.ServeHTTP(sw, r)
	case rt == nil:
		label = "not_found"
		http.NotFound(sw, r)
	case !rt.allows(r.Method):
		http.Error(sw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	default:
		rt.handler.ServeHTTP(sw, r)
	}

	if observer != nil {
		observer.ObserveRequest(label, sw.status)
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	addr := s.config.addr()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.httpSrv = &http.Server{
		Handler:      s,
		ReadTimeout:  orDefault(s.config.ReadTimeout, 10*time.Second),
		WriteTimeout: orDefault(s.config.WriteTimeout, 10*time.Second),
		IdleTimeout:  orDefault(s.config.IdleTimeout, 30*time.Second),
		ConnState:    s.trackConn,
	}

	logging.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or the configured one before Start.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

func (s *Server) trackConn(conn net.Conn, state http.ConnState) {
	remoteAddr := conn.RemoteAddr().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case http.StateNew:
		s.activeConns[remoteAddr] = conn
		logging.Debug("Connection accepted", zap.String("remote_addr", remoteAddr))
	case http.StateClosed, http.StateHijacked:
		delete(s.activeConns, remoteAddr)
		logging.Debug("Connection closed", zap.String("remote_addr", remoteAddr))
	}
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Connections still open after the shutdown timeout are closed forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	logging.Info("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(ctx, orDefault(s.config.ShutdownTimeout, 10*time.Second))
	defer cancel()

	err := s.httpSrv.Shutdown(ctx)
	if err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		s.mu.Lock()
		for addr, conn := range s.activeConns {
			logging.Debug("Closing active connection", zap.String("remote_addr", addr))
			_ = conn.Close()
		}
		s.mu.Unlock()
	}

	s.wg.Wait()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets websocket upgrades through the status wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

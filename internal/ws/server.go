package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/timeviewer/backend/internal/config"
	"github.com/timeviewer/backend/internal/logging"
	"github.com/timeviewer/backend/internal/session"
	"github.com/timeviewer/backend/internal/tracker"
)

type Server struct {
	config          *config.Config
	store           tracker.Store
	state           *session.State
	broadcaster     *Broadcaster
	catchup         *tracker.Catchup
	dev             bool
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	authToken       string
	upgrader        websocket.Upgrader
	startedAt       time.Time
	now             func() time.Time
	log             *logrus.Entry

	connsMu  sync.Mutex
	conns    map[*websocket.Conn]struct{}
	handlers sync.WaitGroup
}

func NewServer(cfg *config.Config, store tracker.Store, state *session.State, broadcaster *Broadcaster, dev bool, embeddedHandler http.Handler) *Server {
	s := &Server{
		config:          cfg,
		store:           store,
		state:           state,
		broadcaster:     broadcaster,
		catchup:         tracker.NewCatchup(store, state, cfg.Tracker.DayBoundaryHour),
		dev:             dev,
		embeddedHandler: embeddedHandler,
		allowedOrigins:  make(map[string]bool),
		allowedHosts:    make(map[string]bool),
		authToken:       cfg.Server.AuthToken,
		startedAt:       time.Now(),
		now:             time.Now,
		log:             logging.NewLogger("server"),
		conns:           make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/server", s.handleReporter)
	mux.HandleFunc("/client", s.handleViewer)
	mux.HandleFunc("/api/segments", s.handleSegments)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/health", s.handleHealth)

	frontendDir := s.config.Server.FrontendDir
	switch {
	case s.dev:
		s.log.Infof("Serving frontend from filesystem: %s", frontendDir)
		mux.Handle("/", http.FileServer(http.Dir(frontendDir)))
	case s.embeddedHandler != nil:
		s.log.Info("Serving embedded frontend")
		mux.Handle("/", s.embeddedHandler)
	default:
		if info, err := os.Stat(frontendDir); err == nil && info.IsDir() {
			s.log.Infof("No embedded frontend, falling back to: %s", frontendDir)
			mux.Handle("/", http.FileServer(http.Dir(frontendDir)))
		}
	}
}

// Handler returns the full HTTP handler with security headers applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	segments, err := s.catchup.Snapshot(r.Context(), s.now())
	if err != nil {
		s.log.WithError(err).Error("segments snapshot failed")
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, segments)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Timeviewer-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down:
// open WebSocket connections are closed and their handlers, including
// reporter cleanup, are given until the shutdown timeout to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeConnections)

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return s.waitConnections(shutdownCtx)
	}
}

func (s *Server) track(conn *websocket.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
	s.handlers.Add(1)
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		s.handlers.Done()
	}
}

func (s *Server) closeConnections() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	deadline := time.Now().Add(time.Second)
	for conn := range s.conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
	}
}

func (s *Server) waitConnections(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/timeviewer/backend/internal/session"
	"github.com/timeviewer/backend/internal/tracker"
)

const maxCloseReason = 123

func (s *Server) handleReporter(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("reporter upgrade failed")
		return
	}
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()

	log := s.log.WithField("reporter", r.RemoteAddr)
	log.Info("Reporter connected")

	pipeline := tracker.NewPipeline(s.store, s.state, s.broadcaster)
	defer func() {
		// The request context is gone by now; cleanup must still reach the store.
		if err := pipeline.Finish(context.Background()); err != nil {
			log.WithError(err).Error("failed to close segment on disconnect")
		}
		log.Info("Reporter disconnected")
	}()

	conn.SetPongHandler(func(string) error {
		s.state.Touch(s.now())
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	ctx := context.Background()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("reporter connection lost")
			}
			return
		}

		activity, err := decodeActivity(messageType, data)
		if err == nil {
			err = s.ingest(ctx, pipeline, activity)
		}
		if err != nil {
			log.WithError(err).Error("dropping reporter connection")
			s.closeWithError(conn, err)
			return
		}
	}
}

// ingest runs one event through the pipeline, turning a panic into an
// internal error so the deferred cleanup still runs with a usable state.
func (s *Server) ingest(ctx context.Context, p *tracker.Pipeline, activity session.Activity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = session.InternalError("handle activity", fmt.Errorf("panic: %v", r))
		}
	}()
	return p.Handle(ctx, activity)
}

// pingLoop keeps the connection alive and lets pongs refresh reporter
// liveness. WriteControl is safe alongside the reader goroutine.
func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.Tracker.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.config.Tracker.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *Server) closeWithError(conn *websocket.Conn, err error) {
	msg := websocket.FormatCloseMessage(closeCodeFor(err), closeReason(err))
	deadline := time.Now().Add(s.config.Tracker.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
}

// closeReason fits err's text into a close frame. Control frames carry at
// most 125 bytes, two of them for the code, and the reason must stay valid
// UTF-8, so it is cut at a rune boundary.
func closeReason(err error) string {
	reason := err.Error()
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

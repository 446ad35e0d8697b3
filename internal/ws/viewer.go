package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("viewer upgrade failed")
		return
	}
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()

	log := s.log.WithField("viewer", r.RemoteAddr)
	log.Info("Viewer connected")
	defer log.Info("Viewer disconnected")

	// Subscribe before reading the snapshot so nothing committed after the
	// snapshot query can be missed.
	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	segments, err := s.catchup.Snapshot(context.Background(), s.now())
	if err != nil {
		log.WithError(err).Error("viewer snapshot failed")
		s.closeWithError(conn, err)
		return
	}
	if err := s.sendJSON(conn, segments); err != nil {
		return
	}

	// Viewers send nothing; reading only notices the close and answers pings.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.Tracker.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case update, ok := <-sub.C():
			if !ok {
				return
			}
			if err := s.sendJSON(conn, update); err != nil {
				log.WithError(err).Debug("viewer write failed")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.config.Tracker.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
			if n := sub.Dropped(); n > 0 {
				log.WithFields(logrus.Fields{"dropped": n}).Warn("viewer falling behind")
			}
		}
	}
}

func (s *Server) sendJSON(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(s.config.Tracker.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

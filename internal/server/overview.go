package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"notespresence/internal/models"
)

const overviewWriteTimeout = 5 * time.Second

var overviewUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

type overviewSnapshot struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Online      int                  `json:"online"`
	Total       int                  `json:"total"`
	Users       []models.UserProfile `json:"users"`
}

func (s *Server) buildOverviewSnapshot() overviewSnapshot {
	users := s.service.Profiles()
	online := 0
	for _, u := range users {
		if u.IsOnline {
			online++
		}
	}
	return overviewSnapshot{
		GeneratedAt: time.Now().UTC(),
		Online:      online,
		Total:       len(users),
		Users:       users,
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := overviewUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveOverviewConnection(conn)
}

// serveOverviewConnection pushes a snapshot on connect, on every change and
// on a fixed interval until the client goes away.
func (s *Server) serveOverviewConnection(conn *websocket.Conn) {
	defer conn.Close()

	updates, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	if err := writeOverviewPayload(conn, s.buildOverviewSnapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
		case <-updates:
		case <-done:
			return
		}
		if err := writeOverviewPayload(conn, s.buildOverviewSnapshot()); err != nil {
			s.logger.Debugw("overview client dropped", "error", err)
			return
		}
	}
}

func writeOverviewPayload(conn *websocket.Conn, payload overviewSnapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(overviewWriteTimeout))
	return conn.WriteJSON(payload)
}

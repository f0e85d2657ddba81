package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitoring"
)

// statesPushInterval is how often the signal-state table is pushed to
// websocket clients.
const statesPushInterval = 1 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins on the local
	// network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatesStream upgrades to a websocket and pushes the signal
// state table on a fixed tick until the client goes away.
func (s *Server) handleStatesStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	monitoring.Logf("api: state stream client %s connected", clientID)
	defer monitoring.Logf("api: state stream client %s disconnected", clientID)

	ticker := s.clock.NewTicker(statesPushInterval)
	defer ticker.Stop()

	// push the current table immediately so clients don't render blank
	// until the first tick
	if err := conn.WriteJSON(s.statesPayload()); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C():
			if err := conn.WriteJSON(s.statesPayload()); err != nil {
				return
			}
		}
	}
}

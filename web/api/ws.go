package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to localhost; cross-origin dashboards are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamAgent pushes an active agent's output lines over a websocket,
// polling the in-memory buffer and sending only what the client has not
// seen yet. The socket closes when the agent finishes.
func (s *Server) streamAgent(w http.ResponseWriter, r *http.Request, runID string) {
	agent := s.agents.Get(runID)
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not active")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			lines := agent.Output()
			for ; sent < len(lines); sent++ {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(lines[sent])); err != nil {
					return
				}
			}
			// Agent gone from the manager means the run settled.
			if s.agents.Get(runID) == nil {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
		}
	}
}

package websocket

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"clipforge-backend/internal/events"
	"clipforge-backend/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub upgrades progress requests to WebSocket connections and streams
// project events from the bus. Each project carries at most one live
// progress stream; a newer connection supersedes the previous one.
type Hub struct {
	store *store.Store
	bus   *events.Bus
}

func NewHub(st *store.Store, bus *events.Bus) *Hub {
	return &Hub{store: st, bus: bus}
}

// HandleProgress streams progress events for a single project until the
// pipeline reaches a terminal state or the client disconnects.
func (h *Hub) HandleProgress(w http.ResponseWriter, r *http.Request, projectID uuid.UUID) {
	if _, ok := h.store.Get(projectID); !ok {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed for project %s: %v", projectID, err)
		return
	}
	defer conn.Close()

	ch, cancel := h.bus.Subscribe(projectID)
	defer cancel()

	log.Printf("[WS] Progress stream opened: project %s", projectID)

	// Read pump: we never expect client messages, but reading is the only
	// way to observe the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Printf("[WS] Client disconnected: project %s", projectID)
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("[WS] Write failed for project %s: %v", projectID, err)
				return
			}
			if ev.Terminal() {
				// Give the client the final frame, then close cleanly.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
				log.Printf("[WS] Progress stream finished: project %s", projectID)
				return
			}
		}
	}
}

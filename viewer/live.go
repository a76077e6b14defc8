package viewer

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tmarkus/hexzero/store"
)

// LiveFrame is one websocket message: a snapshot of an in-progress game.
type LiveFrame struct {
	GameID string                 `json:"game_id"`
	State  store.ScenarioSnapshot `json:"state"`
}

// LiveHub fans self-play frames out to websocket subscribers. It
// implements selfplay.Publisher; slow or gone clients are dropped rather
// than allowed to stall the game loop.
type LiveHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan LiveFrame
}

func NewLiveHub() *LiveHub {
	return &LiveHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local tool: accept any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan LiveFrame),
	}
}

// Publish queues a frame for every connected client. Never blocks: a
// client whose buffer is full just misses frames.
func (h *LiveHub) Publish(gameID string, snap store.ScenarioSnapshot) {
	frame := LiveFrame{GameID: gameID, State: snap}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// ServeHTTP upgrades the connection and streams frames until the client
// disconnects.
func (h *LiveHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := make(chan LiveFrame, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	// Discard inbound messages but notice the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	for frame := range ch {
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

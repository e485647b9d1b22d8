package handlers

import (
	"net/http"
	"sync"

	"chess-orchestrator/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// eventEnvelope wraps every outbound event with its type tag.
type eventEnvelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventHub broadcasts core events to every connected websocket client. It
// implements services.EventSink; a slow client is dropped rather than allowed
// to stall the analysis path.
type EventHub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]chan eventEnvelope
	upgrader websocket.Upgrader
}

// NewEventHub creates the event broadcast hub.
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*websocket.Conn]chan eventEnvelope),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// EmitBestMoves broadcasts an analysis snapshot.
func (h *EventHub) EmitBestMoves(payload models.BestMovesPayload) {
	h.broadcast(eventEnvelope{Type: "best_moves_payload", Payload: payload})
}

// EmitReportProgress broadcasts a game analysis progress event.
func (h *EventHub) EmitReportProgress(progress models.ReportProgress) {
	h.broadcast(eventEnvelope{Type: "report_progress", Payload: progress})
}

func (h *EventHub) broadcast(event eventEnvelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, ch := range h.clients {
		select {
		case ch <- event:
		default:
			logrus.Warn("dropping slow event stream client")
			close(ch)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Serve upgrades the request to a websocket and streams events until the
// client disconnects.
// GET /api/events
func (h *EventHub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("websocket upgrade failed: %v", err)
		return
	}

	ch := make(chan eventEnvelope, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	// Reader: discard inbound frames, notice disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *EventHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	conn.Close()
}

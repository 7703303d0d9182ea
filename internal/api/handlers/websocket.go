package handlers

import (
	"log"
	"net/http"

	"github.com/dom/pickup-queue/internal/websocket"
	ws "github.com/gorilla/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Display screens are served from anywhere
	},
}

type WebSocketHandler struct {
	hub *websocket.Hub
}

func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Handle upgrades a viewer. With ?eventId= the client is subscribed right
// away; otherwise it must send SUBSCRIBE.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	if eventID != "" {
		if _, err := h.hub.ResolveEventID(eventID); err != nil {
			http.Error(w, "Invalid event ID", http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	if eventID != "" {
		view := r.URL.Query().Get("view")
		if view == "" {
			view = "player"
		}
		log.Printf("WebSocket: %s view connected to event %s", view, eventID)
		client.Subscribe(eventID)
	}
}

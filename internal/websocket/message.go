package websocket

import (
	"encoding/json"
	"time"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/live"
)

type MessageType string

const (
	// Client to Server
	MessageTypeSubscribe   MessageType = "SUBSCRIBE"
	MessageTypeUnsubscribe MessageType = "UNSUBSCRIBE"
	MessageTypeRefresh     MessageType = "REFRESH"

	// Server to Client
	MessageTypeConnectionStatus MessageType = "CONNECTION_STATUS"
	MessageTypeQueueState       MessageType = "QUEUE_STATE"
	MessageTypeTick             MessageType = "TICK"
	MessageTypeError            MessageType = "ERROR"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Client to Server payloads

type SubscribePayload struct {
	EventID string `json:"eventId"`
}

// Server to Client payloads

type ConnectionStatusPayload struct {
	EventID string                `json:"eventId"`
	Status  live.ConnectionStatus `json:"status"`
	Error   string                `json:"error,omitempty"`
}

type QueueStatePayload struct {
	EventID   string                `json:"eventId"`
	Reason    live.Reason           `json:"reason"`
	Status    live.ConnectionStatus `json:"status"`
	Stale     bool                  `json:"stale"`
	ElapsedMs int64                 `json:"elapsedMs"`
	State     *domain.QueueState    `json:"state"`
	Error     string                `json:"error,omitempty"`
}

type TickPayload struct {
	EventID   string `json:"eventId"`
	ElapsedMs int64  `json:"elapsedMs"`
	Stale     bool   `json:"stale"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// messageForUpdate turns a session update into the frame a viewer sees.
func messageForUpdate(eventID string, u live.Update) (*Message, error) {
	var errText string
	if u.Err != nil {
		errText = u.Err.Error()
	}

	switch u.Reason {
	case live.ReasonStatus:
		return NewMessage(MessageTypeConnectionStatus, ConnectionStatusPayload{
			EventID: eventID,
			Status:  u.Status,
			Error:   errText,
		})
	case live.ReasonTick:
		return NewMessage(MessageTypeTick, TickPayload{
			EventID:   eventID,
			ElapsedMs: u.Elapsed.Milliseconds(),
			Stale:     u.Stale,
		})
	}

	return NewMessage(MessageTypeQueueState, QueueStatePayload{
		EventID:   eventID,
		Reason:    u.Reason,
		Status:    u.Status,
		Stale:     u.Stale,
		ElapsedMs: u.Elapsed.Milliseconds(),
		State:     u.State,
		Error:     errText,
	})
}

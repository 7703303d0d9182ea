package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/dom/pickup-queue/internal/live"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	commandRate  = rate.Limit(5)
	commandBurst = 10
)

// latestTypes are frames where only the newest matters. They bypass the
// send buffer so a slow viewer always ends on the current state.
var latestTypes = []MessageType{MessageTypeConnectionStatus, MessageTypeQueueState}

// Client is one viewer connection. It follows at most one event at a time.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	dirty   chan struct{}
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	latest  map[MessageType][]byte
	session *live.Session
	eventID string
	closed  bool
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		dirty:   make(chan struct{}, 1),
		latest:  make(map[MessageType][]byte),
		limiter: rate.NewLimiter(commandRate, commandBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.sendError("RATE_LIMITED", "Too many commands")
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("failed to unmarshal message: %v", err)
			c.sendError("INVALID_MESSAGE", "Message is not valid JSON")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.write(message); err != nil {
				return
			}
		case <-c.dirty:
			for _, message := range c.takeLatest() {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.write(message); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(message []byte) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(message)
	return w.Close()
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		var payload SubscribePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.EventID == "" {
			c.sendError("INVALID_PAYLOAD", "Invalid subscribe payload")
			return
		}
		c.Subscribe(payload.EventID)

	case MessageTypeUnsubscribe:
		c.unsubscribe()

	case MessageTypeRefresh:
		c.mu.RLock()
		session := c.session
		c.mu.RUnlock()
		if session == nil {
			c.sendError("NOT_SUBSCRIBED", "Subscribe to an event first")
			return
		}
		session.Refresh()

	default:
		c.sendError("UNKNOWN_MESSAGE", "Unknown message type")
	}
}

// Subscribe switches the client to eventID, replacing any earlier session.
func (c *Client) Subscribe(rawEventID string) {
	eventID, err := c.hub.ResolveEventID(rawEventID)
	if err != nil {
		c.sendError("INVALID_EVENT", "Event id must be a uuid or a known alias")
		return
	}

	c.unsubscribe()

	session := c.hub.manager.Subscribe(c.ctx, eventID, func(u live.Update) {
		c.deliver(rawEventID, u)
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		session.Close()
		return
	}
	prev := c.session
	c.session = session
	c.eventID = rawEventID
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

func (c *Client) unsubscribe() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.eventID = ""
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

// EventID returns the event the client follows, as the client named it.
func (c *Client) EventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eventID
}

func (c *Client) deliver(eventID string, u live.Update) {
	msg, err := messageForUpdate(eventID, u)
	if err != nil {
		log.Printf("ERROR [websocket.deliver] failed to build message: %v", err)
		return
	}
	c.Send(msg)
}

func (c *Client) sendError(code, message string) {
	msg, _ := NewMessage(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
	c.Send(msg)
}

func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("failed to marshal message: %v", err)
		return
	}
	for _, t := range latestTypes {
		if msg.Type == t {
			c.setLatest(msg.Type, data)
			return
		}
	}
	c.trySend(data)
}

// setLatest replaces any unsent frame of the same type and wakes WritePump.
func (c *Client) setLatest(msgType MessageType, data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.latest[msgType] = data
	c.mu.Unlock()

	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// takeLatest empties the latest-frame slots, status before state.
func (c *Client) takeLatest() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var frames [][]byte
	for _, t := range latestTypes {
		if data, ok := c.latest[t]; ok {
			frames = append(frames, data)
			delete(c.latest, t)
		}
	}
	return frames
}

// trySend drops the frame when the client is gone or not keeping up.
// Only TICK and ERROR frames travel this way.
func (c *Client) trySend(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

// Close ends the session and closes the send channel, which makes
// WritePump send a close frame.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	session := c.session
	c.session = nil
	c.mu.Unlock()

	c.cancel()
	if session != nil {
		session.Close()
	}

	c.mu.Lock()
	close(c.send)
	c.mu.Unlock()
}

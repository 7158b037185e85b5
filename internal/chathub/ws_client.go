package chathub

import (
	"chatcore/backend/internal/models"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// WebSocketClient реалізує інтерфейс chathub.Client
type WebSocketClient struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.Event
}

// NewWebSocketClient wraps an upgraded connection of an authenticated user.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID string) *WebSocketClient {
	return &WebSocketClient{
		UserID: userID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.Event, sendBufferSize),
	}
}

func (c *WebSocketClient) GetUserID() string                    { return c.UserID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump)
func (c *WebSocketClient) Close() {
	close(c.Send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: [Hub] Read error for user %s: %v", c.UserID, err)
			}
			break
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("WARN: [Hub] Invalid frame from user %s: %v", c.UserID, err)
			continue
		}
		c.Hub.Submit(Frame{UserID: c.UserID, ClientFrame: frame})
	}
}

// writePump пише події з каналу Send у WebSocket і підтримує з'єднання ping-ами.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

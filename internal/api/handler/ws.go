package handler

import (
	"chatcore/backend/internal/chathub"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Дозволяє з'єднання з будь-якого домену. У продакшені налаштувати!
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket. The caller is already authenticated by RequireAuth.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	if h.Hub == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "real-time gateway disabled"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		log.Printf("WARN: [API] WebSocket upgrade failed: %v", err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, currentUser(c))
	h.Hub.Register(client)
	client.Run()
}

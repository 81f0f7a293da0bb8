package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dispatch/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from app origins we do not control here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades provider/requester connections into notification
// sessions.
type WSHandler struct {
	registry *ws.Registry
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *ws.Registry) *WSHandler {
	return &WSHandler{registry: registry}
}

// Connect handles GET /v1/notifications/:id/ws
func (h *WSHandler) Connect(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing user id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed for %s: %v", userID, err)
		return
	}

	h.registry.Add(userID, conn)

	// Drain the connection until the peer goes away so pings and close
	// frames are processed.
	go func() {
		defer func() {
			h.registry.Remove(userID, conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

package gateway

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// wsClient is one connected operator UI.
type wsClient struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

// hub broadcasts state snapshots to all connected operator UIs.
type hub struct {
	log        *logrus.Logger
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient

	// done is closed when run exits so client goroutines never block on the
	// register/unregister channels during shutdown.
	done chan struct{}
}

func newHub(log *logrus.Logger) *hub {
	return &hub{
		log:        log,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// add hands a client to the hub unless the hub has already stopped.
func (h *hub) add(c *wsClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// drop detaches a client; a no-op once the hub has stopped.
func (h *hub) drop(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump drains the connection until the peer goes away; the UI talks to the
// station over the HTTP API, not the socket.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.log.WithError(err).Debug("websocket write failed")
			return
		}
	}
}

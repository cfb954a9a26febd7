package websocket

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local tooling only
	},
}

// Client represents a WebSocket client connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	mu       sync.RWMutex
	subnodes map[uint8]bool // nil means all sub-nodes
}

// clientCommand is the only message shape clients send.
type clientCommand struct {
	Type     string `json:"type"`
	Subnodes []int  `json:"subnodes"`
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) wants(subnode uint8) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subnodes == nil || c.subnodes[subnode]
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			break
		}

		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd clientCommand) {
	c.logger.Debug("Received client message",
		zap.String("remote_addr", c.remoteAddr()),
		zap.String("type", cmd.Type))

	switch cmd.Type {
	case "subscribe":
		c.mu.Lock()
		c.subnodes = make(map[uint8]bool, len(cmd.Subnodes))
		for _, s := range cmd.Subnodes {
			if s >= 0 && s <= 255 {
				c.subnodes[uint8(s)] = true
			}
		}
		c.mu.Unlock()
		c.reply(NewMessage(MessageTypeSubscribed, SubscriptionData{Subnodes: c.subscription()}))

	case "unsubscribe":
		c.mu.Lock()
		c.subnodes = nil
		c.mu.Unlock()
		c.reply(NewMessage(MessageTypeSubscribed, SubscriptionData{Subnodes: c.subscription()}))

	default:
		c.reply(NewMessage(MessageTypeError, ErrorData{Error: "unknown message type: " + cmd.Type}))
	}
}

// subscription lists the subscribed sub-nodes; nil means all.
func (c *Client) subscription() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subnodes == nil {
		return nil
	}
	out := make([]int, 0, len(c.subnodes))
	for s := range c.subnodes {
		out = append(out, int(s))
	}
	sort.Ints(out)
	return out
}

// reply queues a message for this client only. It must not race with the
// hub closing send, so it goes through the hub lock.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame so clients can decode with ReadJSON.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	if !hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

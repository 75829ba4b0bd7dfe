package ws

import (
	"encoding/json"
	"time"

	"confidential_rps/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one websocket subscriber watching one game.
type Client struct {
	Principal common.Address
	Game      string
	Conn      *websocket.Conn
	Send      chan []byte

	Hub  *Hub
	Room *Room
	Done chan struct{}

	pong chan struct{}
}

func NewClient(principal common.Address, game string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		Principal: principal,
		Game:      game,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Hub:       hub,
		Done:      make(chan struct{}),
		pong:      make(chan struct{}, 1),
	}
}

func (c *Client) Run() {
	go c.writePump()

	if msg, err := encode(MsgReady, nil); err == nil {
		c.Send <- msg
	}

	c.Room = c.Hub.Subscribe(c)
	c.readPump()
	<-c.Done
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.OnDisconnect(c)
		_ = c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws read error", "principal", c.Principal.Hex(), "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		if env.Type == MsgPing {
			select {
			case c.pong <- struct{}{}:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	pongMsg, _ := encode(MsgPong, nil)
	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn("ws write error", "principal", c.Principal.Hex(), "error", err)
				return
			}

		case <-c.pong:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, pongMsg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

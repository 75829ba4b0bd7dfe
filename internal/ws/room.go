package ws

import (
	"sync"
	"time"

	"confidential_rps/internal/logger"
)

// Room fans out the events of one game to its subscribers.
type Room struct {
	ID      string
	Clients map[*Client]struct{}

	Register   chan *Client
	Disconnect chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once

	mu  sync.RWMutex
	hub *Hub

	// lastJoin is guarded by hub.mu
	lastJoin time.Time
}

func NewRoom(id string, hub *Hub) *Room {
	return &Room{
		ID:         id,
		Clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client, 8),
		Disconnect: make(chan *Client, 8),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		lastJoin:   time.Now(),
		hub:        hub,
	}
}

func (r *Room) Run() {
	for {
		select {
		case c := <-r.Register:
			r.mu.Lock()
			r.Clients[c] = struct{}{}
			r.mu.Unlock()
			logger.Debug("ws subscribed", "game", r.ID, "principal", c.Principal.Hex())
			if msg := r.hub.initialState(r.ID); msg != nil {
				r.send(c, msg)
			}

		case c := <-r.Disconnect:
			r.mu.Lock()
			if _, ok := r.Clients[c]; ok {
				delete(r.Clients, c)
				close(c.Send)
			}
			r.mu.Unlock()
			logger.Debug("ws unsubscribed", "game", r.ID, "principal", c.Principal.Hex())

		case msg := <-r.broadcast:
			r.mu.RLock()
			clients := make([]*Client, 0, len(r.Clients))
			for c := range r.Clients {
				clients = append(clients, c)
			}
			r.mu.RUnlock()
			for _, c := range clients {
				r.send(c, msg)
			}

		case <-r.done:
			r.mu.Lock()
			for c := range r.Clients {
				close(c.Send)
				delete(r.Clients, c)
			}
			r.mu.Unlock()
			return
		}
	}
}

// Broadcast queues msg for every subscriber. Drops when the room is closed.
func (r *Room) Broadcast(msg []byte) {
	select {
	case r.broadcast <- msg:
	case <-r.done:
	}
}

// send drops the message for a client whose buffer is full.
func (r *Room) send(c *Client, msg []byte) {
	select {
	case c.Send <- msg:
	default:
		logger.Warn("ws client too slow, dropping message", "game", r.ID, "principal", c.Principal.Hex())
	}
}

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

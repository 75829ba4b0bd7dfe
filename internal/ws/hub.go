package ws

import (
	"sync"
	"time"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/logger"
)

const roomIdleTTL = time.Hour

// SnapshotFunc returns the current state of a game for new subscribers.
type SnapshotFunc func(game string) (interface{}, error)

// Hub keeps one Room per watched game address.
type Hub struct {
	Rooms    map[string]*Room
	mu       sync.RWMutex
	snapshot SnapshotFunc
}

func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		Rooms:    make(map[string]*Room),
		snapshot: snapshot,
	}
}

// Subscribe attaches c to the room of c.Game, creating it if needed.
func (h *Hub) Subscribe(c *Client) *Room {
	h.mu.Lock()
	room, ok := h.Rooms[c.Game]
	if !ok {
		room = NewRoom(c.Game, h)
		h.Rooms[c.Game] = room
		go room.Run()
		logger.Debug("ws room created", "game", c.Game)
	}
	// stamped under h.mu so cleanup cannot close the room before Run
	// has taken the registration
	room.lastJoin = time.Now()
	h.mu.Unlock()

	select {
	case room.Register <- c:
	case <-room.done:
	}
	return room
}

// Publish implements service.Publisher.
func (h *Hub) Publish(e domain.GameEvent) {
	h.mu.RLock()
	room, ok := h.Rooms[e.Game]
	h.mu.RUnlock()
	if !ok {
		return
	}

	msg, err := encode(MsgEvent, e)
	if err != nil {
		logger.Error("ws encode event", "error", err)
		return
	}
	room.Broadcast(msg)
}

func (h *Hub) OnDisconnect(c *Client) {
	h.mu.RLock()
	room, ok := h.Rooms[c.Game]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case room.Disconnect <- c:
	case <-room.done:
	}
}

func (h *Hub) initialState(game string) []byte {
	if h.snapshot == nil {
		return nil
	}
	snap, err := h.snapshot(game)
	if err != nil {
		msg, _ := encode(MsgError, ErrorPayload{Message: err.Error()})
		return msg
	}
	msg, err := encode(MsgSnapshot, snap)
	if err != nil {
		return nil
	}
	return msg
}

func (h *Hub) StartCleanup() {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			h.cleanupStaleRooms()
		}
	}()
}

func (h *Hub) cleanupStaleRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, room := range h.Rooms {
		if room.Len() == 0 && time.Since(room.lastJoin) > roomIdleTTL {
			room.Close()
			delete(h.Rooms, id)
			logger.Info("cleaned up stale ws room", "game", id)
		}
	}
}

// Close stops every room.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.Rooms {
		room.Close()
		delete(h.Rooms, id)
	}
}

package game

import (
	"time"

	"confidential_rps/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// SetListener replaces the transition observer. nil disables it.
func (g *Game) SetListener(l Listener) {
	g.mu.Lock()
	g.listener = l
	g.mu.Unlock()
}

func (g *Game) event(t domain.EventType, actor common.Address, slot *int, fill func(*domain.GameEvent)) domain.GameEvent {
	e := domain.GameEvent{
		Type: t,
		Game: g.address.Hex(),
		Slot: slot,
		At:   time.Now().UTC(),
	}
	if actor != (common.Address{}) {
		e.Actor = actor.Hex()
	}
	if fill != nil {
		fill(&e)
	}
	return e
}

// emit must be called without mu held.
func (g *Game) emit(events ...domain.GameEvent) {
	g.mu.Lock()
	l := g.listener
	g.mu.Unlock()
	if l == nil {
		return
	}
	for _, e := range events {
		l(e)
	}
}

package game

import (
	"context"
	"fmt"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/fhe"
	"confidential_rps/internal/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Play records caller's encrypted move. The proof must bind handle to this
// game and to caller. In single player mode an accepted move also draws the
// computer's move in the same call.
func (g *Game) Play(ctx context.Context, caller common.Address, handle fhe.Handle, proof []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logger.WithContext(ctx).With("game", g.address.Hex(), "player", caller.Hex())

	g.mu.Lock()
	slot := g.slotOf(caller)
	if slot < 0 {
		g.mu.Unlock()
		return ErrInvalidPlayer
	}
	if g.hasPlayed[slot] {
		g.mu.Unlock()
		return ErrAlreadyPlayed
	}
	if handle.IsZero() {
		g.mu.Unlock()
		return fmt.Errorf("%w: empty handle", ErrProofVerificationFailed)
	}

	if err := g.cop.VerifyInput(g.address, caller, handle, proof); err != nil {
		g.mu.Unlock()
		log.Warn("move rejected", "slot", slot, "error", err)
		return fmt.Errorf("%w: %v", ErrProofVerificationFailed, err)
	}

	// the computer only draws once the human move is accepted
	var computer fhe.Handle
	if g.mode == SinglePlayer && slot == 0 {
		h, err := g.drawComputerMove()
		if err != nil {
			g.mu.Unlock()
			return fmt.Errorf("draw computer move: %w", err)
		}
		computer = h
	}

	g.encryptedMoves[slot] = handle
	g.hasPlayed[slot] = true
	g.cop.Allow(handle, g.address, caller, g.owner)

	events := []domain.GameEvent{g.event(domain.EventMovePlayed, caller, intPtr(slot), nil)}
	if !computer.IsZero() {
		g.encryptedMoves[1] = computer
		g.hasPlayed[1] = true
		g.cop.Allow(computer, g.address, g.owner)
		events = append(events, g.event(domain.EventMovePlayed, common.Address{}, intPtr(1), nil))
	}
	g.touch()
	g.mu.Unlock()

	log.Info("move recorded", "slot", slot, "handle", handle.Hex(), "computer", !computer.IsZero())
	g.emit(events...)
	return nil
}

// drawComputerMove must be called with mu held.
func (g *Game) drawComputerMove() (fhe.Handle, error) {
	if g.policy == PolicyLegacy {
		// 2-bit draw: 3 is possible and surfaces at resolution
		return g.cop.RandEuint8(g.address, 4)
	}
	return g.cop.RandEuint8Below(g.address, 3)
}

func intPtr(i int) *int { return &i }

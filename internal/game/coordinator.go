package game

import (
	"context"
	"errors"
	"fmt"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/fhe"
	"confidential_rps/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// RequestDecryption hands both encrypted moves to the oracle and returns the
// request id without waiting for the answer. The owner or any player may
// call it once both slots have played.
func (g *Game) RequestDecryption(ctx context.Context, caller common.Address) (uuid.UUID, error) {
	g.mu.Lock()
	if !g.isParticipant(caller) {
		g.mu.Unlock()
		return uuid.Nil, ErrInvalidPlayer
	}
	if !g.hasPlayed[0] || !g.hasPlayed[1] || g.state != NotRequested {
		g.mu.Unlock()
		return uuid.Nil, ErrInvalidState
	}

	id := uuid.New()
	g.state = Requested
	g.requestID = id
	req := fhe.DecryptionRequest{
		ID:       id,
		Contract: g.address,
		Handles:  []fhe.Handle{g.encryptedMoves[0], g.encryptedMoves[1]},
		Callback: g,
	}
	g.touch()
	g.mu.Unlock()

	log := logger.WithContext(ctx).With("game", g.address.Hex(), "request_id", id)
	// announced before Submit so the callback's event can never overtake it
	g.emit(g.event(domain.EventDecryptionRequested, caller, nil, func(e *domain.GameEvent) {
		e.RequestID = id.String()
	}))

	// submit outside the lock: a fast oracle may call back immediately
	if err := g.oracle.Submit(ctx, req); err != nil {
		g.mu.Lock()
		reverted := g.state == Requested && g.requestID == id
		if reverted {
			g.state = NotRequested
			g.requestID = uuid.Nil
			g.touch()
		}
		g.mu.Unlock()
		log.Warn("decryption submit failed", "error", err)
		if reverted {
			g.emit(g.event(domain.EventDecryptionFailed, caller, nil, func(e *domain.GameEvent) {
				e.RequestID = id.String()
			}))
		}
		return uuid.Nil, fmt.Errorf("submit decryption request: %w", err)
	}

	log.Info("decryption requested")
	return id, nil
}

// FulfillDecryption applies the oracle's answer. A second answer for a
// completed request fails with ErrAlreadyDecrypted and changes nothing.
func (g *Game) FulfillDecryption(ctx context.Context, f fhe.Fulfillment) error {
	g.mu.Lock()
	if f.RequestID == uuid.Nil || f.RequestID != g.requestID {
		g.mu.Unlock()
		return ErrUnknownRequest
	}
	if g.state == Completed {
		g.mu.Unlock()
		return ErrAlreadyDecrypted
	}
	if g.state != Requested {
		g.mu.Unlock()
		return ErrInvalidState
	}
	if err := fhe.VerifyFulfillment(f, g.oracle.Address()); err != nil {
		g.mu.Unlock()
		if errors.Is(err, fhe.ErrMalformedResult) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidOracleSignature, err)
	}
	if len(f.Handles) != 2 || f.Handles[0] != g.encryptedMoves[0] || f.Handles[1] != g.encryptedMoves[1] {
		g.mu.Unlock()
		return fmt.Errorf("%w: handles do not match request", fhe.ErrMalformedResult)
	}

	g.clearMoves = [2]uint64{f.Cleartexts[0], f.Cleartexts[1]}
	g.state = Completed
	close(g.decrypted)
	g.touch()
	g.mu.Unlock()

	logger.WithContext(ctx).Info("decryption completed", "game", g.address.Hex(), "request_id", f.RequestID)
	g.emit(g.event(domain.EventDecrypted, common.Address{}, nil, func(e *domain.GameEvent) {
		e.RequestID = f.RequestID.String()
	}))
	return nil
}

// EndGame resolves the round. Anyone may call it after decryption. Later
// calls return the stored result. An out-of-domain move stores
// ResultUndecidable and returns ErrUndecidableRound.
func (g *Game) EndGame(caller common.Address) (Result, error) {
	g.mu.Lock()
	if g.state != Completed {
		g.mu.Unlock()
		return ResultUndetermined, ErrNotYetDecrypted
	}
	if g.result != ResultUndetermined {
		r := g.result
		g.mu.Unlock()
		if r == ResultUndecidable {
			return r, ErrUndecidableRound
		}
		return r, nil
	}

	r, err := Resolve(moveFromClear(g.clearMoves[0]), moveFromClear(g.clearMoves[1]))
	g.result = r
	moves := g.clearMoves
	g.touch()
	g.mu.Unlock()

	log := logger.With("game", g.address.Hex(), "moves", moves[:])
	if err != nil {
		log.Warn("round undecidable")
	} else {
		log.Info("round resolved", "result", r.String())
	}
	g.emit(g.event(domain.EventResolved, caller, nil, func(e *domain.GameEvent) {
		e.Result = r.String()
	}))
	return r, err
}

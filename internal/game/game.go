// Package game is the authoritative state machine of one confidential
// rock-paper-scissors deployment.
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/fhe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Coprocessor is the part of the encrypted runtime the game calls into.
type Coprocessor interface {
	VerifyInput(contract, user common.Address, h fhe.Handle, proof []byte) error
	Allow(h fhe.Handle, principals ...common.Address)
	RandEuint8(contract common.Address, upperBound uint8) (fhe.Handle, error)
	RandEuint8Below(contract common.Address, n uint8) (fhe.Handle, error)
}

// Listener observes transitions. It is called after the game lock has been
// released, in the order the transitions happened for a given caller.
type Listener func(domain.GameEvent)

type Config struct {
	Address      common.Address
	Owner        common.Address
	Coprocessor  Coprocessor
	Oracle       fhe.Oracle
	RandomPolicy RandomPolicy
	Listener     Listener
}

// Game holds one deployment. Every operation runs under mu, so calls are
// applied one at a time.
type Game struct {
	mu sync.Mutex

	address  common.Address
	owner    common.Address
	cop      Coprocessor
	oracle   fhe.Oracle
	policy   RandomPolicy
	listener Listener

	mode           Mode
	players        [2]common.Address
	joined         int
	encryptedMoves [2]fhe.Handle
	hasPlayed      [2]bool

	state      DecryptionState
	requestID  uuid.UUID
	clearMoves [2]uint64
	result     Result
	decrypted  chan struct{}

	createdAt time.Time
	updatedAt time.Time
}

func New(cfg Config) (*Game, error) {
	if cfg.Address == (common.Address{}) {
		return nil, errors.New("game address is zero")
	}
	if cfg.Owner == (common.Address{}) {
		return nil, errors.New("game owner is zero")
	}
	if cfg.Coprocessor == nil {
		return nil, errors.New("game needs a coprocessor")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("game needs a decryption oracle")
	}
	if cfg.RandomPolicy == "" {
		cfg.RandomPolicy = PolicyResample
	}
	now := time.Now().UTC()
	return &Game{
		address:   cfg.Address,
		owner:     cfg.Owner,
		cop:       cfg.Coprocessor,
		oracle:    cfg.Oracle,
		policy:    cfg.RandomPolicy,
		listener:  cfg.Listener,
		decrypted: make(chan struct{}),
		createdAt: now,
		updatedAt: now,
	}, nil
}

func (g *Game) Address() common.Address { return g.address }

func (g *Game) Owner() common.Address { return g.owner }

// SelectMode switches between multi and single player. Only the owner may
// call it, and only before anyone has joined.
func (g *Game) SelectMode(caller common.Address, singlePlayer bool) error {
	g.mu.Lock()
	if caller != g.owner {
		g.mu.Unlock()
		return ErrNotOwner
	}
	if g.joined > 0 {
		g.mu.Unlock()
		return ErrInvalidState
	}
	g.mode = MultiPlayer
	if singlePlayer {
		g.mode = SinglePlayer
	}
	mode := g.mode
	g.touch()
	g.mu.Unlock()

	g.emit(g.event(domain.EventModeSelected, caller, nil, func(e *domain.GameEvent) {
		e.Mode = mode.String()
	}))
	return nil
}

// Join puts caller into the next free slot and returns it.
func (g *Game) Join(caller common.Address) (int, error) {
	if caller == (common.Address{}) {
		return -1, ErrInvalidPlayer
	}

	g.mu.Lock()
	capacity := 2
	if g.mode == SinglePlayer {
		capacity = 1
	}
	if g.joined >= capacity {
		g.mu.Unlock()
		return -1, ErrGameFull
	}
	if g.slotOf(caller) >= 0 {
		g.mu.Unlock()
		return -1, ErrAlreadyJoined
	}

	slot := g.joined
	g.players[slot] = caller
	if g.mode == SinglePlayer {
		// the computer reports the human's address
		g.players[1] = caller
	}
	g.joined++
	g.touch()
	g.mu.Unlock()

	g.emit(g.event(domain.EventPlayerJoined, caller, &slot, nil))
	return slot, nil
}

// Player returns the identity in slot, or the zero address before join.
func (g *Game) Player(slot int) (common.Address, error) {
	if err := checkSlot(slot); err != nil {
		return common.Address{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.players[slot], nil
}

func (g *Game) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// EncryptedMove returns the handle stored for slot; ZeroHandle if unplayed.
func (g *Game) EncryptedMove(slot int) (fhe.Handle, error) {
	if err := checkSlot(slot); err != nil {
		return fhe.ZeroHandle, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.encryptedMoves[slot], nil
}

func (g *Game) HasPlayed(slot int) (bool, error) {
	if err := checkSlot(slot); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasPlayed[slot], nil
}

func (g *Game) DecryptionState() DecryptionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// RequestID is the id of the outstanding or completed decryption request.
func (g *Game) RequestID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requestID
}

// ClearMove is available once decryption has completed.
func (g *Game) ClearMove(slot int) (uint64, error) {
	if err := checkSlot(slot); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Completed {
		return 0, ErrNotYetDecrypted
	}
	return g.clearMoves[slot], nil
}

func (g *Game) Result() Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result
}

// Snapshot copies the current state into its stored form.
func (g *Game) Snapshot() domain.GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := domain.GameSnapshot{
		Address:         g.address.Hex(),
		Owner:           g.owner.Hex(),
		Mode:            g.mode.String(),
		Players:         make([]string, 2),
		EncryptedMoves:  make([]string, 2),
		HasPlayed:       []bool{g.hasPlayed[0], g.hasPlayed[1]},
		DecryptionState: g.state.String(),
		Result:          g.result.String(),
		CreatedAt:       g.createdAt,
		UpdatedAt:       g.updatedAt,
	}
	for i := 0; i < 2; i++ {
		if g.players[i] != (common.Address{}) {
			s.Players[i] = g.players[i].Hex()
		}
		if !g.encryptedMoves[i].IsZero() {
			s.EncryptedMoves[i] = g.encryptedMoves[i].Hex()
		}
	}
	if g.requestID != uuid.Nil {
		id := g.requestID.String()
		s.RequestID = &id
	}
	if g.state == Completed {
		s.ClearMoves = []int64{int64(g.clearMoves[0]), int64(g.clearMoves[1])}
	}
	return s
}

// Decrypted is closed once the oracle result has been applied.
func (g *Game) Decrypted() <-chan struct{} { return g.decrypted }

// WaitDecrypted blocks until decryption completes or ctx ends.
func (g *Game) WaitDecrypted(ctx context.Context) error {
	select {
	case <-g.decrypted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slotOf must be called with mu held. Returns -1 when caller holds no slot.
func (g *Game) slotOf(caller common.Address) int {
	for i := 0; i < g.joined; i++ {
		if g.players[i] == caller {
			return i
		}
	}
	return -1
}

func (g *Game) isParticipant(caller common.Address) bool {
	return caller == g.owner || g.slotOf(caller) >= 0
}

func (g *Game) touch() { g.updatedAt = time.Now().UTC() }

func checkSlot(slot int) error {
	if slot < 0 || slot > 1 {
		return ErrInvalidSlot
	}
	return nil
}

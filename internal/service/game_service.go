package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/fhe"
	"confidential_rps/internal/game"
	"confidential_rps/internal/logger"
	"confidential_rps/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var ErrGameNotFound = errors.New("game not found")

// SnapshotStore persists game snapshots. *repository.GameRepository
// implements it.
type SnapshotStore interface {
	Save(ctx context.Context, s *domain.GameSnapshot) error
	GetByAddress(ctx context.Context, address string) (*domain.GameSnapshot, error)
	ListByPlayer(ctx context.Context, address string, limit int) ([]*domain.GameSnapshot, error)
}

// Publisher fans game events out to subscribers.
type Publisher interface {
	Publish(e domain.GameEvent)
}

type GameServiceConfig struct {
	Runtime      *fhe.Runtime
	Oracle       fhe.Oracle
	RandomPolicy game.RandomPolicy
	Store        SnapshotStore // optional
	Publisher    Publisher     // optional
	Audit        *AuditService // optional
}

// GameService hosts every deployed game of the process.
type GameService struct {
	rt     *fhe.Runtime
	oracle fhe.Oracle
	policy game.RandomPolicy
	store  SnapshotStore
	pub    Publisher
	audit  *AuditService

	mu          sync.RWMutex
	games       map[common.Address]*game.Game
	requests    map[uuid.UUID]*game.Game
	requestedAt map[uuid.UUID]time.Time
	nonces      map[common.Address]uint64
}

func NewGameService(cfg GameServiceConfig) *GameService {
	if cfg.RandomPolicy == "" {
		cfg.RandomPolicy = game.PolicyResample
	}
	return &GameService{
		rt:          cfg.Runtime,
		oracle:      cfg.Oracle,
		policy:      cfg.RandomPolicy,
		store:       cfg.Store,
		pub:         cfg.Publisher,
		audit:       cfg.Audit,
		games:       make(map[common.Address]*game.Game),
		requests:    make(map[uuid.UUID]*game.Game),
		requestedAt: make(map[uuid.UUID]time.Time),
		nonces:      make(map[common.Address]uint64),
	}
}

// Deploy creates a game owned by owner. The address is derived from the
// owner and a per-owner nonce, skipping addresses already stored.
func (s *GameService) Deploy(ctx context.Context, owner common.Address) (*game.Game, error) {
	if owner == (common.Address{}) {
		return nil, game.ErrInvalidPlayer
	}

	s.mu.Lock()
	var addr common.Address
	for {
		addr = crypto.CreateAddress(owner, s.nonces[owner])
		s.nonces[owner]++
		if _, live := s.games[addr]; !live && !s.stored(ctx, addr) {
			break
		}
	}

	g, err := game.New(game.Config{
		Address:      addr,
		Owner:        owner,
		Coprocessor:  s.rt,
		Oracle:       s.oracle,
		RandomPolicy: s.policy,
		Listener:     s.onEvent,
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.games[addr] = g
	s.mu.Unlock()

	s.persist(g)
	GamesDeployed.Inc()
	s.audit.Log(ctx, owner, addr, domain.AuditActionDeploy, domain.AuditCategoryGame, map[string]interface{}{
		"random_policy": string(s.policy),
	})
	logger.Info("game deployed", "game", addr.Hex(), "owner", owner.Hex())
	return g, nil
}

// stored must be called with mu held; it only reads the store.
func (s *GameService) stored(ctx context.Context, addr common.Address) bool {
	if s.store == nil {
		return false
	}
	_, err := s.store.GetByAddress(ctx, addr.Hex())
	return err == nil
}

// Get returns the live game at addr.
func (s *GameService) Get(addr common.Address) (*game.Game, error) {
	s.mu.RLock()
	g, ok := s.games[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Snapshot returns the live state of addr, or the stored one for games this
// process no longer hosts.
func (s *GameService) Snapshot(ctx context.Context, addr common.Address) (*domain.GameSnapshot, error) {
	if g, err := s.Get(addr); err == nil {
		snap := g.Snapshot()
		return &snap, nil
	}
	if s.store == nil {
		return nil, ErrGameNotFound
	}
	snap, err := s.store.GetByAddress(ctx, addr.Hex())
	if errors.Is(err, repository.ErrGameNotFound) {
		return nil, ErrGameNotFound
	}
	return snap, err
}

// ListByPlayer lists games owned or joined by addr, newest first.
func (s *GameService) ListByPlayer(ctx context.Context, addr common.Address, limit int) ([]*domain.GameSnapshot, error) {
	if s.store != nil {
		return s.store.ListByPlayer(ctx, addr.Hex(), limit)
	}

	s.mu.RLock()
	games := make([]*game.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.RUnlock()

	var out []*domain.GameSnapshot
	for _, g := range games {
		snap := g.Snapshot()
		if snap.Owner == addr.Hex() || snap.Players[0] == addr.Hex() || snap.Players[1] == addr.Hex() {
			out = append(out, &snap)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *GameService) SelectMode(ctx context.Context, addr, caller common.Address, singlePlayer bool) error {
	g, err := s.Get(addr)
	if err != nil {
		return err
	}
	if err := g.SelectMode(caller, singlePlayer); err != nil {
		return err
	}
	s.audit.Log(ctx, caller, addr, domain.AuditActionSelectMode, domain.AuditCategoryGame, map[string]interface{}{
		"single_player": singlePlayer,
	})
	return nil
}

func (s *GameService) Join(ctx context.Context, addr, caller common.Address) (int, error) {
	g, err := s.Get(addr)
	if err != nil {
		return -1, err
	}
	slot, err := g.Join(caller)
	if err != nil {
		return -1, err
	}
	s.audit.Log(ctx, caller, addr, domain.AuditActionJoin, domain.AuditCategoryGame, map[string]interface{}{"slot": slot})
	return slot, nil
}

// Encrypt builds an encrypted input for caller against the game. This is
// the client-side step; the server offers it for clients without a local
// encryption library.
func (s *GameService) Encrypt(addr, caller common.Address, move game.Move) (*fhe.EncryptedInput, error) {
	if _, err := s.Get(addr); err != nil {
		return nil, err
	}
	if !move.Valid() {
		return nil, fmt.Errorf("invalid move %d", move)
	}
	return s.rt.NewInput(addr, caller).Add8(uint8(move)).Encrypt()
}

func (s *GameService) Play(ctx context.Context, addr, caller common.Address, handle fhe.Handle, proof []byte) error {
	g, err := s.Get(addr)
	if err != nil {
		return err
	}
	if err := g.Play(ctx, caller, handle, proof); err != nil {
		return err
	}
	s.audit.Log(ctx, caller, addr, domain.AuditActionPlay, domain.AuditCategoryGame, map[string]interface{}{
		"handle": handle.Hex(),
	})
	return nil
}

func (s *GameService) RequestDecryption(ctx context.Context, addr, caller common.Address) (uuid.UUID, error) {
	g, err := s.Get(addr)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := g.RequestDecryption(ctx, caller)
	if err != nil {
		return uuid.Nil, err
	}

	DecryptionRequests.Inc()
	s.audit.Log(ctx, caller, addr, domain.AuditActionRequestDecryption, domain.AuditCategoryGame, map[string]interface{}{
		"request_id": id.String(),
	})
	return id, nil
}

// Fulfill routes an oracle answer received from outside the process to the
// game that issued the request.
func (s *GameService) Fulfill(ctx context.Context, f fhe.Fulfillment) error {
	s.mu.RLock()
	g, ok := s.requests[f.RequestID]
	s.mu.RUnlock()
	if !ok {
		OracleCallbacks.WithLabelValues("unknown").Inc()
		return game.ErrUnknownRequest
	}

	err := g.FulfillDecryption(ctx, f)
	switch {
	case err == nil:
		OracleCallbacks.WithLabelValues("applied").Inc()
	case errors.Is(err, game.ErrAlreadyDecrypted):
		OracleCallbacks.WithLabelValues("duplicate").Inc()
	default:
		OracleCallbacks.WithLabelValues("rejected").Inc()
	}
	return err
}

func (s *GameService) EndGame(ctx context.Context, addr, caller common.Address) (game.Result, error) {
	g, err := s.Get(addr)
	if err != nil {
		return game.ResultUndetermined, err
	}
	r, err := g.EndGame(caller)
	if err != nil && !errors.Is(err, game.ErrUndecidableRound) {
		return r, err
	}
	s.audit.Log(ctx, caller, addr, domain.AuditActionEndGame, domain.AuditCategoryGame, map[string]interface{}{
		"result": r.String(),
	})
	return r, err
}

func (s *GameService) EncryptedMove(addr common.Address, slot int) (fhe.Handle, error) {
	g, err := s.Get(addr)
	if err != nil {
		return fhe.ZeroHandle, err
	}
	return g.EncryptedMove(slot)
}

// UserDecrypt reveals the move in slot to caller, subject to the ACL.
func (s *GameService) UserDecrypt(ctx context.Context, addr, caller common.Address, slot int) (uint8, error) {
	h, err := s.EncryptedMove(addr, slot)
	if err != nil {
		return 0, err
	}
	if h.IsZero() {
		return 0, game.ErrInvalidState
	}
	v, err := s.rt.UserDecrypt(h, addr, caller)
	if err != nil {
		return 0, err
	}
	s.audit.Log(ctx, caller, addr, domain.AuditActionUserDecrypt, domain.AuditCategoryGame, map[string]interface{}{"slot": slot})
	return v, nil
}

// MoveReaders lists who may read the move in slot.
func (s *GameService) MoveReaders(addr common.Address, slot int) ([]common.Address, error) {
	h, err := s.EncryptedMove(addr, slot)
	if err != nil || h.IsZero() {
		return nil, err
	}
	return s.rt.ACL().AllowedFor(h), nil
}

// MoveCiphertext returns the sealed bytes of the move in slot if caller is
// on its ACL.
func (s *GameService) MoveCiphertext(addr, caller common.Address, slot int) ([]byte, error) {
	h, err := s.EncryptedMove(addr, slot)
	if err != nil {
		return nil, err
	}
	if h.IsZero() {
		return nil, game.ErrInvalidState
	}
	return s.rt.Ciphertext(h, caller)
}

// Trust returns the keys clients and external oracles must agree on.
func (s *GameService) Trust() (oracle, inputVerifier common.Address) {
	return s.oracle.Address(), s.rt.InputVerifierAddress()
}

func (s *GameService) onEvent(e domain.GameEvent) {
	addr := common.HexToAddress(e.Game)

	switch e.Type {
	case domain.EventMovePlayed:
		source := "human"
		if e.Actor == "" {
			source = "computer"
		}
		MovesRecorded.WithLabelValues(source).Inc()
	case domain.EventDecryptionRequested:
		id, err := uuid.Parse(e.RequestID)
		if g, gerr := s.Get(addr); err == nil && gerr == nil {
			s.mu.Lock()
			s.requests[id] = g
			s.requestedAt[id] = e.At
			s.mu.Unlock()
		}
	case domain.EventDecryptionFailed:
		if id, err := uuid.Parse(e.RequestID); err == nil {
			s.forgetRequest(id)
		}
	case domain.EventDecrypted:
		id, err := uuid.Parse(e.RequestID)
		if err == nil {
			s.mu.Lock()
			if at, ok := s.requestedAt[id]; ok {
				DecryptionLatency.Observe(e.At.Sub(at).Seconds())
				delete(s.requestedAt, id)
			}
			s.mu.Unlock()
		}
		s.audit.Log(context.Background(), s.oracle.Address(), addr, domain.AuditActionFulfill, domain.AuditCategoryOracle, map[string]interface{}{
			"request_id": e.RequestID,
		})
	case domain.EventResolved:
		RoundResults.WithLabelValues(e.Result).Inc()
		// a resolved game takes no further callbacks
		if g, err := s.Get(addr); err == nil {
			s.forgetRequest(g.RequestID())
		}
	}

	if g, err := s.Get(addr); err == nil {
		s.persist(g)
	}
	if s.pub != nil {
		s.pub.Publish(e)
	}
}

func (s *GameService) forgetRequest(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	s.mu.Lock()
	delete(s.requests, id)
	delete(s.requestedAt, id)
	s.mu.Unlock()
}

// pendingRequests is the number of request ids Fulfill still routes.
func (s *GameService) pendingRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

func sortNewestFirst(snaps []*domain.GameSnapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
}

func (s *GameService) persist(g *game.Game) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := g.Snapshot()
	if err := s.store.Save(ctx, &snap); err != nil {
		logger.Error("failed to save game snapshot", "game", snap.Address, "error", err)
	}
}

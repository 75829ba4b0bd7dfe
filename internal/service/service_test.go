package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/fhe"
	"confidential_rps/internal/game"
	"confidential_rps/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func init() { logger.Discard() }

type capture struct {
	mu  sync.Mutex
	evs []domain.GameEvent
}

func (c *capture) Publish(e domain.GameEvent) {
	c.mu.Lock()
	c.evs = append(c.evs, e)
	c.mu.Unlock()
}

func (c *capture) count(t domain.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.evs {
		if e.Type == t {
			n++
		}
	}
	return n
}

// heldOracle never answers on its own.
type heldOracle struct {
	*fhe.LocalOracle
	mu   sync.Mutex
	reqs []fhe.DecryptionRequest
}

func (h *heldOracle) Submit(_ context.Context, req fhe.DecryptionRequest) error {
	h.mu.Lock()
	h.reqs = append(h.reqs, req)
	h.mu.Unlock()
	return nil
}

// brokenOracle refuses every submission.
type brokenOracle struct {
	*fhe.LocalOracle
}

func (brokenOracle) Submit(context.Context, fhe.DecryptionRequest) error {
	return errors.New("relayer unreachable")
}

func newService(t *testing.T, oracleFor func(*fhe.Runtime) fhe.Oracle) (*GameService, *fhe.Runtime, *capture) {
	t.Helper()
	rt, err := fhe.NewRuntime()
	require.NoError(t, err)
	pub := &capture{}
	svc := NewGameService(GameServiceConfig{
		Runtime:   rt,
		Oracle:    oracleFor(rt),
		Publisher: pub,
		Audit:     NewAuditService(nil),
	})
	return svc, rt, pub
}

func localOracle(t *testing.T) func(*fhe.Runtime) fhe.Oracle {
	return func(rt *fhe.Runtime) fhe.Oracle {
		o, err := fhe.NewLocalOracle(rt, fhe.OracleConfig{})
		require.NoError(t, err)
		o.Start()
		t.Cleanup(o.Stop)
		return o
	}
}

func playBoth(t *testing.T, svc *GameService, addr common.Address, m1, m2 game.Move) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []struct {
		who  common.Address
		move game.Move
	}{{alice, m1}, {bob, m2}} {
		_, err := svc.Join(ctx, addr, p.who)
		require.NoError(t, err)
		in, err := svc.Encrypt(addr, p.who, p.move)
		require.NoError(t, err)
		require.NoError(t, svc.Play(ctx, addr, p.who, in.Handles[0], in.Proof))
	}
}

func TestDeployDerivesDistinctAddresses(t *testing.T) {
	svc, _, _ := newService(t, localOracle(t))
	ctx := context.Background()

	g1, err := svc.Deploy(ctx, owner)
	require.NoError(t, err)
	g2, err := svc.Deploy(ctx, owner)
	require.NoError(t, err)

	assert.NotEqual(t, common.Address{}, g1.Address())
	assert.NotEqual(t, g1.Address(), g2.Address())
	assert.Equal(t, crypto.CreateAddress(owner, 0), g1.Address())
	assert.Equal(t, owner, g1.Owner())

	_, err = svc.Deploy(ctx, common.Address{})
	require.Error(t, err)

	_, err = svc.Get(common.HexToAddress("0x1234"))
	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestFullRoundThroughService(t *testing.T) {
	svc, _, pub := newService(t, localOracle(t))
	ctx := context.Background()

	g, err := svc.Deploy(ctx, owner)
	require.NoError(t, err)
	addr := g.Address()
	playBoth(t, svc, addr, game.Rock, game.Paper)

	_, err = svc.EndGame(ctx, addr, owner)
	require.ErrorIs(t, err, game.ErrNotYetDecrypted)

	_, err = svc.RequestDecryption(ctx, addr, owner)
	require.NoError(t, err)

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, g.WaitDecrypted(wctx))

	r, err := svc.EndGame(ctx, addr, bob)
	require.NoError(t, err)
	assert.Equal(t, game.ResultPlayer2Wins, r)

	snap, err := svc.Snapshot(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "player2_wins", snap.Result)
	assert.Equal(t, []int64{0, 1}, snap.ClearMoves)

	assert.Equal(t, 2, pub.count(domain.EventMovePlayed))
	assert.Eventually(t, func() bool { return pub.count(domain.EventDecrypted) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pub.count(domain.EventResolved))

	list, err := svc.ListByPlayer(ctx, bob, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, addr.Hex(), list[0].Address)
}

func TestFulfillRoutesByRequestID(t *testing.T) {
	var held *heldOracle
	svc, _, _ := newService(t, func(rt *fhe.Runtime) fhe.Oracle {
		o, err := fhe.NewLocalOracle(rt, fhe.OracleConfig{})
		require.NoError(t, err)
		held = &heldOracle{LocalOracle: o}
		return held
	})
	ctx := context.Background()

	g, err := svc.Deploy(ctx, owner)
	require.NoError(t, err)
	playBoth(t, svc, g.Address(), game.Scissors, game.Scissors)

	require.ErrorIs(t, svc.Fulfill(ctx, fhe.Fulfillment{RequestID: uuid.New()}), game.ErrUnknownRequest)

	id, err := svc.RequestDecryption(ctx, g.Address(), alice)
	require.NoError(t, err)
	require.Len(t, held.reqs, 1)
	assert.Equal(t, id, held.reqs[0].ID)

	f, err := held.Decrypt(held.reqs[0])
	require.NoError(t, err)
	require.NoError(t, svc.Fulfill(ctx, f))
	require.ErrorIs(t, svc.Fulfill(ctx, f), game.ErrAlreadyDecrypted)

	r, err := svc.EndGame(ctx, g.Address(), alice)
	require.NoError(t, err)
	assert.Equal(t, game.ResultDraw, r)
}

func TestResolvedGameStopsRoutingCallbacks(t *testing.T) {
	var held *heldOracle
	svc, _, _ := newService(t, func(rt *fhe.Runtime) fhe.Oracle {
		o, err := fhe.NewLocalOracle(rt, fhe.OracleConfig{})
		require.NoError(t, err)
		held = &heldOracle{LocalOracle: o}
		return held
	})
	ctx := context.Background()

	g, err := svc.Deploy(ctx, owner)
	require.NoError(t, err)
	playBoth(t, svc, g.Address(), game.Rock, game.Paper)

	_, err = svc.RequestDecryption(ctx, g.Address(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.pendingRequests())

	f, err := held.Decrypt(held.reqs[0])
	require.NoError(t, err)
	require.NoError(t, svc.Fulfill(ctx, f))
	assert.Equal(t, 1, svc.pendingRequests())

	r, err := svc.EndGame(ctx, g.Address(), alice)
	require.NoError(t, err)
	assert.Equal(t, game.ResultPlayer2Wins, r)
	assert.Equal(t, 0, svc.pendingRequests())
	require.ErrorIs(t, svc.Fulfill(ctx, f), game.ErrUnknownRequest)
}

func TestFailedSubmitLeavesNoRoute(t *testing.T) {
	svc, _, pub := newService(t, func(rt *fhe.Runtime) fhe.Oracle {
		o, err := fhe.NewLocalOracle(rt, fhe.OracleConfig{})
		require.NoError(t, err)
		return brokenOracle{LocalOracle: o}
	})
	ctx := context.Background()

	g, err := svc.Deploy(ctx, owner)
	require.NoError(t, err)
	playBoth(t, svc, g.Address(), game.Rock, game.Paper)

	id, err := svc.RequestDecryption(ctx, g.Address(), alice)
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, 0, svc.pendingRequests())
	assert.Equal(t, 1, pub.count(domain.EventDecryptionFailed))
	assert.Equal(t, game.NotRequested, g.DecryptionState())
}

func TestUserDecryptFollowsACL(t *testing.T) {
	svc, _, _ := newService(t, localOracle(t))
	ctx := context.Background()

	g, err := svc.Deploy(ctx, owner)
	require.NoError(t, err)
	playBoth(t, svc, g.Address(), game.Paper, game.Rock)

	v, err := svc.UserDecrypt(ctx, g.Address(), alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(game.Paper), v)

	v, err = svc.UserDecrypt(ctx, g.Address(), owner, 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(game.Rock), v)

	_, err = svc.UserDecrypt(ctx, g.Address(), alice, 1)
	require.ErrorIs(t, err, fhe.ErrAccessDenied)
}

func TestSinglePlayerThroughService(t *testing.T) {
	svc, _, pub := newService(t, localOracle(t))
	ctx := context.Background()

	g, err := svc.Deploy(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, svc.SelectMode(ctx, g.Address(), owner, true))
	_, err = svc.Join(ctx, g.Address(), alice)
	require.NoError(t, err)

	in, err := svc.Encrypt(g.Address(), alice, game.Rock)
	require.NoError(t, err)
	require.NoError(t, svc.Play(ctx, g.Address(), alice, in.Handles[0], in.Proof))
	assert.Equal(t, 2, pub.count(domain.EventMovePlayed))

	_, err = svc.RequestDecryption(ctx, g.Address(), owner)
	require.NoError(t, err)
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, g.WaitDecrypted(wctx))

	r, err := svc.EndGame(ctx, g.Address(), alice)
	require.NoError(t, err)
	assert.NotEqual(t, game.ResultUndecidable, r)
}

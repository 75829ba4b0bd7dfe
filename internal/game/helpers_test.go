package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/fhe"
	"confidential_rps/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	mallory = common.HexToAddress("0x00000000000000000000000000000000000000e3")
	gameAt  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

func init() { logger.Discard() }

// manualOracle queues requests and answers only when told to.
type manualOracle struct {
	mu      sync.Mutex
	inner   *fhe.LocalOracle
	pending []fhe.DecryptionRequest
	fail    error
}

func (m *manualOracle) Submit(_ context.Context, req fhe.DecryptionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.pending = append(m.pending, req)
	return nil
}

func (m *manualOracle) Address() common.Address { return m.inner.Address() }

// fulfillment decrypts the oldest pending request without delivering it.
func (m *manualOracle) fulfillment(t *testing.T) fhe.Fulfillment {
	t.Helper()
	m.mu.Lock()
	require.NotEmpty(t, m.pending, "no pending decryption request")
	req := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()

	f, err := m.inner.Decrypt(req)
	require.NoError(t, err)
	return f
}

type fixture struct {
	rt     *fhe.Runtime
	oracle *manualOracle
	game   *Game
	events *eventLog
}

type eventLog struct {
	mu  sync.Mutex
	evs []domain.GameEvent
}

func (l *eventLog) add(e domain.GameEvent) {
	l.mu.Lock()
	l.evs = append(l.evs, e)
	l.mu.Unlock()
}

func (l *eventLog) types() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventType, 0, len(l.evs))
	for _, e := range l.evs {
		out = append(out, e.Type)
	}
	return out
}

func newFixture(t *testing.T, policy RandomPolicy, src fhe.RandomSource) *fixture {
	t.Helper()
	var opts []fhe.RuntimeOption
	if src != nil {
		opts = append(opts, fhe.WithRandomSource(src))
	}
	rt, err := fhe.NewRuntime(opts...)
	require.NoError(t, err)
	local, err := fhe.NewLocalOracle(rt, fhe.OracleConfig{})
	require.NoError(t, err)

	oracle := &manualOracle{inner: local}
	events := &eventLog{}
	g, err := New(Config{
		Address:      gameAt,
		Owner:        owner,
		Coprocessor:  rt,
		Oracle:       oracle,
		RandomPolicy: policy,
		Listener:     events.add,
	})
	require.NoError(t, err)
	return &fixture{rt: rt, oracle: oracle, game: g, events: events}
}

func (f *fixture) encrypt(t *testing.T, user common.Address, m Move) *fhe.EncryptedInput {
	t.Helper()
	in, err := f.rt.NewInput(gameAt, user).Add8(uint8(m)).Encrypt()
	require.NoError(t, err)
	return in
}

func (f *fixture) play(t *testing.T, user common.Address, m Move) {
	t.Helper()
	in := f.encrypt(t, user, m)
	require.NoError(t, f.game.Play(context.Background(), user, in.Handles[0], in.Proof))
}

func (f *fixture) decrypt(t *testing.T) {
	t.Helper()
	_, err := f.game.RequestDecryption(context.Background(), owner)
	require.NoError(t, err)
	require.NoError(t, f.game.FulfillDecryption(context.Background(), f.oracle.fulfillment(t)))
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

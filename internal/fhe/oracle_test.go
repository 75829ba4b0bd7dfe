package fhe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	got   []Fulfillment
	errs  []error
	calls int
	done  chan struct{}
}

func newRecorder(errs ...error) *recorder {
	return &recorder{errs: errs, done: make(chan struct{}, 8)}
}

func (r *recorder) FulfillDecryption(_ context.Context, f Fulfillment) error {
	r.mu.Lock()
	defer func() {
		r.mu.Unlock()
		r.done <- struct{}{}
	}()
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return err
		}
	}
	r.got = append(r.got, f)
	return nil
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for oracle callback")
	}
}

type flaky struct{}

func (flaky) Error() string   { return "receiver busy" }
func (flaky) Temporary() bool { return true }

func newOracle(t *testing.T, rt *Runtime, cfg OracleConfig) *LocalOracle {
	t.Helper()
	o, err := NewLocalOracle(rt, cfg)
	require.NoError(t, err)
	o.Start()
	t.Cleanup(o.Stop)
	return o
}

func TestOracleFulfillsAsynchronously(t *testing.T) {
	rt := newRuntime(t)
	o := newOracle(t, rt, OracleConfig{Delay: 20 * time.Millisecond})

	a, err := rt.NewInput(contractAddr, alice).Add8(0).Encrypt()
	require.NoError(t, err)
	b, err := rt.NewInput(contractAddr, bob).Add8(2).Encrypt()
	require.NoError(t, err)
	require.NoError(t, rt.VerifyInput(contractAddr, alice, a.Handles[0], a.Proof))
	require.NoError(t, rt.VerifyInput(contractAddr, bob, b.Handles[0], b.Proof))

	rec := newRecorder()
	req := DecryptionRequest{
		ID:       uuid.New(),
		Contract: contractAddr,
		Handles:  []Handle{a.Handles[0], b.Handles[0]},
		Callback: rec,
	}
	require.NoError(t, o.Submit(context.Background(), req))

	rec.mu.Lock()
	assert.Equal(t, 0, rec.calls, "submit must not wait for decryption")
	rec.mu.Unlock()

	rec.wait(t)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.got, 1)
	f := rec.got[0]
	assert.Equal(t, req.ID, f.RequestID)
	assert.Equal(t, []uint64{0, 2}, f.Cleartexts)
	require.NoError(t, VerifyFulfillment(f, o.Address()))
}

func TestOracleRefusesHandlesOutsideACL(t *testing.T) {
	rt := newRuntime(t)
	o := newOracle(t, rt, OracleConfig{})

	in, err := rt.NewInput(contractAddr, alice).Add8(1).Encrypt()
	require.NoError(t, err)

	_, err = o.Decrypt(DecryptionRequest{ID: uuid.New(), Contract: contractAddr, Handles: in.Handles})
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestOracleRetriesTemporaryFailures(t *testing.T) {
	rt := newRuntime(t)
	o := newOracle(t, rt, OracleConfig{RetryBackoff: time.Millisecond})

	h, err := rt.RandEuint8(contractAddr, 4)
	require.NoError(t, err)

	rec := newRecorder(flaky{}, nil)
	require.NoError(t, o.Submit(context.Background(), DecryptionRequest{
		ID: uuid.New(), Contract: contractAddr, Handles: []Handle{h}, Callback: rec,
	}))
	rec.wait(t)
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.calls)
	assert.Len(t, rec.got, 1)
}

func TestOracleDoesNotRetryPermanentFailures(t *testing.T) {
	rt := newRuntime(t)
	o := newOracle(t, rt, OracleConfig{RetryBackoff: time.Millisecond})

	h, err := rt.RandEuint8(contractAddr, 4)
	require.NoError(t, err)

	rec := newRecorder(errors.New("already decrypted"))
	require.NoError(t, o.Submit(context.Background(), DecryptionRequest{
		ID: uuid.New(), Contract: contractAddr, Handles: []Handle{h}, Callback: rec,
	}))
	rec.wait(t)

	select {
	case <-rec.done:
		t.Fatal("permanent failure was retried")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestVerifyFulfillmentRejectsForgery(t *testing.T) {
	rt := newRuntime(t)
	o := newOracle(t, rt, OracleConfig{})

	h, err := rt.RandEuint8(contractAddr, 4)
	require.NoError(t, err)
	f, err := o.Decrypt(DecryptionRequest{ID: uuid.New(), Contract: contractAddr, Handles: []Handle{h}})
	require.NoError(t, err)
	require.NoError(t, VerifyFulfillment(f, o.Address()))

	forged := f
	forged.Cleartexts = []uint64{f.Cleartexts[0] ^ 1}
	require.ErrorIs(t, VerifyFulfillment(forged, o.Address()), ErrBadSignature)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	resigned := f
	require.NoError(t, SignFulfillment(&resigned, other))
	require.ErrorIs(t, VerifyFulfillment(resigned, o.Address()), ErrBadSignature)

	short := f
	short.Cleartexts = nil
	require.ErrorIs(t, VerifyFulfillment(short, o.Address()), ErrMalformedResult)
}

func TestSubmitAfterStop(t *testing.T) {
	rt := newRuntime(t)
	o, err := NewLocalOracle(rt, OracleConfig{})
	require.NoError(t, err)
	o.Start()
	o.Stop()

	err = o.Submit(context.Background(), DecryptionRequest{
		ID: uuid.New(), Contract: contractAddr, Handles: []Handle{HexToHandle("0x01")}, Callback: newRecorder(),
	})
	require.ErrorIs(t, err, ErrOracleStopped)
}

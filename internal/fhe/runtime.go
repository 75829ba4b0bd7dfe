package fhe

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const maxResamples = 64

// Runtime bundles the ciphertext store, the ACL and the input verifier.
type Runtime struct {
	store    *CiphertextStore
	acl      *ACL
	verifier *InputVerifier
	random   RandomSource
	seq      atomic.Uint64
}

type RuntimeOption func(*Runtime)

// WithRandomSource replaces the crypto/rand backed source.
func WithRandomSource(src RandomSource) RuntimeOption {
	return func(r *Runtime) { r.random = src }
}

// NewRuntime creates a runtime with a fresh store key and verifier key.
func NewRuntime(opts ...RuntimeOption) (*Runtime, error) {
	store, err := NewCiphertextStore()
	if err != nil {
		return nil, err
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate input verifier key")
	}
	verifier, err := newInputVerifier(key)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		store:    store,
		acl:      NewACL(),
		verifier: verifier,
		random:   cryptoSource{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runtime) ACL() *ACL { return r.acl }

// NewInput starts an encrypted input bound to contract and user.
func (r *Runtime) NewInput(contract, user common.Address) *InputBuilder {
	return &InputBuilder{rt: r, contract: contract, user: user}
}

// VerifyInput checks that proof authorizes h as a value supplied by user for
// contract. On success the contract is granted access to h.
func (r *Runtime) VerifyInput(contract, user common.Address, h Handle, proof []byte) error {
	if !r.store.Has(h) {
		return errors.Wrapf(ErrUnknownHandle, "handle %s", h)
	}
	if err := r.verifier.verify(contract, user, h, proof); err != nil {
		return err
	}
	r.acl.Allow(h, contract)
	return nil
}

// Allow grants principals access to h.
func (r *Runtime) Allow(h Handle, principals ...common.Address) {
	r.acl.Allow(h, principals...)
}

// IsAllowed reports whether principal may use h.
func (r *Runtime) IsAllowed(h Handle, principal common.Address) bool {
	return r.acl.IsAllowed(h, principal)
}

// RandEuint8 draws an encrypted value in [0, upperBound). upperBound must
// be a power of two because the draw keeps only the low bits of the source.
func (r *Runtime) RandEuint8(contract common.Address, upperBound uint8) (Handle, error) {
	if !isPowerOfTwo(upperBound) {
		return ZeroHandle, errors.Wrapf(ErrInvalidBound, "got %d", upperBound)
	}
	return r.trivialEncrypt(contract, r.random.Uint8()&(upperBound-1))
}

// RandEuint8Below draws an encrypted value in [0, n) by rejection sampling
// over the smallest power-of-two range covering n.
func (r *Runtime) RandEuint8Below(contract common.Address, n uint8) (Handle, error) {
	if n == 0 {
		return ZeroHandle, errors.Wrap(ErrInvalidBound, "n must be positive")
	}
	mask := bitMask(n)
	for i := 0; i < maxResamples; i++ {
		if v := r.random.Uint8() & mask; v < n {
			return r.trivialEncrypt(contract, v)
		}
	}
	return ZeroHandle, errors.Errorf("no draw below %d after %d attempts", n, maxResamples)
}

func (r *Runtime) trivialEncrypt(contract common.Address, v uint8) (Handle, error) {
	ct, err := r.store.seal(v)
	if err != nil {
		return ZeroHandle, err
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], r.seq.Add(1))
	h := deriveHandle([]byte("rps/fhe/rand/v1"), contract.Bytes(), seq[:], ct)
	r.store.put(h, ct)
	r.acl.Allow(h, contract)
	return h, nil
}

// Ciphertext returns the sealed bytes behind h if principal may read them.
func (r *Runtime) Ciphertext(h Handle, principal common.Address) ([]byte, error) {
	if !r.acl.IsAllowed(h, principal) {
		return nil, errors.Wrapf(ErrAccessDenied, "%s on %s", principal.Hex(), h)
	}
	return r.store.raw(h)
}

// UserDecrypt reveals h to user off-chain. Both the contract holding the
// value and the user must be on the ACL.
func (r *Runtime) UserDecrypt(h Handle, contract, user common.Address) (uint8, error) {
	if !r.acl.IsAllowed(h, contract) {
		return 0, errors.Wrapf(ErrAccessDenied, "contract %s on %s", contract.Hex(), h)
	}
	if !r.acl.IsAllowed(h, user) {
		return 0, errors.Wrapf(ErrAccessDenied, "user %s on %s", user.Hex(), h)
	}
	return r.store.open(h)
}

// InputVerifierAddress is the signer behind valid input proofs.
func (r *Runtime) InputVerifierAddress() common.Address { return r.verifier.Address() }

func (r *Runtime) decrypt(h Handle) (uint8, error) { return r.store.open(h) }

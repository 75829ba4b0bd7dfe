package fhe

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const (
	inputDomain      = "rps/fhe/input/v1"
	consumedCapacity = 1 << 16
	signatureLen     = 65
)

// EncryptedInput is what a client submits: handles plus one proof binding
// them to (contract, user).
type EncryptedInput struct {
	Handles []Handle `json:"handles"`
	Proof   []byte   `json:"proof"`
}

// InputBuilder accumulates plaintexts destined for one contract call.
type InputBuilder struct {
	rt       *Runtime
	contract common.Address
	user     common.Address
	values   []uint8
}

// Add8 appends an 8-bit plaintext.
func (b *InputBuilder) Add8(v uint8) *InputBuilder {
	b.values = append(b.values, v)
	return b
}

// Encrypt seals every value and signs the resulting handles.
func (b *InputBuilder) Encrypt() (*EncryptedInput, error) {
	if len(b.values) == 0 {
		return nil, errors.New("encrypted input has no values")
	}
	if len(b.values) > 255 {
		return nil, errors.New("encrypted input has too many values")
	}

	handles := make([]Handle, 0, len(b.values))
	for i, v := range b.values {
		ct, err := b.rt.store.seal(v)
		if err != nil {
			return nil, err
		}
		h := deriveHandle(ct, b.contract.Bytes(), b.user.Bytes(), []byte{byte(i)})
		b.rt.store.put(h, ct)
		handles = append(handles, h)
	}

	proof, err := b.rt.verifier.prove(b.contract, b.user, handles)
	if err != nil {
		return nil, err
	}
	return &EncryptedInput{Handles: handles, Proof: proof}, nil
}

// InputVerifier signs input proofs and checks them exactly once per handle.
type InputVerifier struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	consumed *lru.Cache
}

func newInputVerifier(key *ecdsa.PrivateKey) (*InputVerifier, error) {
	cache, err := lru.New(consumedCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "create consumed-proof cache")
	}
	return &InputVerifier{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		consumed: cache,
	}, nil
}

// Address is the signer every valid proof recovers to.
func (v *InputVerifier) Address() common.Address { return v.address }

func inputDigest(contract, user common.Address, handles []Handle) []byte {
	parts := make([][]byte, 0, 3+len(handles))
	parts = append(parts, []byte(inputDomain), contract.Bytes(), user.Bytes())
	for _, h := range handles {
		parts = append(parts, h.Bytes())
	}
	return crypto.Keccak256(parts...)
}

// proof layout: count(1) | handles(32*count) | signature(65)
func (v *InputVerifier) prove(contract, user common.Address, handles []Handle) ([]byte, error) {
	sig, err := crypto.Sign(inputDigest(contract, user, handles), v.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign input proof")
	}
	out := make([]byte, 0, 1+common.HashLength*len(handles)+signatureLen)
	out = append(out, byte(len(handles)))
	for _, h := range handles {
		out = append(out, h.Bytes()...)
	}
	return append(out, sig...), nil
}

func parseProof(proof []byte) ([]Handle, []byte, error) {
	if len(proof) < 1 {
		return nil, nil, errors.Wrap(ErrInvalidProof, "empty proof")
	}
	n := int(proof[0])
	want := 1 + n*common.HashLength + signatureLen
	if n == 0 || len(proof) != want {
		return nil, nil, errors.Wrapf(ErrInvalidProof, "proof length %d, want %d", len(proof), want)
	}
	handles := make([]Handle, n)
	for i := range handles {
		off := 1 + i*common.HashLength
		copy(handles[i][:], proof[off:off+common.HashLength])
	}
	return handles, proof[want-signatureLen:], nil
}

func (v *InputVerifier) verify(contract, user common.Address, h Handle, proof []byte) error {
	handles, sig, err := parseProof(proof)
	if err != nil {
		return err
	}

	listed := false
	for _, ph := range handles {
		if ph == h {
			listed = true
			break
		}
	}
	if !listed {
		return errors.Wrapf(ErrInvalidProof, "handle %s not covered by proof", h)
	}

	pub, err := crypto.SigToPub(inputDigest(contract, user, handles), sig)
	if err != nil {
		return errors.Wrap(ErrInvalidProof, err.Error())
	}
	if crypto.PubkeyToAddress(*pub) != v.address {
		return errors.Wrap(ErrInvalidProof, "proof not signed for this contract and user")
	}

	if seen, _ := v.consumed.ContainsOrAdd(h, struct{}{}); seen {
		return errors.Wrapf(ErrProofConsumed, "handle %s", h)
	}
	return nil
}

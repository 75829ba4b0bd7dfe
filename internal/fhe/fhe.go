// Package fhe is an in-process stand-in for the encrypted-value coprocessor
// the game depends on: it seals ciphertexts behind opaque handles, tracks
// which principals may read each handle, verifies input proofs and runs the
// asynchronous decryption oracle.
package fhe

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Handle is an opaque reference to a sealed ciphertext.
type Handle common.Hash

// ZeroHandle marks an unset slot.
var ZeroHandle Handle

func (h Handle) IsZero() bool { return h == ZeroHandle }

func (h Handle) Hex() string { return common.Hash(h).Hex() }

func (h Handle) String() string { return h.Hex() }

func (h Handle) Bytes() []byte { return common.Hash(h).Bytes() }

// MarshalText encodes the handle as 0x-prefixed hex.
func (h Handle) MarshalText() ([]byte, error) {
	return common.Hash(h).MarshalText()
}

// UnmarshalText decodes a 0x-prefixed hex handle.
func (h *Handle) UnmarshalText(input []byte) error {
	var c common.Hash
	if err := c.UnmarshalText(input); err != nil {
		return err
	}
	*h = Handle(c)
	return nil
}

// HexToHandle parses a hex string; invalid input yields ZeroHandle.
func HexToHandle(s string) Handle { return Handle(common.HexToHash(s)) }

var (
	ErrUnknownHandle   = errors.New("unknown ciphertext handle")
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidProof    = errors.New("invalid input proof")
	ErrProofConsumed   = errors.New("input proof already consumed")
	ErrInvalidBound    = errors.New("upper bound must be a non-zero power of two")
	ErrOracleStopped   = errors.New("oracle stopped")
	ErrBadSignature    = errors.New("fulfillment signature mismatch")
	ErrMalformedResult = errors.New("malformed fulfillment")
)

func deriveHandle(parts ...[]byte) Handle {
	return Handle(crypto.Keccak256Hash(parts...))
}

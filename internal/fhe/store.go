package fhe

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// CiphertextStore keeps sealed 8-bit values keyed by handle. It never
// returns plaintext; opening a value is reserved to the runtime and the
// oracle.
type CiphertextStore struct {
	key   [32]byte
	mu    sync.RWMutex
	items map[Handle][]byte
}

// NewCiphertextStore creates a store sealing values under a fresh random key.
func NewCiphertextStore() (*CiphertextStore, error) {
	s := &CiphertextStore{items: make(map[Handle][]byte)}
	if _, err := io.ReadFull(rand.Reader, s.key[:]); err != nil {
		return nil, errors.Wrap(err, "generate store key")
	}
	return s, nil
}

func (s *CiphertextStore) seal(v uint8) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return secretbox.Seal(nonce[:], []byte{v}, &nonce, &s.key), nil
}

func (s *CiphertextStore) put(h Handle, ct []byte) {
	s.mu.Lock()
	s.items[h] = ct
	s.mu.Unlock()
}

// Has reports whether a ciphertext exists for h.
func (s *CiphertextStore) Has(h Handle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[h]
	return ok
}

func (s *CiphertextStore) raw(h Handle) ([]byte, error) {
	s.mu.RLock()
	ct, ok := s.items[h]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHandle, "handle %s", h)
	}
	return append([]byte(nil), ct...), nil
}

func (s *CiphertextStore) open(h Handle) (uint8, error) {
	ct, err := s.raw(h)
	if err != nil {
		return 0, err
	}
	if len(ct) < nonceSize {
		return 0, errors.Errorf("ciphertext for %s truncated", h)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ct[:nonceSize])
	pt, ok := secretbox.Open(nil, ct[nonceSize:], &nonce, &s.key)
	if !ok || len(pt) != 1 {
		return 0, errors.Errorf("ciphertext for %s failed authentication", h)
	}
	return pt[0], nil
}

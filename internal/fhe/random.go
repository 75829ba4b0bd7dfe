package fhe

import (
	"crypto/rand"
	"sync"
)

// RandomSource yields raw random bytes for on-chain style draws.
type RandomSource interface {
	Uint8() uint8
}

type cryptoSource struct{}

func (cryptoSource) Uint8() uint8 {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("fhe: crypto/rand unavailable: " + err.Error())
	}
	return b[0]
}

// SequenceSource replays a fixed sequence, then repeats its last value.
// Used to make draws reproducible.
type SequenceSource struct {
	mu     sync.Mutex
	values []uint8
	next   int
}

func NewSequenceSource(values ...uint8) *SequenceSource {
	if len(values) == 0 {
		values = []uint8{0}
	}
	return &SequenceSource{values: values}
}

func (s *SequenceSource) Uint8() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next]
	if s.next < len(s.values)-1 {
		s.next++
	}
	return v
}

func isPowerOfTwo(n uint8) bool { return n != 0 && n&(n-1) == 0 }

// bitMask returns the smallest 2^k-1 covering n-1.
func bitMask(n uint8) uint8 {
	m := uint8(0)
	for m < n-1 {
		m = m<<1 | 1
	}
	return m
}

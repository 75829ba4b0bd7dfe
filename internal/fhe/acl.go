package fhe

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ACL is the side table of handle -> principals allowed to use it.
type ACL struct {
	mu      sync.RWMutex
	allowed map[Handle]map[common.Address]struct{}
}

func NewACL() *ACL {
	return &ACL{allowed: make(map[Handle]map[common.Address]struct{})}
}

// Allow grants every given principal access to h.
func (a *ACL) Allow(h Handle, principals ...common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.allowed[h]
	if !ok {
		set = make(map[common.Address]struct{})
		a.allowed[h] = set
	}
	for _, p := range principals {
		if p == (common.Address{}) {
			continue
		}
		set[p] = struct{}{}
	}
}

// IsAllowed reports whether principal may use h.
func (a *ACL) IsAllowed(h Handle, principal common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.allowed[h][principal]
	return ok
}

// AllowedFor lists the principals granted on h.
func (a *ACL) AllowedFor(h Handle) []common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]common.Address, 0, len(a.allowed[h]))
	for p := range a.allowed[h] {
		out = append(out, p)
	}
	return out
}

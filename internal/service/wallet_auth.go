package service

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNoChallenge      = errors.New("no pending challenge for address")
	ErrChallengeExpired = errors.New("challenge expired")
	ErrBadWalletSig     = errors.New("signature does not match address")
)

const challengeTTL = 5 * time.Minute

type challenge struct {
	message string
	expires time.Time
}

// AuthService issues sign-in challenges and turns a valid personal_sign
// signature over one into a JWT.
type AuthService struct {
	mu      sync.Mutex
	pending map[common.Address]challenge
	now     func() time.Time
}

func NewAuthService() *AuthService {
	return &AuthService{
		pending: make(map[common.Address]challenge),
		now:     time.Now,
	}
}

// Challenge returns the message address must sign. A new challenge replaces
// the previous one.
func (s *AuthService) Challenge(address common.Address) (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	msg := fmt.Sprintf("Sign in to confidential RPS\naddress: %s\nnonce: %s", address.Hex(), hex.EncodeToString(nonce[:]))

	s.mu.Lock()
	now := s.now()
	s.sweepLocked(now)
	s.pending[address] = challenge{message: msg, expires: now.Add(challengeTTL)}
	s.mu.Unlock()
	return msg, nil
}

// Verify checks sigHex against the pending challenge. The challenge is
// consumed by a valid signature or once it has expired; a bad signature
// leaves it in place.
func (s *AuthService) Verify(address common.Address, sigHex string) (string, error) {
	s.mu.Lock()
	ch, ok := s.pending[address]
	if ok && s.now().After(ch.expires) {
		delete(s.pending, address)
		s.mu.Unlock()
		return "", ErrChallengeExpired
	}
	s.mu.Unlock()
	if !ok {
		return "", ErrNoChallenge
	}

	if err := VerifyPersonalSignature(address, ch.message, sigHex); err != nil {
		return "", err
	}

	s.mu.Lock()
	cur, ok := s.pending[address]
	if !ok || cur.message != ch.message {
		// spent by a concurrent Verify or replaced by a new Challenge
		s.mu.Unlock()
		return "", ErrNoChallenge
	}
	delete(s.pending, address)
	s.mu.Unlock()
	return GenerateJWT(address)
}

// sweepLocked drops expired challenges. s.mu must be held.
func (s *AuthService) sweepLocked(now time.Time) {
	for addr, ch := range s.pending {
		if now.After(ch.expires) {
			delete(s.pending, addr)
		}
	}
}

// VerifyPersonalSignature checks an EIP-191 personal_sign signature.
func VerifyPersonalSignature(address common.Address, message, sigHex string) error {
	sig, err := hexutil.Decode(strings.TrimSpace(sigHex))
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrBadWalletSig
	}
	// wallets return v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return ErrBadWalletSig
	}
	if crypto.PubkeyToAddress(*pub) != address {
		return ErrBadWalletSig
	}
	return nil
}

// SignChallenge produces what a wallet would return for message. Used by
// the smoke client and tests.
func SignChallenge(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

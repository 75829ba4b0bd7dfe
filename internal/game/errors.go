package game

import "errors"

var (
	ErrInvalidPlayer           = errors.New("invalid player")
	ErrAlreadyPlayed           = errors.New("already played")
	ErrGameFull                = errors.New("game full")
	ErrInvalidState            = errors.New("invalid state")
	ErrNotYetDecrypted         = errors.New("moves not yet decrypted")
	ErrAlreadyDecrypted        = errors.New("moves already decrypted")
	ErrProofVerificationFailed = errors.New("proof verification failed")
	ErrUndecidableRound        = errors.New("unable to complete the round, play again")

	ErrNotOwner               = errors.New("caller is not the owner")
	ErrAlreadyJoined          = errors.New("already joined")
	ErrInvalidSlot            = errors.New("invalid slot")
	ErrUnknownRequest         = errors.New("unknown decryption request")
	ErrInvalidOracleSignature = errors.New("invalid oracle signature")
)

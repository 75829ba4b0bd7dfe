package handlers

import (
	"errors"
	"net/http"

	"confidential_rps/internal/fhe"
	"confidential_rps/internal/game"
	"confidential_rps/internal/logger"
	"confidential_rps/internal/service"

	"github.com/gin-gonic/gin"
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{game.ErrInvalidPlayer, http.StatusForbidden, "invalid_player"},
	{game.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{game.ErrAlreadyPlayed, http.StatusConflict, "already_played"},
	{game.ErrAlreadyJoined, http.StatusConflict, "already_joined"},
	{game.ErrGameFull, http.StatusConflict, "game_full"},
	{game.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{game.ErrNotYetDecrypted, http.StatusConflict, "not_yet_decrypted"},
	{game.ErrAlreadyDecrypted, http.StatusConflict, "already_decrypted"},
	{game.ErrUndecidableRound, http.StatusConflict, "undecidable_round"},
	{game.ErrProofVerificationFailed, http.StatusBadRequest, "proof_verification_failed"},
	{game.ErrInvalidSlot, http.StatusBadRequest, "invalid_slot"},
	{game.ErrUnknownRequest, http.StatusNotFound, "unknown_request"},
	{game.ErrInvalidOracleSignature, http.StatusUnauthorized, "invalid_oracle_signature"},
	{fhe.ErrMalformedResult, http.StatusBadRequest, "malformed_fulfillment"},
	{fhe.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{service.ErrGameNotFound, http.StatusNotFound, "game_not_found"},
	{service.ErrNoChallenge, http.StatusUnauthorized, "no_challenge"},
	{service.ErrChallengeExpired, http.StatusUnauthorized, "challenge_expired"},
	{service.ErrBadWalletSig, http.StatusUnauthorized, "bad_signature"},
}

// respondError writes {"error","code"} for err using errorTable; anything
// unknown is a 500.
func respondError(c *gin.Context, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": err.Error(), "code": e.code})
			return
		}
	}
	logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}

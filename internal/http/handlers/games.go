package handlers

import (
	"errors"
	"net/http"

	"confidential_rps/internal/fhe"
	"confidential_rps/internal/game"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

type ModeRequest struct {
	SinglePlayer bool `json:"single_player"`
}

type EncryptRequest struct {
	Move string `json:"move"` // rock | paper | scissors | 0..2
}

type PlayRequest struct {
	Handle fhe.Handle    `json:"handle"`
	Proof  hexutil.Bytes `json:"proof"`
}

// caller resolves the principal and game address or writes the error.
func caller(c *gin.Context) (principal, addr common.Address, ok bool) {
	p, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
		return principal, addr, false
	}
	a, ok := gameParam(c)
	if !ok {
		badRequest(c, "invalid game address")
		return principal, addr, false
	}
	return p, a, true
}

// Deploy creates a new game owned by the caller.
func (h *Handler) Deploy(c *gin.Context) {
	owner, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
		return
	}

	g, err := h.Games.Deploy(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g.Snapshot())
}

func (h *Handler) GetGame(c *gin.Context) {
	addr, ok := gameParam(c)
	if !ok {
		badRequest(c, "invalid game address")
		return
	}
	snap, err := h.Games.Snapshot(c.Request.Context(), addr)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// MyGames lists games the caller owns or plays in.
func (h *Handler) MyGames(c *gin.Context) {
	p, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
		return
	}
	games, err := h.Games.ListByPlayer(c.Request.Context(), p, 50)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (h *Handler) SelectMode(c *gin.Context) {
	p, addr, ok := caller(c)
	if !ok {
		return
	}
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad request")
		return
	}
	if err := h.Games.SelectMode(c.Request.Context(), addr, p, req.SinglePlayer); err != nil {
		respondError(c, err)
		return
	}
	mode := game.MultiPlayer
	if req.SinglePlayer {
		mode = game.SinglePlayer
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode.String()})
}

func (h *Handler) Join(c *gin.Context) {
	p, addr, ok := caller(c)
	if !ok {
		return
	}
	slot, err := h.Games.Join(c.Request.Context(), addr, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": slot})
}

// Encrypt builds a (handle, proof) pair for the caller's move.
func (h *Handler) Encrypt(c *gin.Context) {
	p, addr, ok := caller(c)
	if !ok {
		return
	}
	var req EncryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad request")
		return
	}
	move, err := game.ParseMove(req.Move)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	in, err := h.Games.Encrypt(addr, p, move)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"handle": in.Handles[0],
		"proof":  hexutil.Bytes(in.Proof),
	})
}

func (h *Handler) Play(c *gin.Context) {
	p, addr, ok := caller(c)
	if !ok {
		return
	}
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "handle and proof required")
		return
	}
	if err := h.Games.Play(c.Request.Context(), addr, p, req.Handle, req.Proof); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "played"})
}

// RequestDecryption returns 202: the oracle answers later.
func (h *Handler) RequestDecryption(c *gin.Context) {
	p, addr, ok := caller(c)
	if !ok {
		return
	}
	id, err := h.Games.RequestDecryption(c.Request.Context(), addr, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"request_id": id.String(), "decryption_state": game.Requested.String()})
}

func (h *Handler) EndGame(c *gin.Context) {
	p, addr, ok := caller(c)
	if !ok {
		return
	}
	r, err := h.Games.EndGame(c.Request.Context(), addr, p)
	if err != nil {
		if errors.Is(err, game.ErrUndecidableRound) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "undecidable_round", "result": r.String()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": r.String()})
}

func (h *Handler) GetMove(c *gin.Context) {
	addr, ok := gameParam(c)
	if !ok {
		badRequest(c, "invalid game address")
		return
	}
	slot, ok := slotParam(c)
	if !ok {
		respondError(c, game.ErrInvalidSlot)
		return
	}
	handle, err := h.Games.EncryptedMove(addr, slot)
	if err != nil {
		respondError(c, err)
		return
	}
	readers, err := h.Games.MoveReaders(addr, slot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": slot, "handle": handle, "played": !handle.IsZero(), "readers": readers})
}

// MoveCiphertext returns the sealed move bytes to a principal on the ACL.
func (h *Handler) MoveCiphertext(c *gin.Context) {
	p, addr, ok := caller(c)
	if !ok {
		return
	}
	slot, ok := slotParam(c)
	if !ok {
		respondError(c, game.ErrInvalidSlot)
		return
	}
	ct, err := h.Games.MoveCiphertext(addr, p, slot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": slot, "ciphertext": hexutil.Bytes(ct)})
}

// Trust publishes the oracle and input verifier addresses.
func (h *Handler) Trust(c *gin.Context) {
	oracle, verifier := h.Games.Trust()
	c.JSON(http.StatusOK, gin.H{"oracle": oracle, "input_verifier": verifier})
}

// DecryptMove reveals a stored move to the caller if the ACL allows it.
func (h *Handler) DecryptMove(c *gin.Context) {
	p, addr, ok := caller(c)
	if !ok {
		return
	}
	slot, ok := slotParam(c)
	if !ok {
		respondError(c, game.ErrInvalidSlot)
		return
	}
	v, err := h.Games.UserDecrypt(c.Request.Context(), addr, p, slot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": slot, "value": v, "move": game.Move(v).String()})
}

// Trail returns the audit entries of a game.
func (h *Handler) Trail(c *gin.Context) {
	addr, ok := gameParam(c)
	if !ok {
		badRequest(c, "invalid game address")
		return
	}
	logs, err := h.Audit.GameTrail(c.Request.Context(), addr, 200)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs})
}

// MyAudit returns the caller's own audit entries.
func (h *Handler) MyAudit(c *gin.Context) {
	p, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
		return
	}
	logs, err := h.Audit.History(c.Request.Context(), p, 100)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs})
}

package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type ChallengeRequest struct {
	Address string `json:"address"`
}

type AuthRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// Challenge returns the message the wallet must personal_sign.
func (h *Handler) Challenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Address) {
		badRequest(c, "address required")
		return
	}

	msg, err := h.Auth.Challenge(common.HexToAddress(req.Address))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Authenticate exchanges a signed challenge for a JWT.
func (h *Handler) Authenticate(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Address) || req.Signature == "" {
		badRequest(c, "address and signature required")
		return
	}
	if len(req.Signature) > 256 {
		badRequest(c, "signature too long")
		return
	}

	addr := common.HexToAddress(req.Address)
	token, err := h.Auth.Verify(addr, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}

	h.Audit.LogLogin(c.Request.Context(), addr, c.ClientIP(), c.Request.UserAgent())
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"address": addr.Hex(),
	})
}

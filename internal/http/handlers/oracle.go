package handlers

import (
	"net/http"

	"confidential_rps/internal/fhe"

	"github.com/gin-gonic/gin"
)

// Fulfill accepts an oracle answer delivered over HTTP. The signature is
// checked by the game against its trusted oracle address.
func (h *Handler) Fulfill(c *gin.Context) {
	var f fhe.Fulfillment
	if err := c.ShouldBindJSON(&f); err != nil {
		badRequest(c, "bad fulfillment")
		return
	}
	if err := h.Games.Fulfill(c.Request.Context(), f); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

package handlers

import (
	"strconv"

	"confidential_rps/internal/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// PrincipalKey is where the JWT middleware stores the caller address.
const PrincipalKey = "principal"

type Handler struct {
	Games *service.GameService
	Auth  *service.AuthService
	Audit *service.AuditService
}

func NewHandler(games *service.GameService, auth *service.AuthService, audit *service.AuditService) *Handler {
	return &Handler{
		Games: games,
		Auth:  auth,
		Audit: audit,
	}
}

// getPrincipal returns the caller address stored by the JWT middleware.
func getPrincipal(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok && addr != (common.Address{})
}

func gameParam(c *gin.Context) (common.Address, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func slotParam(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		return 0, false
	}
	return slot, true
}

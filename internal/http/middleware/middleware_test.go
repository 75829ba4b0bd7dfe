package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"confidential_rps/internal/http/handlers"
	"confidential_rps/internal/logger"
	"confidential_rps/internal/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Discard()
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, token string) int {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWTSetsPrincipal(t *testing.T) {
	service.InitJWT("mw-secret")
	want := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token, err := service.GenerateJWT(want)
	require.NoError(t, err)

	var got common.Address
	r := gin.New()
	r.GET("/x", JWT(), func(c *gin.Context) {
		v, _ := c.Get(handlers.PrincipalKey)
		got = v.(common.Address)
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "garbage"))
	assert.Equal(t, http.StatusOK, serve(r, token))
	assert.Equal(t, want, got)
}

func TestSimpleRateLimitBlocksAfterLimit(t *testing.T) {
	r := gin.New()
	r.GET("/x", SimpleRateLimit(2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, ""))
	assert.Equal(t, http.StatusOK, serve(r, ""))
	assert.Equal(t, http.StatusTooManyRequests, serve(r, ""))
}

func TestGameRateLimitIsPerPrincipal(t *testing.T) {
	service.InitJWT("mw-secret")
	a, err := service.GenerateJWT(common.HexToAddress("0x00000000000000000000000000000000000000a1"))
	require.NoError(t, err)
	b, err := service.GenerateJWT(common.HexToAddress("0x00000000000000000000000000000000000000b2"))
	require.NoError(t, err)

	r := gin.New()
	r.GET("/x", JWT(), GameRateLimit(1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, a))
	assert.Equal(t, http.StatusTooManyRequests, serve(r, a))
	assert.Equal(t, http.StatusOK, serve(r, b))
}

func TestGameRateLimitNeedsPrincipal(t *testing.T) {
	r := gin.New()
	r.GET("/x", GameRateLimit(5, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, ""))
}

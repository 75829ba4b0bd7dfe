package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGetPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	want := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	tests := []struct {
		name string
		set  any
		ok   bool
	}{
		{"unset", nil, false},
		{"address", want, true},
		{"zero address", common.Address{}, false},
		{"wrong type", want.Hex(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tt.set != nil {
				c.Set(PrincipalKey, tt.set)
			}
			got, ok := getPrincipal(c)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestGameParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "address", Value: "not-an-address"}}
	_, ok := gameParam(c)
	assert.False(t, ok)

	addr := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	c.Params = gin.Params{{Key: "address", Value: addr.Hex()}}
	got, ok := gameParam(c)
	assert.True(t, ok)
	assert.Equal(t, addr, got)
}

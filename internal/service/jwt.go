package service

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "confidential-rps"
	tokenTTL    = 24 * time.Hour
)

var (
	jwtSecret []byte

	ErrInvalidToken = errors.New("invalid token")
)

// principalClaims carries the wallet address as the subject.
type principalClaims struct {
	jwt.RegisteredClaims
}

func InitJWT(secret string) {
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	jwtSecret = []byte(secret)
}

// GenerateJWT issues a token naming address as the principal.
func GenerateJWT(address common.Address) (string, error) {
	now := time.Now()
	claims := principalClaims{jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   address.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

// ParseJWT validates the token and returns its principal.
func ParseJWT(tokenString string) (common.Address, error) {
	var claims principalClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return common.Address{}, errors.Join(ErrInvalidToken, err)
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, ErrInvalidToken
	}
	return common.HexToAddress(claims.Subject), nil
}

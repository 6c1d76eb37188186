package utils

import (
	"fmt"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenClaims struct {
	AdminID uuid.UUID `json:"admin_id"`
	jwt.RegisteredClaims
}

// GenerateAdminToken issues a signed JWT for an admin session.
func GenerateAdminToken(adminID uuid.UUID, ttl time.Duration) (string, error) {
	cfg := config.Get()
	claims := &TokenClaims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWT.Secret))
}

// ValidateAndParseToken verifies signature and expiry and returns the claims.
func ValidateAndParseToken(tokenString string) (*TokenClaims, error) {
	cfg := config.Get()
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Package auth provides authentication for Kestrel
package auth

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Token kinds distinguish short-lived access tokens from refresh tokens.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims represents the JWT claims for Kestrel authentication
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenConfig holds JWT configuration
type TokenConfig struct {
	Issuer       string
	ExpiryHours  int
	RefreshHours int
	SigningKey   ed25519.PrivateKey
	VerifyingKey ed25519.PublicKey
}

// GenerateToken creates a new access JWT for the given user ID and role
func GenerateToken(userID, role string, config *TokenConfig) (string, error) {
	return generate(userID, role, KindAccess, time.Duration(config.ExpiryHours)*time.Hour, config)
}

// GenerateRefreshToken creates a refresh JWT with a longer expiry
func GenerateRefreshToken(userID, role string, config *TokenConfig) (string, error) {
	hours := config.RefreshHours
	if hours == 0 {
		hours = config.ExpiryHours * 24
	}
	return generate(userID, role, KindRefresh, time.Duration(hours)*time.Hour, config)
}

func generate(userID, role, kind string, ttl time.Duration, config *TokenConfig) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(config.SigningKey)
}

// ValidateToken verifies a JWT and returns the claims if valid
func ValidateToken(tokenString string, config *TokenConfig) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, ErrInvalidToken
		}
		return config.VerifyingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateAccessToken verifies a JWT and additionally rejects refresh tokens.
func ValidateAccessToken(tokenString string, config *TokenConfig) (*Claims, error) {
	claims, err := ValidateToken(tokenString, config)
	if err != nil {
		return nil, err
	}
	if claims.Kind == KindRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common JWT validation errors
var (
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidToken     = errors.New("invalid token")
)

// Claims are the JWT claims carried by an admin session token
type Claims struct {
	UserID string   `json:"sub"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig configures token validation
type JWTConfig struct {
	SecretKey string
	Issuer    string
	Audience  []string
}

// JWTValidator validates session tokens
type JWTValidator struct {
	config JWTConfig
}

// NewJWTValidator creates a validator for HS256 session tokens
func NewJWTValidator(config JWTConfig) (*JWTValidator, error) {
	if config.SecretKey == "" {
		return nil, errors.New("jwt secret key is required")
	}
	return &JWTValidator{config: config}, nil
}

// ValidateToken parses and validates a token, returning its claims
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.config.SecretKey), nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.config.Issuer != "" && claims.Issuer != v.config.Issuer {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// JWTGenerator issues session tokens (used by tests and local tooling)
type JWTGenerator struct {
	config JWTConfig
	expiry time.Duration
}

// NewJWTGenerator creates a token generator
func NewJWTGenerator(config JWTConfig, expiry time.Duration) (*JWTGenerator, error) {
	if config.SecretKey == "" {
		return nil, errors.New("jwt secret key is required")
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &JWTGenerator{config: config, expiry: expiry}, nil
}

// GenerateToken issues a signed token for the given user
func (g *JWTGenerator) GenerateToken(userID, email string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.config.Issuer,
			Audience:  g.config.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(g.config.SecretKey))
}

package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "consultline-dev"

// Claims represents JWT claims structure. Channel is set only on rtc tokens,
// which authorize joining exactly one media room.
type Claims struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Channel string `json:"channel,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token operations
type JWTManager struct {
	secretKey           string
	accessTokenDuration time.Duration
	rtcTokenDuration    time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, accessTokenDuration, rtcTokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:           secretKey,
		accessTokenDuration: accessTokenDuration,
		rtcTokenDuration:    rtcTokenDuration,
	}
}

// GenerateAccessToken creates a bearer token for the REST API
func (m *JWTManager) GenerateAccessToken(userID, name string) (string, error) {
	return m.sign(&Claims{
		UserID:           userID,
		Name:             name,
		RegisteredClaims: m.registered(userID, m.accessTokenDuration),
	})
}

// GenerateRTCToken creates a short-lived credential scoped to channel
func (m *JWTManager) GenerateRTCToken(userID, channel string) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("channel is required")
	}
	return m.sign(&Claims{
		UserID:           userID,
		Channel:          channel,
		RegisteredClaims: m.registered(userID, m.rtcTokenDuration),
	})
}

// ValidateToken validates and parses JWT token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// ValidateRTCToken validates tokenString and checks it was issued for channel
func (m *JWTManager) ValidateRTCToken(tokenString, channel string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Channel == "" || claims.Channel != channel {
		return nil, fmt.Errorf("token not valid for channel %q", channel)
	}
	return claims, nil
}

// IsTokenExpired checks if token is expired (without validation)
func IsTokenExpired(tokenString string) bool {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return true
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ExpiresAt == nil {
		return true
	}

	return claims.ExpiresAt.Before(time.Now())
}

func (m *JWTManager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
		Subject:   subject,
		ID:        uuid.New().String(),
	}
}

func (m *JWTManager) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

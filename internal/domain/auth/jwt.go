// Package auth turns bearer tokens into a verified caller identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "docgate/internal/core/context"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "docgate",
		AccessTokenTTL: time.Hour,
	}
}

// Claims carries the caller identity. Subject is the user id that keys the
// caller's eligibility sets; the uuids stamp documents the caller creates.
type Claims struct {
	jwt.RegisteredClaims
	RoleUUID     string `json:"role_uuid,omitempty"`
	GroupUUID    string `json:"group_uuid,omitempty"`
	FirebaseUUID string `json:"firebase_uuid,omitempty"`
	ManagedUUID  string `json:"managed_uuid,omitempty"`
	SessionID    string `json:"sid,omitempty"`
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// GenerateAccessToken signs a token for caller. Used by tooling and tests;
// production tokens come from the session service sharing the secret.
func (s *JWTService) GenerateAccessToken(caller appctx.Caller) (string, time.Time, error) {
	if caller.UserID == "" {
		return "", time.Time{}, errors.New("caller has no user id")
	}
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		RoleUUID:     caller.RoleUUID,
		GroupUUID:    caller.GroupUUID,
		FirebaseUUID: caller.FirebaseUUID,
		ManagedUUID:  caller.ManagedUUID,
		SessionID:    caller.SessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT and returns the caller it identifies.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return &appctx.Caller{
		UserID:       claims.Subject,
		RoleUUID:     claims.RoleUUID,
		GroupUUID:    claims.GroupUUID,
		FirebaseUUID: claims.FirebaseUUID,
		ManagedUUID:  claims.ManagedUUID,
		SessionID:    claims.SessionID,
	}, nil
}

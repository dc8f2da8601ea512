package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/pkg/crypto"
)

// Token types carried in the "type" claim
const (
	TypeAccess        = "access"
	TypeRefresh       = "refresh"
	TypePasswordSetup = "password_setup"
)

// SetupTokenTTL is how long a password setup link stays valid
const SetupTokenTTL = 24 * time.Hour

const issuer = "unitlink"

// ErrWrongTokenType is returned when a valid token is used for another purpose
var ErrWrongTokenType = errors.New("wrong token type")

// JWTManager manages JWT tokens
type JWTManager struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.JWTConfig) *JWTManager {
	return &JWTManager{
		config: cfg,
		now:    time.Now,
	}
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
	Type string `json:"type"`
}

// TokenPair is the result of a login
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshID        string
	RefreshExpiresAt time.Time
}

// GenerateTokenPair generates access and refresh tokens
func (m *JWTManager) GenerateTokenPair(userID, role string) (*TokenPair, error) {
	access, err := m.GenerateAccessToken(userID, role)
	if err != nil {
		return nil, err
	}

	now := m.now()
	jti := uuid.New().String()
	expires := now.Add(m.config.RefreshTokenTTL)
	refresh, err := m.sign(Claims{
		RegisteredClaims: m.registered(userID, now, expires, jti),
		Role:             role,
		Type:             TypeRefresh,
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshID:        jti,
		RefreshExpiresAt: expires,
	}, nil
}

// GenerateAccessToken generates a short lived access token
func (m *JWTManager) GenerateAccessToken(userID, role string) (string, error) {
	now := m.now()
	token, err := m.sign(Claims{
		RegisteredClaims: m.registered(userID, now, now.Add(m.config.AccessTokenTTL), uuid.New().String()),
		Role:             role,
		Type:             TypeAccess,
	})
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// GenerateSetupToken generates a token that lets an approved user set a password
func (m *JWTManager) GenerateSetupToken(userID string) (string, error) {
	now := m.now()
	token, err := m.sign(Claims{
		RegisteredClaims: m.registered(userID, now, now.Add(SetupTokenTTL), uuid.New().String()),
		Type:             TypePasswordSetup,
	})
	if err != nil {
		return "", fmt.Errorf("sign setup token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a token of the given type
func (m *JWTManager) ValidateToken(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: %s", ErrWrongTokenType, claims.Type)
	}

	return claims, nil
}

// VerifyPassword verifies a password against a hash
func (m *JWTManager) VerifyPassword(password, hash string) bool {
	return crypto.VerifyPassword(password, hash)
}

func (m *JWTManager) registered(subject string, now, expires time.Time, jti string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
		ID:        jti,
	}
}

func (m *JWTManager) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.config.Secret))
}

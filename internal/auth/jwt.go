package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/radiolink/radiolink/internal/config"
	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/pkg/crypto"
)

const issuer = "radiolink"

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrInvalidToken is returned for tokens that fail validation
var ErrInvalidToken = errors.New("invalid token")

// UserLookup resolves the subject of a refresh token to a current user
type UserLookup func(ctx context.Context, id uuid.UUID) (*models.User, error)

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
	TokenType string    `json:"typ"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
}

// GenerateTokenPair issues an access token carrying the user's role and a
// refresh token that only identifies the user
func (m *JWTManager) GenerateTokenPair(user *models.User) (access, refresh string, err error) {
	now := m.now()

	access, err = m.sign(Claims{
		TokenType: tokenTypeAccess,
		UserID:    user.ID,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
	}, now, m.config.AccessTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}

	refresh, err = m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: uuid.NewString()},
		TokenType:        tokenTypeRefresh,
		UserID:           user.ID,
	}, now, m.config.RefreshTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}

	return access, refresh, nil
}

func (m *JWTManager) sign(c Claims, now time.Time, ttl time.Duration) (string, error) {
	c.Subject = c.UserID.String()
	c.Issuer = issuer
	c.IssuedAt = jwt.NewNumericDate(now)
	c.NotBefore = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(m.config.Secret))
}

func (m *JWTManager) parse(tokenString, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("%w: %s token used as %s", ErrInvalidToken, claims.TokenType, wantType)
	}

	return claims, nil
}

// ValidateToken validates an access token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	return m.parse(tokenString, tokenTypeAccess)
}

// RefreshToken exchanges a refresh token for a new token pair. The user is
// looked up again so deactivated accounts cannot refresh.
func (m *JWTManager) RefreshToken(ctx context.Context, refreshTokenString string, lookup UserLookup) (string, string, error) {
	claims, err := m.parse(refreshTokenString, tokenTypeRefresh)
	if err != nil {
		return "", "", err
	}

	user, err := lookup(ctx, claims.UserID)
	if err != nil {
		return "", "", fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return "", "", fmt.Errorf("%w: user is inactive", ErrInvalidToken)
	}

	return m.GenerateTokenPair(user)
}

// VerifyPassword verifies a password against a hash
func (m *JWTManager) VerifyPassword(password, hash string) bool {
	return crypto.VerifyPassword(password, hash)
}

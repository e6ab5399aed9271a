package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/internal/config"
	"github.com/radiolink/radiolink/internal/models"
)

func newManager() *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	m := newManager()
	user := &models.User{ID: uuid.New(), Username: "op", IsAdmin: true, IsActive: true}

	access, refresh, err := m.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	claims, err := m.ValidateToken(access)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != user.ID || claims.Username != "op" || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := m.ValidateToken(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	m := newManager()
	user := &models.User{ID: uuid.New()}
	access, _, err := m.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := m.ValidateToken(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	m := newManager()
	access, _, _ := m.GenerateTokenPair(&models.User{ID: uuid.New()})

	other := NewJWTManager(&config.JWTConfig{Secret: "other", AccessTokenTTL: time.Minute})
	if _, err := other.ValidateToken(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret error = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshToken(t *testing.T) {
	m := newManager()
	user := &models.User{ID: uuid.New(), Username: "op", IsActive: true}
	_, refresh, _ := m.GenerateTokenPair(user)

	lookup := func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		if id != user.ID {
			return nil, errors.New("not found")
		}
		return user, nil
	}

	access, _, err := m.RefreshToken(context.Background(), refresh, lookup)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	claims, err := m.ValidateToken(access)
	if err != nil || claims.Username != "op" {
		t.Errorf("refreshed claims = %+v, %v", claims, err)
	}

	user.IsActive = false
	if _, _, err := m.RefreshToken(context.Background(), refresh, lookup); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("inactive refresh error = %v, want ErrInvalidToken", err)
	}
}

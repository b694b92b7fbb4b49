package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	_, rdb := newRedis(t)
	return NewAuthService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour, BcryptCost: 4}, rdb)
}

func TestPasswordHashing(t *testing.T) {
	auth := newAuthService(t)
	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := auth.CheckPassword(hash, "hunter22"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := auth.CheckPassword(hash, "hunter23"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	auth := newAuthService(t)
	user := &model.User{ID: uuid.New(), Role: model.RoleAdmin}

	token, err := auth.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != model.RoleAdmin || claims.ID == "" {
		t.Errorf("claims = %+v", claims)
	}
	if len(claims.Permissions) != len(model.AllPermissions) {
		t.Errorf("admin permissions = %v", claims.Permissions)
	}

	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour}, nil)
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another secret accepted")
	}

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := auth.ValidateToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expired token err = %v", err)
	}
}

func TestRevoke(t *testing.T) {
	auth := newAuthService(t)
	ctx := context.Background()
	token, _ := auth.GenerateToken(&model.User{ID: uuid.New(), Role: model.RoleUser})
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if err := auth.CheckRevoked(ctx, claims); err != nil {
		t.Fatalf("fresh token revoked: %v", err)
	}
	if err := auth.Revoke(ctx, claims); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := auth.CheckRevoked(ctx, claims); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("err = %v, want ErrTokenRevoked", err)
	}
}

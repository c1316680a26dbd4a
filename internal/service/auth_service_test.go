package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"trfc-backend/internal/config"
	"trfc-backend/internal/domain"
	"trfc-backend/internal/repository/memory"
	"trfc-backend/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func newAuth(t *testing.T) (service.AuthService, *memory.Store, domain.User) {
	t.Helper()
	hash, err := service.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	org := uuid.New()
	user := domain.User{
		ID:           uuid.New(),
		OrgID:        &org,
		Name:         "Kiran",
		Email:        "kiran@example.com",
		Role:         domain.RoleManager,
		IsActive:     true,
		PasswordHash: &hash,
	}
	store := memory.New()
	store.AddUser(user)
	svc := service.AuthService{
		Config: config.Config{
			JWTSecret:       "test-secret",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Users: store,
	}
	return svc, store, user
}

func TestLogin(t *testing.T) {
	svc, store, user := newAuth(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, service.LoginInput{Email: "  KIRAN@example.com ", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ID != user.ID || res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("unexpected login result %+v", res)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(res.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}); err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims["sub"] != user.ID.String() || claims["token_type"] != "access" || claims["role"] != "manager" {
		t.Fatalf("unexpected access claims %v", claims)
	}

	if _, err := svc.Login(ctx, service.LoginInput{Email: user.Email, Password: "wrong"}); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, service.LoginInput{Email: "nobody@example.com", Password: "x"}); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}

	inactive := user
	inactive.ID = uuid.New()
	inactive.Email = "gone@example.com"
	inactive.IsActive = false
	store.AddUser(inactive)
	if _, err := svc.Login(ctx, service.LoginInput{Email: inactive.Email, Password: "s3cret-pass"}); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("inactive user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	svc, _, user := newAuth(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, service.LoginInput{Email: user.Email, Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	again, err := svc.Refresh(ctx, service.RefreshInput{RefreshToken: res.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if again.User.ID != user.ID {
		t.Fatalf("refresh issued tokens for %s", again.User.ID)
	}

	if _, err := svc.Refresh(ctx, service.RefreshInput{RefreshToken: res.AccessToken}); !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("access token used as refresh: expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Refresh(ctx, service.RefreshInput{RefreshToken: "garbage"}); !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("garbage token: expected ErrInvalidToken, got %v", err)
	}

	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        uuid.NewString(),
		"token_type": "refresh",
		"exp":        time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if _, err := svc.Refresh(ctx, service.RefreshInput{RefreshToken: forged}); !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("unknown subject: expected ErrInvalidToken, got %v", err)
	}
}

func TestLoginWithGoogleRequiresConfiguration(t *testing.T) {
	svc, _, _ := newAuth(t)
	if _, err := svc.LoginWithGoogle(context.Background(), service.GoogleLoginInput{IDToken: "x"}); err == nil {
		t.Fatalf("expected an error when no verifier is configured")
	}
}

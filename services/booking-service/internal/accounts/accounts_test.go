package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/barberline/barbershop/libs/auth"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
)

func TestCreateAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemory(), "test-secret", time.Hour, nil)

	admin, err := svc.CreateAdmin(ctx, " Owner@Barber.test ", "Owner", "clippers123")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if admin.Email != "owner@barber.test" || admin.PasswordHash == "clippers123" {
		t.Fatalf("unexpected admin %+v", admin)
	}
	if _, err := svc.CreateAdmin(ctx, "owner@barber.test", "Again", "clippers123"); !errors.Is(err, ErrAdminExists) {
		t.Fatalf("expected ErrAdminExists, got %v", err)
	}

	tok, err := svc.Login(ctx, "OWNER@barber.test", "clippers123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := auth.ParseAndVerifyHS256(tok.AccessToken, "test-secret")
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Sub != admin.ID || claims.Role != auth.RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemory(), "test-secret", time.Hour, nil)
	if _, err := svc.CreateAdmin(ctx, "owner@barber.test", "Owner", "clippers123"); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	for _, tc := range []struct{ email, password string }{
		{"owner@barber.test", "wrong-password"},
		{"nobody@barber.test", "clippers123"},
		{"owner@barber.test", ""},
	} {
		if _, err := svc.Login(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s/%q: expected ErrInvalidCredentials, got %v", tc.email, tc.password, err)
		}
	}
}

func TestCreateAdminRejectsShortPassword(t *testing.T) {
	svc := NewService(storage.NewMemory(), "test-secret", time.Hour, nil)
	if _, err := svc.CreateAdmin(context.Background(), "owner@barber.test", "Owner", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/studenthub/internal/application"
	"github.com/example/studenthub/internal/testfixtures"
)

func registerTestUser(t *testing.T, store *testfixtures.MemoryStore, clock *testfixtures.Clock) application.User {
	t.Helper()
	users := application.NewUserService(store, nil, testfixtures.NewIDGenerator("user").NextFunc(), clock.NowFunc(), nil)
	user, err := users.Register(context.Background(), application.UserInput{
		Email:       "ada@example.edu",
		DisplayName: "Ada",
		Password:    "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return user
}

func newAuthService(store *testfixtures.MemoryStore, clock *testfixtures.Clock, ttl time.Duration) *application.AuthService {
	return application.NewAuthService(store, store, nil, testfixtures.NewIDGenerator("tok").NextFunc(), clock.NowFunc(), ttl, nil)
}

func TestAuthenticateIssuesSession(t *testing.T) {
	store := testfixtures.NewMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	user := registerTestUser(t, store, clock)
	auth := newAuthService(store, clock, time.Hour)

	result, err := auth.Authenticate(context.Background(), application.AuthenticateParams{
		Email:    "Ada@Example.edu",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User.ID != user.ID || result.Session.Token == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.Session.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("session TTL not applied: %+v", result.Session)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	store := testfixtures.NewMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	registerTestUser(t, store, clock)
	auth := newAuthService(store, clock, time.Hour)

	_, err := auth.Authenticate(context.Background(), application.AuthenticateParams{
		Email:    "ada@example.edu",
		Password: "wrong horse",
	})
	if !errors.Is(err, application.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err = auth.Authenticate(context.Background(), application.AuthenticateParams{
		Email:    "nobody@example.edu",
		Password: "correct horse",
	})
	if !errors.Is(err, application.ErrInvalidCredentials) {
		t.Fatalf("unknown accounts must look like bad credentials, got %v", err)
	}
}

func TestValidateSessionLifecycle(t *testing.T) {
	store := testfixtures.NewMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	user := registerTestUser(t, store, clock)
	auth := newAuthService(store, clock, time.Hour)

	result, err := auth.Authenticate(context.Background(), application.AuthenticateParams{
		Email:    "ada@example.edu",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token := result.Session.Token

	principal, err := auth.ValidateSession(context.Background(), token)
	if err != nil || principal.UserID != user.ID {
		t.Fatalf("expected valid session for %s, got %+v err=%v", user.ID, principal, err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := auth.ValidateSession(context.Background(), token); !errors.Is(err, application.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestRevokeSessionInvalidatesToken(t *testing.T) {
	store := testfixtures.NewMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	registerTestUser(t, store, clock)
	auth := newAuthService(store, clock, time.Hour)

	result, err := auth.Authenticate(context.Background(), application.AuthenticateParams{
		Email:    "ada@example.edu",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := auth.RevokeSession(context.Background(), result.Session.Token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := auth.ValidateSession(context.Background(), result.Session.Token); !errors.Is(err, application.ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	store := testfixtures.NewMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	users := application.NewUserService(store, nil, testfixtures.NewIDGenerator("user").NextFunc(), clock.NowFunc(), nil)

	_, err := users.Register(context.Background(), application.UserInput{Email: "not-an-email", Password: "short"})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"email", "display_name", "password"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected field %q in %v", field, vErr.FieldErrors)
		}
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	store := testfixtures.NewMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	registerTestUser(t, store, clock)
	users := application.NewUserService(store, nil, testfixtures.NewIDGenerator("user2").NextFunc(), clock.NowFunc(), nil)

	_, err := users.Register(context.Background(), application.UserInput{
		Email:       "ada@example.edu",
		DisplayName: "Ada Again",
		Password:    "another pass",
	})
	if !errors.Is(err, application.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

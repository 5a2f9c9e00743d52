package authcore

import (
	"context"
	"errors"
	"testing"
)

func loginForTokens(t *testing.T, engine *Engine) *LoginResult {
	t.Helper()
	result, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return result
}

func TestRefreshRotatesTokenPair(t *testing.T) {
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	first := loginForTokens(t, engine)

	pair, err := engine.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if pair.RefreshToken == first.RefreshToken {
		t.Fatal("expected a rotated refresh token")
	}

	if _, err := engine.Validate(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("Validate failed on rotated access token: %v", err)
	}
}

func TestRefreshReuseKillsSessionFamily(t *testing.T) {
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	first := loginForTokens(t, engine)

	pair, err := engine.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replaying the pre-rotation token is theft evidence.
	if _, err := engine.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}

	// The session it belonged to is destroyed, so the rotated token is
	// dead too.
	if _, err := engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after family revocation, got %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	store := newMockUserStore()
	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	if _, err := engine.Refresh(context.Background(), "not-a-refresh-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty input, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	result := loginForTokens(t, engine)

	if err := engine.Logout(context.Background(), result.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected session to be gone, got %v", err)
	}

	// Repeating logout, or logging out garbage, reveals nothing.
	if err := engine.Logout(context.Background(), result.RefreshToken); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
	if err := engine.Logout(context.Background(), "junk"); err != nil {
		t.Fatalf("Logout of junk failed: %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	store := newMockUserStore()
	userID := seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	first := loginForTokens(t, engine)
	second := loginForTokens(t, engine)

	if err := engine.LogoutAll(context.Background(), userID); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}

	if _, err := engine.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected first session revoked, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), second.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected second session revoked, got %v", err)
	}
}

func TestRefreshRejectsSuspendedAccount(t *testing.T) {
	store := newMockUserStore()
	userID := seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	result := loginForTokens(t, engine)

	if err := engine.SetAccountStatus(context.Background(), userID, AccountSuspended); err != nil {
		t.Fatalf("SetAccountStatus failed: %v", err)
	}

	if _, err := engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected refresh to fail for a suspended account, got %v", err)
	}
}

package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginSuccessReturnsTokens(t *testing.T) {
	store := newMockUserStore()
	userID := seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	result, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.MFARequired {
		t.Fatal("expected no MFA challenge for a single-factor account")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected tokens from login")
	}

	claims, err := engine.Validate(context.Background(), result.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user %s in claims, got %s", userID, claims.UserID)
	}
	if claims.SessionID == "" {
		t.Fatal("expected session id in claims")
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	if _, err := engine.Login(context.Background(), "  ALICE@Example.COM ", "correct-password-123", LoginOptions{}); err != nil {
		t.Fatalf("expected normalized email to match, got %v", err)
	}
}

func TestLoginUnknownUserAndWrongPasswordIndistinguishable(t *testing.T) {
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	_, unknownErr := engine.Login(context.Background(), "nobody@example.com", "correct-password-123", LoginOptions{})
	_, wrongErr := engine.Login(context.Background(), "alice@example.com", "wrong-password-123", LoginOptions{})

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatal("expected identical errors for unknown user and wrong password")
	}
}

func TestLoginLockoutAfterMaxFailures(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Lockout.MaxFailures = 3
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, cfg, store)
	defer done()

	var lastErr error
	for i := 0; i < 3; i++ {
		_, lastErr = engine.Login(context.Background(), "alice@example.com", "wrong-password-123", LoginOptions{})
	}
	if !errors.Is(lastErr, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked on final failure, got %v", lastErr)
	}

	// The correct password does not open a locked account.
	result, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked while locked, got %v", err)
	}
	if result == nil || result.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter, got %+v", result)
	}
}

func TestLoginLockoutExpires(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Lockout.MaxFailures = 2
	cfg.Lockout.LockDuration = 30 * time.Second
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, mr, done := newTestEngineWithMiniredis(t, cfg, store)
	defer done()

	for i := 0; i < 2; i++ {
		_, _ = engine.Login(context.Background(), "alice@example.com", "wrong-password-123", LoginOptions{})
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock, got %v", err)
	}

	mr.FastForward(31 * time.Second)

	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{}); err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}
}

func TestLoginRejectsNonActiveAccount(t *testing.T) {
	store := newMockUserStore()
	userID := seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	if err := store.UpdateAccountStatus(context.Background(), userID, AccountSuspended); err != nil {
		t.Fatalf("UpdateAccountStatus failed: %v", err)
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{}); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}

	if err := store.UpdateAccountStatus(context.Background(), userID, AccountPendingVerification); err != nil {
		t.Fatalf("UpdateAccountStatus failed: %v", err)
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{}); !errors.Is(err, ErrAccountPendingVerification) {
		t.Fatalf("expected ErrAccountPendingVerification, got %v", err)
	}
}

func TestLoginEmptyInputRejected(t *testing.T) {
	store := newMockUserStore()
	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	if _, err := engine.Login(context.Background(), "", "password-123", LoginOptions{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty email, got %v", err)
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "", LoginOptions{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Lockout.MaxFailures = 3
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, cfg, store)
	defer done()

	for i := 0; i < 2; i++ {
		_, _ = engine.Login(context.Background(), "alice@example.com", "wrong-password-123", LoginOptions{})
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// The counter restarted: two more failures stay below the cap.
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(context.Background(), "alice@example.com", "wrong-password-123", LoginOptions{}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
}

func TestLoginUpgradesWeakPasswordHash(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Password.Memory = 16384
	cfg.Password.UpgradeOnLogin = true
	store := newMockUserStore()

	// Seed with a hash produced under weaker parameters than the engine's.
	userID := seedActiveUser(t, store, "alice@example.com", "correct-password-123")
	before := store.users[userID].PasswordHash

	engine, _, done := newTestEngine(t, cfg, store)
	defer done()

	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	after := store.users[userID].PasswordHash
	if after == before {
		t.Fatal("expected password hash to be upgraded on login")
	}
	ok, err := engine.hasher.Verify("correct-password-123", after)
	if err != nil || !ok {
		t.Fatalf("expected upgraded hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestAttemptHistoryRecordsOutcomes(t *testing.T) {
	store := newMockUserStore()
	userID := seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, baseTestConfig(), store)
	defer done()

	_, _ = engine.Login(context.Background(), "alice@example.com", "wrong-password-123", LoginOptions{})
	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	entries, err := engine.AttemptHistory(context.Background(), userID, 10)
	if err != nil {
		t.Fatalf("AttemptHistory failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if !entries[0].Success || entries[1].Success {
		t.Fatalf("expected newest-first ordering, got %+v", entries)
	}
}

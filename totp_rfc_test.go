package authcore

import (
	"strings"
	"testing"
	"time"
)

// RFC 6238 Appendix B test vectors for the SHA-1 mode, 8 digits, with the
// standard ASCII seed.
func TestHOTPCodeRFCVectors(t *testing.T) {
	secret := []byte("12345678901234567890")

	vectors := []struct {
		unixTime int64
		expected string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
	}

	for _, v := range vectors {
		counter := v.unixTime / 30
		code, err := hotpCode(secret, counter, 8)
		if err != nil {
			t.Fatalf("hotpCode(%d) failed: %v", counter, err)
		}
		if code != v.expected {
			t.Fatalf("time %d: got %s, want %s", v.unixTime, code, v.expected)
		}
	}
}

func TestVerifyCodeMatchesRFCVector(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 8, Period: 30, Skew: 0})
	secret := []byte("12345678901234567890")

	ok, counter, err := m.VerifyCode(secret, "94287082", time.Unix(59, 0))
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if !ok {
		t.Fatal("expected RFC vector to verify")
	}
	if counter != 1 {
		t.Fatalf("expected counter 1, got %d", counter)
	}
}

func TestVerifyCodeAcceptsAdjacentStepWithinSkew(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Skew: 1})
	secret := []byte("12345678901234567890")

	now := time.Unix(1111111111, 0)
	previous, err := hotpCode(secret, now.Unix()/30-1, 6)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}

	ok, counter, err := m.VerifyCode(secret, previous, now)
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if !ok {
		t.Fatal("expected previous step to verify within skew")
	}
	if counter != now.Unix()/30-1 {
		t.Fatalf("expected matched counter for the previous step, got %d", counter)
	}
}

func TestVerifyCodeRejectsOutsideSkew(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Skew: 1})
	secret := []byte("12345678901234567890")

	now := time.Unix(1111111111, 0)
	stale, err := hotpCode(secret, now.Unix()/30-2, 6)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}

	ok, _, err := m.VerifyCode(secret, stale, now)
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if ok {
		t.Fatal("expected code two steps back to be rejected")
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Skew: 1})
	secret := []byte("12345678901234567890")
	now := time.Unix(1111111111, 0)

	for _, code := range []string{"", "12345", "1234567", "12a456", "!23456"} {
		ok, _, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode(%q) failed: %v", code, err)
		}
		if ok {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
}

func TestGenerateSecretShape(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30})

	raw, encoded, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("expected %d secret bytes, got %d", totpSecretBytes, len(raw))
	}
	if encoded == "" || len(encoded) != 32 {
		t.Fatalf("expected 32 base32 characters for a 20-byte secret, got %q", encoded)
	}

	_, second, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if encoded == second {
		t.Fatal("expected distinct secrets per call")
	}
}

func TestProvisionURIShape(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "ExampleApp", Digits: 6, Period: 30})

	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "alice@example.com")
	if uri == "" {
		t.Fatal("expected a provisioning URI")
	}
	for _, fragment := range []string{
		"otpauth://totp/",
		"secret=JBSWY3DPEHPK3PXP",
		"issuer=ExampleApp",
		"digits=6",
		"period=30",
		"algorithm=SHA1",
	} {
		if !strings.Contains(uri, fragment) {
			t.Fatalf("URI %q missing %q", uri, fragment)
		}
	}
}

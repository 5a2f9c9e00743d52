package authcore

import (
	"errors"
	"math"
	"time"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT            JWTConfig
	Session        SessionConfig
	Password       PasswordConfig
	Lockout        LockoutConfig
	MFA            MFAConfig
	TOTP           TOTPConfig
	EmailCode      EmailCodeConfig
	BackupCodes    BackupCodesConfig
	RememberDevice RememberDeviceConfig
	Registration   RegistrationConfig

	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig

	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authcore APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix       string
	RefreshTTL        time.Duration
	SlidingExpiration bool
	JitterEnabled     bool
	JitterRange       time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by authcore APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	MaxFailures   int
	FailureWindow time.Duration
	LockDuration  time.Duration
	HistoryLimit  int
	HistoryTTL    time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig defines a public type used by authcore APIs.
//
// MFAConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MFAConfig struct {
	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int
	MaxAttempts          int
	AttemptWindow        time.Duration
}

// TOTPConfig defines a public type used by authcore APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// EmailCodeConfig defines a public type used by authcore APIs.
//
// EmailCodeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailCodeConfig struct {
	Digits int
	TTL    time.Duration
}

// BackupCodesConfig defines a public type used by authcore APIs.
//
// BackupCodesConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BackupCodesConfig struct {
	Count  int
	Length int
}

// RememberDeviceConfig defines a public type used by authcore APIs.
//
// RememberDeviceConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RememberDeviceConfig struct {
	Enabled bool
	TTL     time.Duration
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig defines a public type used by authcore APIs.
//
// RegistrationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationConfig struct {
	Enabled     bool
	MaxAttempts int
	Cooldown    time.Duration
}

// EmailVerificationConfig defines a public type used by authcore APIs.
//
// EmailVerificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailVerificationConfig struct {
	Enabled       bool
	Digits        int
	TTL           time.Duration
	MaxRequests   int
	RequestWindow time.Duration
}

// PasswordResetConfig defines a public type used by authcore APIs.
//
// PasswordResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordResetConfig struct {
	Enabled       bool
	Digits        int
	TTL           time.Duration
	MaxRequests   int
	RequestWindow time.Duration
}

// AuditConfig defines a public type used by authcore APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by authcore APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:       "sess",
			RefreshTTL:        7 * 24 * time.Hour,
			SlidingExpiration: true,
			JitterEnabled:     true,
			JitterRange:       30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxFailures:   5,
			FailureWindow: 15 * time.Minute,
			LockDuration:  15 * time.Minute,
			HistoryLimit:  256,
			HistoryTTL:    30 * 24 * time.Hour,
		},
		MFA: MFAConfig{
			ChallengeTTL:         5 * time.Minute,
			ChallengeMaxAttempts: 5,
			MaxAttempts:          3,
			AttemptWindow:        5 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer: "",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		EmailCode: EmailCodeConfig{
			Digits: 6,
			TTL:    5 * time.Minute,
		},
		BackupCodes: BackupCodesConfig{
			Count:  10,
			Length: 10,
		},
		RememberDevice: RememberDeviceConfig{
			Enabled: false,
			TTL:     7 * 24 * time.Hour,
		},
		Registration: RegistrationConfig{
			Enabled:     true,
			MaxAttempts: 5,
			Cooldown:    15 * time.Minute,
		},
		EmailVerification: EmailVerificationConfig{
			Enabled:       true,
			Digits:        6,
			TTL:           30 * time.Minute,
			MaxRequests:   3,
			RequestWindow: 15 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:       true,
			Digits:        6,
			TTL:           10 * time.Minute,
			MaxRequests:   3,
			RequestWindow: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.AccessTTL > 30*time.Minute {
		return errors.New("JWT AccessTTL must be <= 30m")
	}

	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}

	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	if c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be <= 2m")
	}

	// Session
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Lockout
	if c.Lockout.MaxFailures <= 0 {
		return errors.New("Lockout MaxFailures must be > 0")
	}
	if c.Lockout.FailureWindow <= 0 {
		return errors.New("Lockout FailureWindow must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be > 0")
	}
	if c.Lockout.HistoryLimit <= 0 {
		return errors.New("Lockout HistoryLimit must be > 0")
	}
	if c.Lockout.HistoryTTL <= 0 {
		return errors.New("Lockout HistoryTTL must be > 0")
	}

	// MFA
	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("MFA ChallengeTTL must be > 0")
	}
	if c.MFA.ChallengeTTL > 10*time.Minute {
		return errors.New("MFA ChallengeTTL must be <= 10m")
	}
	if c.MFA.ChallengeMaxAttempts <= 0 {
		return errors.New("MFA ChallengeMaxAttempts must be > 0")
	}
	if c.MFA.MaxAttempts <= 0 {
		return errors.New("MFA MaxAttempts must be > 0")
	}
	if c.MFA.AttemptWindow <= 0 {
		return errors.New("MFA AttemptWindow must be > 0")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}

	// Email code
	if c.EmailCode.Digits < 6 || c.EmailCode.Digits > 10 {
		return errors.New("EmailCode Digits must be between 6 and 10")
	}
	if c.EmailCode.TTL < 5*time.Minute || c.EmailCode.TTL > 10*time.Minute {
		return errors.New("EmailCode TTL must be between 5m and 10m")
	}

	// Backup codes
	if c.BackupCodes.Count <= 0 {
		return errors.New("BackupCodes Count must be > 0")
	}
	if c.BackupCodes.Length < 8 || c.BackupCodes.Length > 32 {
		return errors.New("BackupCodes Length must be between 8 and 32")
	}

	// Remember device
	if c.RememberDevice.Enabled && c.RememberDevice.TTL <= 0 {
		return errors.New("RememberDevice TTL must be > 0 when enabled")
	}

	// Registration
	if c.Registration.Enabled {
		if c.Registration.MaxAttempts <= 0 {
			return errors.New("Registration MaxAttempts must be > 0")
		}
		if c.Registration.Cooldown <= 0 {
			return errors.New("Registration Cooldown must be > 0")
		}
	}

	// Email verification
	if c.EmailVerification.Enabled {
		if c.EmailVerification.Digits < 6 || c.EmailVerification.Digits > 10 {
			return errors.New("EmailVerification Digits must be between 6 and 10")
		}
		if c.EmailVerification.TTL < 5*time.Minute || c.EmailVerification.TTL > 24*time.Hour {
			return errors.New("EmailVerification TTL must be between 5m and 24h")
		}
		if c.EmailVerification.MaxRequests <= 0 {
			return errors.New("EmailVerification MaxRequests must be > 0")
		}
		if c.EmailVerification.RequestWindow <= 0 {
			return errors.New("EmailVerification RequestWindow must be > 0")
		}
	}

	// Password reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.Digits < 6 || c.PasswordReset.Digits > 10 {
			return errors.New("PasswordReset Digits must be between 6 and 10")
		}
		if c.PasswordReset.TTL < 5*time.Minute || c.PasswordReset.TTL > time.Hour {
			return errors.New("PasswordReset TTL must be between 5m and 1h")
		}
		if c.PasswordReset.MaxRequests <= 0 {
			return errors.New("PasswordReset MaxRequests must be > 0")
		}
		if c.PasswordReset.RequestWindow <= 0 {
			return errors.New("PasswordReset RequestWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	if c.Security.ProductionMode {
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
			return errors.New("ProductionMode requires hs256 key length >= 256 bits")
		}
		if c.JWT.Issuer == "" {
			return errors.New("ProductionMode requires JWT Issuer")
		}
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.Session.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Session RefreshTTL <= 30d")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.MFA.ChallengeTTL > 5*time.Minute {
			return errors.New("ProductionMode requires MFA ChallengeTTL <= 5m")
		}
		if c.MFA.MaxAttempts > 5 {
			return errors.New("ProductionMode requires MFA MaxAttempts <= 5")
		}
		if c.BackupCodes.Count < 8 {
			return errors.New("ProductionMode requires BackupCodes Count >= 8")
		}
		if c.BackupCodes.Length < 10 {
			return errors.New("ProductionMode requires BackupCodes Length >= 10")
		}
		if c.RememberDevice.Enabled && c.RememberDevice.TTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires RememberDevice TTL <= 30d")
		}
		if c.PasswordReset.Enabled && c.PasswordReset.TTL > 15*time.Minute {
			return errors.New("ProductionMode requires PasswordReset TTL <= 15m")
		}
	}

	return nil
}

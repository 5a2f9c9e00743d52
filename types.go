package authcore

import (
	"context"
	"time"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	// AccountActive is an exported constant or variable used by the authentication engine.
	AccountActive AccountStatus = iota
	// AccountSuspended is an exported constant or variable used by the authentication engine.
	AccountSuspended
	// AccountPendingVerification is an exported constant or variable used by the authentication engine.
	AccountPendingVerification
	// AccountInactive is an exported constant or variable used by the authentication engine.
	AccountInactive
)

// String describes the string operation and its observable behavior.
//
// String may return an error when input validation, dependency calls, or security checks fail.
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountSuspended:
		return "suspended"
	case AccountPendingVerification:
		return "pending_verification"
	case AccountInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// MFAMethod is the closed set of second-factor methods. The zero value
// means no second factor; anything outside the declared constants is
// rejected at the API boundary.
type MFAMethod uint8

const (
	// MFANone is an exported constant or variable used by the authentication engine.
	MFANone MFAMethod = iota
	// MFATOTP is an exported constant or variable used by the authentication engine.
	MFATOTP
	// MFAEmail is an exported constant or variable used by the authentication engine.
	MFAEmail
	// MFABackup is an exported constant or variable used by the authentication engine.
	MFABackup
)

// String describes the string operation and its observable behavior.
//
// String may return an error when input validation, dependency calls, or security checks fail.
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m MFAMethod) String() string {
	switch m {
	case MFANone:
		return "none"
	case MFATOTP:
		return "totp"
	case MFAEmail:
		return "email"
	case MFABackup:
		return "backup"
	default:
		return "unknown"
	}
}

// ParseMFAMethod describes the parsemfamethod operation and its observable behavior.
//
// ParseMFAMethod may return an error when input validation, dependency calls, or security checks fail.
// ParseMFAMethod does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func ParseMFAMethod(s string) (MFAMethod, bool) {
	switch s {
	case "none":
		return MFANone, true
	case "totp":
		return MFATOTP, true
	case "email":
		return MFAEmail, true
	case "backup":
		return MFABackup, true
	default:
		return MFANone, false
	}
}

// UserStore is the interface callers implement to integrate authcore with
// their durable user database. Implementations must return
// [ErrUserNotFound] for missing accounts and [ErrDuplicateEmail] from
// CreateUser on an email conflict; any other failure is treated as
// [ErrStoreUnavailable].
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error
	UpdateAccountStatus(ctx context.Context, userID string, status AccountStatus) error
	MarkEmailVerified(ctx context.Context, userID string) error

	GetTOTPSecret(ctx context.Context, userID string) (*TOTPRecord, error)
	SaveTOTPSecret(ctx context.Context, userID string, secret []byte) error
	EnableTOTP(ctx context.Context, userID string) error
	DisableTOTP(ctx context.Context, userID string) error
	UpdateTOTPLastUsedCounter(ctx context.Context, userID string, counter int64) error

	SetEmailMFA(ctx context.Context, userID string, enabled bool) error

	GetBackupCodes(ctx context.Context, userID string) ([]BackupCodeRecord, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	// ConsumeBackupCode must remove the matching code and report the removal
	// atomically: when two calls race on the same code, exactly one may
	// observe true. A lost race returns (false, nil), not an error.
	ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error)

	GetUserByFederatedSubject(ctx context.Context, provider, subject string) (UserRecord, error)
	LinkFederatedSubject(ctx context.Context, userID, provider, subject string) error
}

// UserRecord is the account record returned by [UserStore].
type UserRecord struct {
	UserID          string
	Email           string
	EmailVerified   bool
	PasswordHash    string
	Status          AccountStatus
	TOTPEnabled     bool
	EmailMFAEnabled bool
}

// MFAEnabled reports whether any second factor is active on the account.
func (u UserRecord) MFAEnabled() bool {
	return u.TOTPEnabled || u.EmailMFAEnabled
}

// TOTPRecord is retrieved from [UserStore.GetTOTPSecret]. It carries the
// raw secret, enabled/confirmed flags, and the last-used time-step counter
// for replay protection.
type TOTPRecord struct {
	Secret          []byte
	Enabled         bool
	Confirmed       bool
	LastUsedCounter int64
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// CreateUserInput is the input for [UserStore.CreateUser].
type CreateUserInput struct {
	Email         string
	EmailVerified bool
	PasswordHash  string
	Status        AccountStatus
}

// RegisterRequest is the input for [Engine.Register]. Email and Password
// are required; the email is normalized (trimmed, lowercased) before use.
type RegisterRequest struct {
	Email    string
	Password string
}

// LoginOptions carries optional Login inputs. A RememberedDeviceToken
// previously issued by VerifyMFA lets the caller skip the second factor
// while the capability is still valid.
type LoginOptions struct {
	RememberedDeviceToken string
}

// VerifyOptions carries optional VerifyMFA inputs.
type VerifyOptions struct {
	RememberDevice bool
}

// LoginResult is returned by [Engine.Login], [Engine.VerifyMFA], and
// [Engine.FederatedLogin]. Exactly one of the token pair or the challenge
// fields is populated; RetryAfter accompanies lockout and rate-limit
// errors as a wait hint.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	MFARequired    bool
	Method         MFAMethod
	ChallengeToken string

	RememberDeviceToken string

	RetryAfter time.Duration
}

// TokenPair is returned by [Engine.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TOTPSetup holds the provisioning material returned by [Engine.SetupTOTP].
// BackupCodes are plaintext and shown exactly once.
type TOTPSetup struct {
	SecretBase32    string
	ProvisioningURI string
	BackupCodes     []string
}

// AccessClaims is the validated identity returned by [Engine.Validate].
type AccessClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// Notifier delivers one-time codes out of band. Each method must return an
// error when delivery could not be handed off; the engine then discards the
// stored code so nothing the user never saw stays redeemable.
type Notifier interface {
	SendLoginCode(ctx context.Context, email, code string) error
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
}

// FederatedIdentity is the verified result of an external identity check.
type FederatedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

// IdentityVerifier validates a federated identity token with its provider.
// The engine never performs the OAuth exchange itself.
type IdentityVerifier interface {
	Verify(ctx context.Context, provider, identityToken string) (*FederatedIdentity, error)
}

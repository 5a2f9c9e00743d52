package authcore

import "errors"

var (
	// ErrValidation is an exported constant or variable used by the authentication engine.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountSuspended is an exported constant or variable used by the authentication engine.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountInactive is an exported constant or variable used by the authentication engine.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountPendingVerification is an exported constant or variable used by the authentication engine.
	ErrAccountPendingVerification = errors.New("account pending verification")
	// ErrDuplicateEmail is an exported constant or variable used by the authentication engine.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrRegistrationRateLimited is an exported constant or variable used by the authentication engine.
	ErrRegistrationRateLimited = errors.New("registration rate limited")
	// ErrVerificationRateLimited is an exported constant or variable used by the authentication engine.
	ErrVerificationRateLimited = errors.New("email verification rate limited")
	// ErrPasswordResetRateLimited is an exported constant or variable used by the authentication engine.
	ErrPasswordResetRateLimited = errors.New("password reset rate limited")
	// ErrMFARateLimited is an exported constant or variable used by the authentication engine.
	ErrMFARateLimited = errors.New("mfa attempts rate limited")
	// ErrInvalidChallenge is an exported constant or variable used by the authentication engine.
	ErrInvalidChallenge = errors.New("invalid mfa challenge")
	// ErrInvalidCode is an exported constant or variable used by the authentication engine.
	ErrInvalidCode = errors.New("invalid code")
	// ErrInvalidToken is an exported constant or variable used by the authentication engine.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRefreshReuse is an exported constant or variable used by the authentication engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is an exported constant or variable used by the authentication engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrTOTPNotConfigured is an exported constant or variable used by the authentication engine.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrTOTPAlreadyEnabled is an exported constant or variable used by the authentication engine.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrEmailMFANotConfigured is an exported constant or variable used by the authentication engine.
	ErrEmailMFANotConfigured = errors.New("email mfa not configured")
	// ErrEmailNotVerified is an exported constant or variable used by the authentication engine.
	ErrEmailNotVerified = errors.New("email address not verified")
	// ErrBackupCodesNotConfigured is an exported constant or variable used by the authentication engine.
	ErrBackupCodesNotConfigured = errors.New("backup codes not configured")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is an exported constant or variable used by the authentication engine.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrNotifierFailure is an exported constant or variable used by the authentication engine.
	ErrNotifierFailure = errors.New("notifier delivery failed")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("backend store unavailable")
	// ErrFederatedIdentityRejected is an exported constant or variable used by the authentication engine.
	ErrFederatedIdentityRejected = errors.New("federated identity rejected")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidConfig is an exported constant or variable used by the authentication engine.
	ErrInvalidConfig = errors.New("invalid configuration")
)

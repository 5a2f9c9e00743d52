package internaldefs

import (
	authcore "github.com/authcore-io/authcore"
)

// CounterDef defines a public type used by authcore APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authcore APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Login attempts rejected by an active lockout."},
	{ID: authcore.MetricMFAChallengeIssued, Name: "authcore_mfa_challenge_issued_total", Help: "MFA challenges issued after primary verification."},
	{ID: authcore.MetricMFASuccess, Name: "authcore_mfa_success_total", Help: "Successful MFA verifications."},
	{ID: authcore.MetricMFAFailure, Name: "authcore_mfa_failure_total", Help: "Failed MFA verifications."},
	{ID: authcore.MetricMFARateLimited, Name: "authcore_mfa_rate_limited_total", Help: "Rate-limited MFA verification attempts."},
	{ID: authcore.MetricMFAReplayAttempt, Name: "authcore_mfa_replay_attempt_total", Help: "Detected MFA challenge replay attempts."},
	{ID: authcore.MetricMFARemembered, Name: "authcore_mfa_remembered_total", Help: "Logins that skipped MFA via a remembered device."},
	{ID: authcore.MetricTOTPSetup, Name: "authcore_totp_setup_total", Help: "TOTP enrollment setups started."},
	{ID: authcore.MetricTOTPConfirmed, Name: "authcore_totp_confirmed_total", Help: "TOTP enrollments confirmed."},
	{ID: authcore.MetricTOTPDisabled, Name: "authcore_totp_disabled_total", Help: "TOTP enrollments disabled."},
	{ID: authcore.MetricEmailCodeSent, Name: "authcore_email_code_sent_total", Help: "Email one-time codes delivered."},
	{ID: authcore.MetricEmailCodeVerified, Name: "authcore_email_code_verified_total", Help: "Email one-time codes verified."},
	{ID: authcore.MetricEmailCodeFailed, Name: "authcore_email_code_failed_total", Help: "Email one-time code failures."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Successful backup-code authentications."},
	{ID: authcore.MetricBackupCodeFailed, Name: "authcore_backup_code_failed_total", Help: "Failed backup-code authentications."},
	{ID: authcore.MetricBackupCodesRegenerated, Name: "authcore_backup_codes_regenerated_total", Help: "Backup-code regeneration operations."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logout operations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Successful registrations."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricRegisterRateLimited, Name: "authcore_register_rate_limited_total", Help: "Rate-limited registration attempts."},
	{ID: authcore.MetricVerificationEmailSent, Name: "authcore_verification_email_sent_total", Help: "Email verification codes delivered."},
	{ID: authcore.MetricEmailVerified, Name: "authcore_email_verified_total", Help: "Email addresses verified."},
	{ID: authcore.MetricVerificationFailed, Name: "authcore_verification_failed_total", Help: "Failed email verification attempts."},
	{ID: authcore.MetricPasswordResetRequested, Name: "authcore_password_reset_requested_total", Help: "Password reset codes delivered."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetFailed, Name: "authcore_password_reset_failed_total", Help: "Failed password reset attempts."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeFailure, Name: "authcore_password_change_failure_total", Help: "Failed password changes."},
	{ID: authcore.MetricPasswordUpgraded, Name: "authcore_password_upgraded_total", Help: "Password hashes transparently upgraded at login."},
	{ID: authcore.MetricFederatedLoginSuccess, Name: "authcore_federated_login_success_total", Help: "Successful federated logins."},
	{ID: authcore.MetricFederatedLoginFailure, Name: "authcore_federated_login_failure_total", Help: "Failed federated logins."},
	{ID: authcore.MetricAccountStatusChanged, Name: "authcore_account_status_changed_total", Help: "Account status change operations."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

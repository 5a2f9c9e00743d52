package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventMFARequired           = "mfa_required"
	auditEventMFASuccess            = "mfa_success"
	auditEventMFAFailure            = "mfa_failure"
	auditEventMFAReplay             = "mfa_replay_detected"
	auditEventMFARemembered         = "mfa_remembered_device"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterDuplicate     = "register_duplicate"
	auditEventRegisterRateLimited   = "register_rate_limited"
	auditEventVerificationSent      = "verification_email_sent"
	auditEventVerificationFailed    = "email_verification_failed"
	auditEventEmailVerified         = "email_verified"
	auditEventResetRequested        = "password_reset_requested"
	auditEventResetFailure          = "password_reset_failure"
	auditEventResetSuccess          = "password_reset_success"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordUpgraded      = "password_hash_upgraded"
	auditEventTOTPSetupRequested    = "totp_setup_requested"
	auditEventTOTPEnabled           = "totp_enabled"
	auditEventTOTPDisabled          = "totp_disabled"
	auditEventEmailMFAEnabled       = "email_mfa_enabled"
	auditEventEmailMFADisabled      = "email_mfa_disabled"
	auditEventEmailCodeSent         = "email_code_sent"
	auditEventEmailCodeFailed       = "email_code_failed"
	auditEventBackupCodesGenerated  = "backup_codes_generated"
	auditEventBackupCodeUsed        = "backup_code_used"
	auditEventBackupCodeFailed      = "backup_code_failed"
	auditEventBackupCodesExhausted  = "backup_codes_exhausted"
	auditEventFederatedLogin        = "federated_login"
	auditEventFederatedLinked       = "federated_identity_linked"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventAccountStatusChange   = "account_status_change"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by authcore APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountSuspended   AuditErrorCode = "account_suspended"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrAccountPending     AuditErrorCode = "account_pending_verification"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidChallenge   AuditErrorCode = "invalid_challenge"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrNotConfigured      AuditErrorCode = "mfa_not_configured"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrNotifier           AuditErrorCode = "notifier_failure"
	auditErrFederatedRejected  AuditErrorCode = "federated_rejected"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	e.emitAuditMethod(ctx, eventType, success, userID, sessionID, MFANone, err, metadataBuilder)
}

// emitAuditMethod stamps the second-factor method onto the event for the
// MFA-bearing flows; everything else goes through emitAudit and leaves the
// field empty.
func (e *Engine) emitAuditMethod(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	method MFAMethod,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if method != MFANone {
		event.Method = method.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	userID string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrAccountPendingVerification):
		return auditErrAccountPending
	case errors.Is(err, ErrDuplicateEmail):
		return auditErrDuplicate
	case errors.Is(err, ErrMFARateLimited),
		errors.Is(err, ErrRegistrationRateLimited),
		errors.Is(err, ErrVerificationRateLimited),
		errors.Is(err, ErrPasswordResetRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidChallenge):
		return auditErrInvalidChallenge
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrTOTPNotConfigured),
		errors.Is(err, ErrEmailMFANotConfigured),
		errors.Is(err, ErrBackupCodesNotConfigured):
		return auditErrNotConfigured
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrNotifierFailure):
		return auditErrNotifier
	case errors.Is(err, ErrFederatedIdentityRejected):
		return auditErrFederatedRejected
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

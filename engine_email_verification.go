package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/authcore-io/authcore/internal"
	"github.com/authcore-io/authcore/internal/limiters"
)

// verifyScope keys the per-account attempt budget for verification codes
// separately from the MFA methods.
const verifyScope = "verify_email"

// SendVerificationEmail describes the sendverificationemail operation and its observable behavior.
//
// SendVerificationEmail may return an error when input validation, dependency calls, or security checks fail.
// SendVerificationEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SendVerificationEmail(ctx context.Context, email string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if !e.config.EmailVerification.Enabled {
		return ErrValidation
	}

	email = normalizeEmail(email)
	if !isPlausibleEmail(email) {
		return ErrValidation
	}

	if err := e.verifyLimiter.Enforce(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrRequestRateLimited) {
			e.emitRateLimit(ctx, "email_verification", "", nil)
			return ErrVerificationRateLimited
		}
		return wrapStoreErr(err)
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Unknown addresses get the same outcome as known ones.
			return nil
		}
		return wrapStoreErr(err)
	}
	if user.EmailVerified {
		return nil
	}

	return e.issueVerificationCode(ctx, user)
}

// VerifyEmail describes the verifyemail operation and its observable behavior.
//
// VerifyEmail may return an error when input validation, dependency calls, or security checks fail.
// VerifyEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if !e.config.EmailVerification.Enabled {
		return ErrValidation
	}

	email = normalizeEmail(email)
	if email == "" || code == "" {
		return ErrValidation
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// A missing account and a wrong code look identical externally.
			return ErrInvalidCode
		}
		return wrapStoreErr(err)
	}
	if user.EmailVerified {
		return nil
	}

	if _, err := e.mfaLimiter.Check(ctx, user.UserID, verifyScope); err != nil {
		if errors.Is(err, limiters.ErrMFARateLimited) {
			e.emitRateLimit(ctx, "email_verification", user.UserID, nil)
			return ErrVerificationRateLimited
		}
		return wrapStoreErr(err)
	}

	if err := e.consumeOneTimeCode(ctx, e.verifyCodes, user.UserID, code); err != nil {
		if !errors.Is(err, ErrInvalidCode) {
			return err
		}
		e.metricInc(MetricVerificationFailed)
		e.emitAudit(ctx, auditEventVerificationFailed, false, user.UserID, "", ErrInvalidCode, nil)
		if _, limErr := e.mfaLimiter.RecordFailure(ctx, user.UserID, verifyScope); limErr != nil && !errors.Is(limErr, limiters.ErrMFARateLimited) {
			log.Print("authcore: verification attempt count failed")
		}
		return ErrInvalidCode
	}

	if err := e.mfaLimiter.Reset(ctx, user.UserID, verifyScope); err != nil {
		log.Print("authcore: verification limiter reset failed")
	}

	if err := e.users.MarkEmailVerified(ctx, user.UserID); err != nil {
		return wrapStoreErr(err)
	}
	if user.Status == AccountPendingVerification {
		if err := e.users.UpdateAccountStatus(ctx, user.UserID, AccountActive); err != nil {
			return wrapStoreErr(err)
		}
		e.metricInc(MetricAccountStatusChanged)
	}

	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditEventEmailVerified, true, user.UserID, "", nil, nil)
	return nil
}

// issueVerificationCode generates, stores, and delivers an address
// verification code. A failed handoff removes the stored hash.
func (e *Engine) issueVerificationCode(ctx context.Context, user UserRecord) error {
	if e.notifier == nil {
		return ErrNotifierFailure
	}

	code, err := internal.NewOTP(e.config.EmailVerification.Digits)
	if err != nil {
		return err
	}
	if err := e.verifyCodes.Issue(ctx, user.UserID, code, e.config.EmailVerification.TTL); err != nil {
		return wrapStoreErr(err)
	}

	if err := e.notifier.SendVerificationCode(ctx, user.Email, code); err != nil {
		if clearErr := e.verifyCodes.Clear(ctx, user.UserID); clearErr != nil {
			log.Print("authcore: verification code clear failed after delivery error")
		}
		e.emitAudit(ctx, auditEventVerificationFailed, false, user.UserID, "", ErrNotifierFailure, func() map[string]string {
			return map[string]string{
				"reason": "delivery_failed",
			}
		})
		return ErrNotifierFailure
	}

	e.metricInc(MetricVerificationEmailSent)
	e.emitAudit(ctx, auditEventVerificationSent, true, user.UserID, "", nil, nil)
	return nil
}

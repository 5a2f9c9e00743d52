package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/authcore-io/authcore/internal"
	"github.com/authcore-io/authcore/internal/limiters"
)

// resetScope keys the per-account attempt budget for reset codes separately
// from the MFA methods.
const resetScope = "password_reset"

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrValidation
	}

	email = normalizeEmail(email)
	if !isPlausibleEmail(email) {
		return ErrValidation
	}

	if err := e.resetLimiter.Enforce(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrRequestRateLimited) {
			e.emitRateLimit(ctx, "password_reset", "", nil)
			return ErrPasswordResetRateLimited
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
	// Suspended and deactivated accounts keep their credentials frozen;
	// the caller still sees the neutral outcome.
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		return nil
	}

	return e.issueResetCode(ctx, user)
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// ResetPassword may return an error when input validation, dependency calls, or security checks fail.
// ResetPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrValidation
	}

	email = normalizeEmail(email)
	if email == "" || code == "" {
		return ErrValidation
	}
	if newPassword == "" {
		return ErrPasswordPolicy
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// A missing account and a wrong code look identical externally.
			return ErrInvalidCode
		}
		return wrapStoreErr(err)
	}

	if _, err := e.mfaLimiter.Check(ctx, user.UserID, resetScope); err != nil {
		if errors.Is(err, limiters.ErrMFARateLimited) {
			e.emitRateLimit(ctx, "password_reset", user.UserID, nil)
			return ErrPasswordResetRateLimited
		}
		return wrapStoreErr(err)
	}

	if err := e.consumeOneTimeCode(ctx, e.resetCodes, user.UserID, code); err != nil {
		if !errors.Is(err, ErrInvalidCode) {
			return err
		}
		e.metricInc(MetricPasswordResetFailed)
		e.emitAudit(ctx, auditEventResetFailure, false, user.UserID, "", ErrInvalidCode, nil)
		if _, limErr := e.mfaLimiter.RecordFailure(ctx, user.UserID, resetScope); limErr != nil && !errors.Is(limErr, limiters.ErrMFARateLimited) {
			log.Print("authcore: reset attempt count failed")
		}
		return ErrInvalidCode
	}

	if ok, err := e.hasher.Verify(newPassword, user.PasswordHash); err == nil && ok {
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}
	if err := e.users.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		return wrapStoreErr(err)
	}

	if err := e.mfaLimiter.Reset(ctx, user.UserID, resetScope); err != nil {
		log.Print("authcore: reset limiter reset failed")
	}
	// A proven mailbox holder also clears any standing lockout, or the
	// recovered account would stay unusable until the lock expires.
	if err := e.ledger.Reset(ctx, user.UserID); err != nil {
		log.Print("authcore: failure counter reset failed after password reset")
	}
	// Every outstanding refresh token predates the new credential.
	if err := e.LogoutAll(ctx, user.UserID); err != nil {
		log.Print("authcore: session revocation failed after password reset")
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventResetSuccess, true, user.UserID, "", nil, nil)
	return nil
}

// issueResetCode generates, stores, and delivers a password reset code. A
// failed handoff removes the stored hash.
func (e *Engine) issueResetCode(ctx context.Context, user UserRecord) error {
	if e.notifier == nil {
		return ErrNotifierFailure
	}

	code, err := internal.NewOTP(e.config.PasswordReset.Digits)
	if err != nil {
		return err
	}
	if err := e.resetCodes.Issue(ctx, user.UserID, code, e.config.PasswordReset.TTL); err != nil {
		return wrapStoreErr(err)
	}

	if err := e.notifier.SendPasswordResetCode(ctx, user.Email, code); err != nil {
		if clearErr := e.resetCodes.Clear(ctx, user.UserID); clearErr != nil {
			log.Print("authcore: reset code clear failed after delivery error")
		}
		e.emitAudit(ctx, auditEventResetFailure, false, user.UserID, "", ErrNotifierFailure, func() map[string]string {
			return map[string]string{
				"reason": "delivery_failed",
			}
		})
		return ErrNotifierFailure
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditEventResetRequested, true, user.UserID, "", nil, nil)
	return nil
}

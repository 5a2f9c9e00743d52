package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/authcore-io/authcore/internal"
	"github.com/authcore-io/authcore/internal/stores"
)

// SetupEmailMFA describes the setupemailmfa operation and its observable behavior.
//
// SetupEmailMFA may return an error when input validation, dependency calls, or security checks fail.
// SetupEmailMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SetupEmailMFA(ctx context.Context, accountID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrValidation
	}

	user, err := e.users.GetUserByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return wrapStoreErr(err)
	}
	// Codes are delivered to the account address, so an unverified address
	// would let an attacker enroll a mailbox they control.
	if !user.EmailVerified {
		return ErrEmailNotVerified
	}

	return e.issueEmailCode(ctx, user)
}

// SendEmailCode describes the sendemailcode operation and its observable behavior.
//
// SendEmailCode may return an error when input validation, dependency calls, or security checks fail.
// SendEmailCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SendEmailCode(ctx context.Context, accountID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrValidation
	}

	user, err := e.users.GetUserByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return wrapStoreErr(err)
	}
	if !user.EmailMFAEnabled {
		return ErrEmailMFANotConfigured
	}

	return e.issueEmailCode(ctx, user)
}

// VerifyEmailCode describes the verifyemailcode operation and its observable behavior.
//
// VerifyEmailCode may return an error when input validation, dependency calls, or security checks fail.
// VerifyEmailCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyEmailCode(ctx context.Context, accountID, code string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || code == "" {
		return ErrValidation
	}

	user, err := e.users.GetUserByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return wrapStoreErr(err)
	}

	if err := e.consumeEmailCode(ctx, accountID, code); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			e.metricInc(MetricEmailCodeFailed)
			e.emitAuditMethod(ctx, auditEventEmailCodeFailed, false, accountID, "", MFAEmail, err, nil)
		}
		return err
	}

	// Verifying a code completes enrollment for accounts that started setup.
	if !user.EmailMFAEnabled {
		if err := e.users.SetEmailMFA(ctx, accountID, true); err != nil {
			return wrapStoreErr(err)
		}
		e.emitAudit(ctx, auditEventEmailMFAEnabled, true, accountID, "", nil, nil)
	}

	e.metricInc(MetricEmailCodeVerified)
	return nil
}

// DisableEmailMFA describes the disableemailmfa operation and its observable behavior.
//
// DisableEmailMFA may return an error when input validation, dependency calls, or security checks fail.
// DisableEmailMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DisableEmailMFA(ctx context.Context, accountID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrValidation
	}

	if err := e.users.SetEmailMFA(ctx, accountID, false); err != nil {
		return wrapStoreErr(err)
	}
	if err := e.emailCodes.Clear(ctx, accountID); err != nil {
		log.Print("authcore: email code clear failed on mfa disable")
	}

	e.emitAudit(ctx, auditEventEmailMFADisabled, true, accountID, "", nil, nil)
	return nil
}

// issueEmailCode generates, stores, and delivers a one-time login code. If
// delivery fails the stored hash is removed so no code the user never saw
// stays redeemable.
func (e *Engine) issueEmailCode(ctx context.Context, user UserRecord) error {
	if e.notifier == nil {
		return ErrNotifierFailure
	}

	code, err := internal.NewOTP(e.config.EmailCode.Digits)
	if err != nil {
		return err
	}
	if err := e.emailCodes.Issue(ctx, user.UserID, code, e.config.EmailCode.TTL); err != nil {
		return wrapStoreErr(err)
	}

	if err := e.notifier.SendLoginCode(ctx, user.Email, code); err != nil {
		if clearErr := e.emailCodes.Clear(ctx, user.UserID); clearErr != nil {
			log.Print("authcore: email code clear failed after delivery error")
		}
		e.emitAuditMethod(ctx, auditEventEmailCodeFailed, false, user.UserID, "", MFAEmail, ErrNotifierFailure, func() map[string]string {
			return map[string]string{
				"reason": "delivery_failed",
			}
		})
		return ErrNotifierFailure
	}

	e.metricInc(MetricEmailCodeSent)
	e.emitAuditMethod(ctx, auditEventEmailCodeSent, true, user.UserID, "", MFAEmail, nil, nil)
	return nil
}

func (e *Engine) consumeEmailCode(ctx context.Context, userID, code string) error {
	return e.consumeOneTimeCode(ctx, e.emailCodes, userID, code)
}

// consumeOneTimeCode folds store-level mismatch and expiry into the one
// uniform ErrInvalidCode callers may expose.
func (e *Engine) consumeOneTimeCode(ctx context.Context, store *stores.EmailCodeStore, userID, code string) error {
	err := store.Consume(ctx, userID, code)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrEmailCodeNotFound), errors.Is(err, stores.ErrEmailCodeMismatch):
		return ErrInvalidCode
	default:
		return wrapStoreErr(err)
	}
}

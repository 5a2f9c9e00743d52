package authcore

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/authcore-io/authcore/internal/limiters"
)

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if e == nil || e.users == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.Registration.Enabled {
		return "", ErrValidation
	}

	email := normalizeEmail(req.Email)
	if !isPlausibleEmail(email) {
		return "", ErrValidation
	}
	if req.Password == "" {
		return "", ErrPasswordPolicy
	}

	if err := e.regLimiter.Enforce(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrRegistrationRateLimited) {
			e.metricInc(MetricRegisterRateLimited)
			e.emitRateLimit(ctx, "registration", "", nil)
			e.emitAudit(ctx, auditEventRegisterRateLimited, false, "", "", ErrRegistrationRateLimited, nil)
			return "", ErrRegistrationRateLimited
		}
		return "", wrapStoreErr(err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return "", ErrPasswordPolicy
	}

	// Without address verification there is nothing to gate activation on,
	// so the account starts live.
	status := AccountPendingVerification
	verified := false
	if !e.config.EmailVerification.Enabled {
		status = AccountActive
		verified = true
	}

	created, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:         email,
		EmailVerified: verified,
		PasswordHash:  hash,
		Status:        status,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrDuplicateEmail, nil)
			return "", ErrDuplicateEmail
		}
		return "", wrapStoreErr(err)
	}

	if e.config.EmailVerification.Enabled {
		// Delivery failure must not strand the account; the code can be
		// requested again through SendVerificationEmail.
		if err := e.issueVerificationCode(ctx, created); err != nil {
			log.Print("authcore: verification code delivery failed at registration")
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, created.UserID, "", nil, nil)

	return created.UserID, nil
}

// SetAccountStatus describes the setaccountstatus operation and its observable behavior.
//
// SetAccountStatus may return an error when input validation, dependency calls, or security checks fail.
// SetAccountStatus does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SetAccountStatus(ctx context.Context, accountID string, status AccountStatus) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrValidation
	}
	switch status {
	case AccountActive, AccountSuspended, AccountPendingVerification, AccountInactive:
	default:
		return ErrValidation
	}

	if err := e.users.UpdateAccountStatus(ctx, accountID, status); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return wrapStoreErr(err)
	}

	// A deactivated account keeps no live sessions.
	if status != AccountActive {
		if err := e.LogoutAll(ctx, accountID); err != nil {
			log.Print("authcore: session revocation failed on status change")
		}
	}

	e.metricInc(MetricAccountStatusChanged)
	e.emitAudit(ctx, auditEventAccountStatusChange, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"status": status.String(),
		}
	})

	return nil
}

// isPlausibleEmail is a shape check, not RFC validation. The store and the
// delivery path are the real arbiters of address validity.
func isPlausibleEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.IndexByte(email[at+1:], '@') >= 0 {
		return false
	}
	return true
}

package authcore

import (
	"context"
	"errors"
)

// FederatedLogin describes the federatedlogin operation and its observable behavior.
//
// FederatedLogin may return an error when input validation, dependency calls, or security checks fail.
// FederatedLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) FederatedLogin(
	ctx context.Context,
	provider string,
	identityToken string,
	opts LoginOptions,
) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	if e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	if provider == "" || identityToken == "" {
		return nil, ErrValidation
	}

	identity, err := e.verifier.Verify(ctx, provider, identityToken)
	if err != nil || identity == nil || identity.Subject == "" {
		e.metricInc(MetricFederatedLoginFailure)
		e.emitAudit(ctx, auditEventFederatedLogin, false, "", "", ErrFederatedIdentityRejected, func() map[string]string {
			return map[string]string{
				"provider": provider,
				"reason":   "verification_failed",
			}
		})
		return nil, ErrFederatedIdentityRejected
	}

	user, err := e.users.GetUserByFederatedSubject(ctx, provider, identity.Subject)
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound):
		user, err = e.resolveFederatedIdentity(ctx, provider, identity)
		if err != nil {
			return nil, err
		}
	default:
		return nil, wrapStoreErr(err)
	}

	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.metricInc(MetricFederatedLoginFailure)
		e.emitAudit(ctx, auditEventFederatedLogin, false, user.UserID, "", statusErr, func() map[string]string {
			return map[string]string{
				"provider": provider,
				"reason":   "account_status",
			}
		})
		return nil, statusErr
	}

	e.appendAttempt(ctx, user.UserID, "federated_"+provider, true)
	e.metricInc(MetricFederatedLoginSuccess)
	e.emitAudit(ctx, auditEventFederatedLogin, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{
			"provider": provider,
		}
	})

	// Federated accounts join the same MFA flow as password accounts: the
	// provider only replaces the first factor.
	if user.MFAEnabled() {
		if e.config.RememberDevice.Enabled && opts.RememberedDeviceToken != "" {
			if e.rememberedDeviceValid(ctx, user.UserID, opts.RememberedDeviceToken) {
				e.metricInc(MetricMFARemembered)
				e.emitAudit(ctx, auditEventMFARemembered, true, user.UserID, "", nil, nil)
				result, _, err := e.issueSessionTokens(ctx, user, true)
				return result, err
			}
		}
		return e.beginMFAChallenge(ctx, user)
	}

	result, _, err := e.issueSessionTokens(ctx, user, false)
	return result, err
}

// resolveFederatedIdentity links the provider subject to an existing account
// with the same verified email, or provisions a fresh account. An unverified
// provider email is never trusted for either path.
func (e *Engine) resolveFederatedIdentity(
	ctx context.Context,
	provider string,
	identity *FederatedIdentity,
) (UserRecord, error) {
	if identity.Email == "" || !identity.EmailVerified {
		e.metricInc(MetricFederatedLoginFailure)
		e.emitAudit(ctx, auditEventFederatedLogin, false, "", "", ErrFederatedIdentityRejected, func() map[string]string {
			return map[string]string{
				"provider": provider,
				"reason":   "email_unverified",
			}
		})
		return UserRecord{}, ErrFederatedIdentityRejected
	}

	email := normalizeEmail(identity.Email)

	user, err := e.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound):
		created, createErr := e.users.CreateUser(ctx, CreateUserInput{
			Email:         email,
			EmailVerified: true,
			Status:        AccountActive,
		})
		if createErr != nil {
			return UserRecord{}, wrapStoreErr(createErr)
		}
		e.metricInc(MetricRegisterSuccess)
		e.emitAudit(ctx, auditEventRegisterSuccess, true, created.UserID, "", nil, func() map[string]string {
			return map[string]string{
				"provider": provider,
			}
		})
		user = created
	default:
		return UserRecord{}, wrapStoreErr(err)
	}

	if err := e.users.LinkFederatedSubject(ctx, user.UserID, provider, identity.Subject); err != nil {
		return UserRecord{}, wrapStoreErr(err)
	}
	e.emitAudit(ctx, auditEventFederatedLinked, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{
			"provider": provider,
		}
	})

	return user, nil
}

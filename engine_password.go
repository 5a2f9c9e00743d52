package authcore

import (
	"context"
	"errors"
	"log"
)

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || oldPassword == "" {
		return ErrValidation
	}
	if newPassword == "" {
		return ErrPasswordPolicy
	}

	user, err := e.users.GetUserByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return wrapStoreErr(err)
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		return statusErr
	}

	ok, err := e.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if newPassword == oldPassword {
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPasswordPolicy
	}

	if err := e.users.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return wrapStoreErr(err)
	}

	// Every outstanding refresh token predates the new credential.
	if err := e.LogoutAll(ctx, accountID); err != nil {
		log.Print("authcore: session revocation failed after password change")
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, accountID, "", nil, nil)

	return nil
}

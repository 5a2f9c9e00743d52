package authcore

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"
)

// SetupTOTP describes the setuptotp operation and its observable behavior.
//
// SetupTOTP may return an error when input validation, dependency calls, or security checks fail.
// SetupTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SetupTOTP(ctx context.Context, accountID string) (*TOTPSetup, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return nil, ErrValidation
	}

	user, err := e.users.GetUserByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, wrapStoreErr(err)
	}
	if user.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.users.SaveTOTPSecret(ctx, accountID, secret); err != nil {
		return nil, wrapStoreErr(err)
	}

	plaintext, records, err := e.generateBackupCodes(accountID)
	if err != nil {
		return nil, err
	}
	if err := e.users.ReplaceBackupCodes(ctx, accountID, records); err != nil {
		return nil, wrapStoreErr(err)
	}

	e.metricInc(MetricTOTPSetup)
	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, accountID, "", nil, nil)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"count": strconv.Itoa(len(records)),
		}
	})

	return &TOTPSetup{
		SecretBase32:    secretBase32,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, user.Email),
		BackupCodes:     plaintext,
	}, nil
}

// ConfirmTOTP describes the confirmtotp operation and its observable behavior.
//
// ConfirmTOTP may return an error when input validation, dependency calls, or security checks fail.
// ConfirmTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmTOTP(ctx context.Context, accountID, code string) error {
	if e == nil || e.totp == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || code == "" {
		return ErrValidation
	}

	record, err := e.users.GetTOTPSecret(ctx, accountID)
	if err != nil {
		return wrapStoreErr(err)
	}
	if record == nil || len(record.Secret) == 0 {
		return ErrTOTPNotConfigured
	}
	if record.Confirmed {
		return ErrTOTPAlreadyEnabled
	}

	ok, counter, err := e.totp.VerifyCode(record.Secret, code, time.Now())
	if err != nil {
		return ErrInvalidCode
	}
	if !ok {
		e.emitAudit(ctx, auditEventMFAFailure, false, accountID, "", ErrInvalidCode, func() map[string]string {
			return map[string]string{
				"method": "totp",
				"reason": "confirm_failed",
			}
		})
		return ErrInvalidCode
	}

	if err := e.users.UpdateTOTPLastUsedCounter(ctx, accountID, counter); err != nil {
		return wrapStoreErr(err)
	}
	if err := e.users.EnableTOTP(ctx, accountID); err != nil {
		return wrapStoreErr(err)
	}

	// Sessions opened before the account had a second factor are revoked.
	if err := e.LogoutAll(ctx, accountID); err != nil {
		log.Print("authcore: session revocation failed after totp enable")
	}

	e.metricInc(MetricTOTPConfirmed)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, accountID, "", nil, nil)
	return nil
}

// DisableTOTP describes the disabletotp operation and its observable behavior.
//
// DisableTOTP may return an error when input validation, dependency calls, or security checks fail.
// DisableTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DisableTOTP(ctx context.Context, accountID, code string) error {
	if e == nil || e.totp == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || code == "" {
		return ErrValidation
	}

	if err := e.verifyTOTPForUser(ctx, accountID, code); err != nil {
		return err
	}

	if err := e.users.DisableTOTP(ctx, accountID); err != nil {
		return wrapStoreErr(err)
	}
	// Backup codes are provisioned alongside TOTP and die with it.
	if err := e.users.ReplaceBackupCodes(ctx, accountID, nil); err != nil {
		return wrapStoreErr(err)
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, accountID, "", nil, nil)
	return nil
}

func (e *Engine) verifyTOTPForUser(ctx context.Context, userID, code string) error {
	record, err := e.users.GetTOTPSecret(ctx, userID)
	if err != nil {
		return wrapStoreErr(err)
	}
	if record == nil || !record.Enabled || len(record.Secret) == 0 {
		return ErrTOTPNotConfigured
	}

	ok, counter, err := e.totp.VerifyCode(record.Secret, code, time.Now())
	if err != nil {
		return ErrInvalidCode
	}
	if !ok {
		return ErrInvalidCode
	}
	// A code already consumed in the same or an earlier step is a replay.
	if counter <= record.LastUsedCounter {
		return ErrInvalidCode
	}
	if err := e.users.UpdateTOTPLastUsedCounter(ctx, userID, counter); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

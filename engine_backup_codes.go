package authcore

import (
	"context"
	"strconv"

	"github.com/authcore-io/authcore/internal"
)

// VerifyBackupCode describes the verifybackupcode operation and its observable behavior.
//
// VerifyBackupCode may return an error when input validation, dependency calls, or security checks fail.
// VerifyBackupCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyBackupCode(ctx context.Context, accountID, code string) (int, error) {
	if e == nil || e.users == nil {
		return 0, ErrEngineNotReady
	}
	if accountID == "" {
		return 0, ErrValidation
	}

	remaining, err := e.consumeBackupCode(ctx, accountID, code)
	if err != nil {
		e.metricInc(MetricBackupCodeFailed)
		e.emitAuditMethod(ctx, auditEventBackupCodeFailed, false, accountID, "", MFABackup, err, nil)
		return 0, err
	}
	return remaining, nil
}

// RegenerateBackupCodes describes the regeneratebackupcodes operation and its observable behavior.
//
// RegenerateBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// RegenerateBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" || totpCode == "" {
		return nil, ErrValidation
	}

	// Regeneration is gated on a live second factor so a stolen session
	// cannot mint fresh recovery codes.
	if err := e.verifyTOTPForUser(ctx, accountID, totpCode); err != nil {
		return nil, err
	}

	plaintext, records, err := e.generateBackupCodes(accountID)
	if err != nil {
		return nil, err
	}
	if err := e.users.ReplaceBackupCodes(ctx, accountID, records); err != nil {
		return nil, wrapStoreErr(err)
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"count": strconv.Itoa(len(records)),
		}
	})

	return plaintext, nil
}

// consumeBackupCode spends one recovery code and reports how many remain.
// Every code is single-use; the store removes it atomically on match.
func (e *Engine) consumeBackupCode(ctx context.Context, userID, code string) (int, error) {
	canonical := internal.CanonicalizeBackupCode(code)
	if canonical == "" {
		return 0, ErrInvalidCode
	}

	records, err := e.users.GetBackupCodes(ctx, userID)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if len(records) == 0 {
		return 0, ErrBackupCodesNotConfigured
	}

	ok, err := e.users.ConsumeBackupCode(ctx, userID, internal.BackupCodeHash(userID, canonical))
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if !ok {
		return 0, ErrInvalidCode
	}

	remaining := len(records) - 1
	e.metricInc(MetricBackupCodeUsed)
	e.emitAuditMethod(ctx, auditEventBackupCodeUsed, true, userID, "", MFABackup, nil, func() map[string]string {
		return map[string]string{
			"remaining": strconv.Itoa(remaining),
		}
	})
	if remaining == 0 {
		e.emitAudit(ctx, auditEventBackupCodesExhausted, true, userID, "", nil, nil)
	}

	return remaining, nil
}

func (e *Engine) generateBackupCodes(userID string) ([]string, []BackupCodeRecord, error) {
	count := e.config.BackupCodes.Count
	length := e.config.BackupCodes.Length

	plaintext := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		plaintext = append(plaintext, internal.FormatBackupCode(code))
		records = append(records, BackupCodeRecord{Hash: internal.BackupCodeHash(userID, code)})
	}
	return plaintext, records, nil
}

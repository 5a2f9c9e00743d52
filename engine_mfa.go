package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/authcore-io/authcore/internal/limiters"
	"github.com/authcore-io/authcore/internal/stores"
)

// VerifyMFA describes the verifymfa operation and its observable behavior.
//
// VerifyMFA may return an error when input validation, dependency calls, or security checks fail.
// VerifyMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyMFA(
	ctx context.Context,
	challengeToken string,
	method MFAMethod,
	code string,
	opts VerifyOptions,
) (*LoginResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if code == "" {
		return nil, ErrValidation
	}
	if method != MFATOTP && method != MFAEmail && method != MFABackup {
		return nil, ErrValidation
	}

	claims, err := e.jwtManager.ParseChallenge(challengeToken)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAuditMethod(ctx, auditEventMFAFailure, false, "", "", method, ErrInvalidChallenge, func() map[string]string {
			return map[string]string{
				"reason": "token_parse_failed",
			}
		})
		return nil, ErrInvalidChallenge
	}
	jti := claims.ID
	userID := claims.UID

	challenge, err := e.challenges.Get(ctx, jti)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeBackend) {
			return nil, wrapStoreErr(err)
		}
		e.metricInc(MetricMFAFailure)
		e.emitAuditMethod(ctx, auditEventMFAFailure, false, userID, "", method, ErrInvalidChallenge, func() map[string]string {
			return map[string]string{
				"reason": "challenge_missing_or_expired",
			}
		})
		return nil, ErrInvalidChallenge
	}
	if challenge.UserID != userID {
		e.metricInc(MetricMFAFailure)
		e.emitAuditMethod(ctx, auditEventMFAFailure, false, userID, "", method, ErrInvalidChallenge, func() map[string]string {
			return map[string]string{
				"reason": "challenge_subject_mismatch",
			}
		})
		return nil, ErrInvalidChallenge
	}

	// The method must be the one the challenge was issued for; backup
	// codes are accepted as an override for either.
	if method != MFABackup && method != MFAMethod(challenge.Method) {
		e.metricInc(MetricMFAFailure)
		e.emitAuditMethod(ctx, auditEventMFAFailure, false, userID, "", method, ErrInvalidChallenge, func() map[string]string {
			return map[string]string{
				"reason": "method_mismatch",
			}
		})
		return nil, ErrInvalidChallenge
	}

	if retryAfter, err := e.mfaLimiter.Check(ctx, userID, method.String()); err != nil {
		if errors.Is(err, limiters.ErrMFARateLimited) {
			e.metricInc(MetricMFARateLimited)
			e.emitRateLimit(ctx, "mfa", userID, func() map[string]string {
				return map[string]string{
					"method": method.String(),
				}
			})
			return &LoginResult{RetryAfter: retryAfter}, ErrMFARateLimited
		}
		return nil, wrapStoreErr(err)
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidChallenge
		}
		return nil, wrapStoreErr(err)
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		return nil, statusErr
	}

	verifyErr := e.verifySecondFactor(ctx, user, method, code)
	if verifyErr != nil {
		if errors.Is(verifyErr, ErrStoreUnavailable) {
			return nil, verifyErr
		}
		return e.failMFA(ctx, userID, jti, method)
	}

	// First writer wins: the delete reports whether this request was the
	// one that consumed the challenge.
	consumed, err := e.challenges.Delete(ctx, jti)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !consumed {
		e.metricInc(MetricMFAReplayAttempt)
		e.emitAuditMethod(ctx, auditEventMFAReplay, false, userID, "", method, ErrInvalidChallenge, nil)
		return nil, ErrInvalidChallenge
	}

	if err := e.mfaLimiter.Reset(ctx, userID, method.String()); err != nil {
		log.Print("authcore: mfa limiter reset failed")
	}
	e.appendAttempt(ctx, userID, "mfa_"+method.String(), true)

	result, sessionID, err := e.issueSessionTokens(ctx, user, true)
	if err != nil {
		return nil, err
	}

	if opts.RememberDevice && e.config.RememberDevice.Enabled {
		remember, err := e.jwtManager.CreateRemember(userID, sessionID)
		if err != nil {
			return nil, err
		}
		result.RememberDeviceToken = remember
	}

	e.metricInc(MetricMFASuccess)
	e.emitAuditMethod(ctx, auditEventMFASuccess, true, userID, sessionID, method, nil, nil)

	return result, nil
}

func (e *Engine) verifySecondFactor(ctx context.Context, user UserRecord, method MFAMethod, code string) error {
	switch method {
	case MFATOTP:
		return e.verifyTOTPForUser(ctx, user.UserID, code)
	case MFAEmail:
		if !user.EmailMFAEnabled {
			return ErrEmailMFANotConfigured
		}
		return e.consumeEmailCode(ctx, user.UserID, code)
	case MFABackup:
		_, err := e.consumeBackupCode(ctx, user.UserID, code)
		return err
	default:
		return ErrValidation
	}
}

func (e *Engine) failMFA(ctx context.Context, userID, jti string, method MFAMethod) (*LoginResult, error) {
	e.metricInc(MetricMFAFailure)
	e.appendAttempt(ctx, userID, "mfa_"+method.String(), false)

	exceeded, recErr := e.challenges.RecordFailure(ctx, jti, e.config.MFA.ChallengeMaxAttempts)
	if recErr != nil && errors.Is(recErr, stores.ErrChallengeBackend) {
		return nil, wrapStoreErr(recErr)
	}

	retryAfter, limErr := e.mfaLimiter.RecordFailure(ctx, userID, method.String())
	if limErr != nil {
		if errors.Is(limErr, limiters.ErrMFARateLimited) {
			e.metricInc(MetricMFARateLimited)
			e.emitRateLimit(ctx, "mfa", userID, func() map[string]string {
				return map[string]string{
					"method": method.String(),
				}
			})
			return &LoginResult{RetryAfter: retryAfter}, ErrMFARateLimited
		}
		return nil, wrapStoreErr(limErr)
	}

	if exceeded {
		e.emitAuditMethod(ctx, auditEventMFAFailure, false, userID, "", method, ErrInvalidChallenge, func() map[string]string {
			return map[string]string{
				"reason": "challenge_attempts_exceeded",
			}
		})
		return nil, ErrInvalidChallenge
	}

	e.emitAuditMethod(ctx, auditEventMFAFailure, false, userID, "", method, ErrInvalidCode, nil)
	return nil, ErrInvalidCode
}

package authcore

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/authcore-io/authcore/internal"
	"github.com/authcore-io/authcore/internal/ledger"
	"github.com/authcore-io/authcore/internal/limiters"
	"github.com/authcore-io/authcore/internal/stores"
	"github.com/authcore-io/authcore/jwt"
	"github.com/authcore-io/authcore/password"
	"github.com/authcore-io/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config Config

	users    UserStore
	notifier Notifier
	verifier IdentityVerifier

	sessions    *session.Store
	challenges  *stores.ChallengeStore
	emailCodes  *stores.EmailCodeStore
	verifyCodes *stores.EmailCodeStore
	resetCodes  *stores.EmailCodeStore
	ledger      *ledger.Ledger
	mfaLimiter  *limiters.MFALimiter
	regLimiter  *limiters.RegistrationLimiter

	verifyLimiter *limiters.RequestLimiter
	resetLimiter  *limiters.RequestLimiter

	hasher     *password.Hasher
	totp       *totpManager
	jwtManager *jwt.Manager

	audit   *auditDispatcher
	metrics *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, email, passwd string, opts LoginOptions) (*LoginResult, error) {
	if e == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()
	}

	email = normalizeEmail(email)
	if email == "" || passwd == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "empty_input",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, wrapStoreErr(err)
		}
		// Unknown account and wrong password are indistinguishable externally.
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if retryAfter, err := e.ledger.IsLocked(ctx, user.UserID); err != nil {
		return nil, wrapStoreErr(err)
	} else if retryAfter > 0 {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, user.UserID, "", ErrAccountLocked, nil)
		return &LoginResult{RetryAfter: retryAfter}, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(passwd, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, user.UserID, email, "password_mismatch")
	}

	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.metricInc(MetricLoginFailure)
		e.appendAttempt(ctx, user.UserID, "password", false)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", statusErr, func() map[string]string {
			return map[string]string{
				"reason": "account_status",
				"status": user.Status.String(),
			}
		})
		return nil, statusErr
	}

	if err := e.ledger.Reset(ctx, user.UserID); err != nil {
		log.Print("authcore: failure counter reset failed after login")
	}
	e.appendAttempt(ctx, user.UserID, "password", true)

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, user.UserID, user.PasswordHash, passwd)
	}
	passwd = ""

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

func (e *Engine) failLogin(ctx context.Context, userID, email, reason string) error {
	locked, retryAfter, lerr := e.ledger.RecordFailure(ctx, userID)
	e.appendAttempt(ctx, userID, "password", false)
	if lerr != nil {
		return wrapStoreErr(lerr)
	}
	e.metricInc(MetricLoginFailure)
	if locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, userID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"email":       email,
				"retry_after": retryAfter.String(),
			}
		})
		return ErrAccountLocked
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"email":  email,
			"reason": reason,
		}
	})
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, userID, currentHash, passwd string) {
	needsUpgrade, err := e.hasher.NeedsUpgrade(currentHash)
	if err != nil || !needsUpgrade {
		return
	}
	upgraded, err := e.hasher.Hash(passwd)
	if err != nil {
		log.Print("authcore: password hash upgrade generation failed")
		return
	}
	// Rehash update is best-effort and must not block successful login.
	if err := e.users.UpdatePasswordHash(ctx, userID, upgraded); err != nil {
		log.Print("authcore: password hash upgrade update failed")
		return
	}
	e.metricInc(MetricPasswordUpgraded)
	e.emitAudit(ctx, auditEventPasswordUpgraded, true, userID, "", nil, nil)
}

func (e *Engine) rememberedDeviceValid(ctx context.Context, userID, token string) bool {
	claims, err := e.jwtManager.ParseRemember(token)
	if err != nil || claims.UID != userID {
		return false
	}

	sess, err := e.sessions.GetReadOnly(ctx, claims.SID)
	if err != nil || sess.UserID != userID {
		return false
	}
	// The token's own exp is not enough: the session-side window is the
	// server's revocable record of how long the verification stays good.
	return sess.MFACurrent(time.Now().Unix())
}

func (e *Engine) beginMFAChallenge(ctx context.Context, user UserRecord) (*LoginResult, error) {
	method := MFAEmail
	if user.TOTPEnabled {
		method = MFATOTP
	}

	jti := internal.NewChallengeID()
	challenge := &stores.Challenge{
		UserID:    user.UserID,
		Method:    uint8(method),
		ExpiresAt: time.Now().Add(e.config.MFA.ChallengeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, jti, challenge, e.config.MFA.ChallengeTTL); err != nil {
		return nil, wrapStoreErr(err)
	}

	token, err := e.jwtManager.CreateChallenge(user.UserID, jti, method.String())
	if err != nil {
		return nil, err
	}

	if method == MFAEmail {
		if err := e.issueEmailCode(ctx, user); err != nil {
			_, _ = e.challenges.Delete(ctx, jti)
			return nil, err
		}
	}

	e.metricInc(MetricMFAChallengeIssued)
	e.emitAuditMethod(ctx, auditEventMFARequired, true, user.UserID, "", method, nil, nil)

	return &LoginResult{
		MFARequired:    true,
		Method:         method,
		ChallengeToken: token,
	}, nil
}

func (e *Engine) issueSessionTokens(ctx context.Context, user UserRecord, mfaVerified bool) (*LoginResult, string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, "", err
	}
	sessionID := sid.String()

	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:   sessionID,
		UserID:      user.UserID,
		Status:      uint8(user.Status),
		RefreshHash: internal.HashRefreshSecret(refreshSecret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(e.config.Session.RefreshTTL).Unix(),
	}
	if mfaVerified {
		sess.MFAVerifiedAt = now.Unix()
		sess.MFAExpiresAt = now.Add(e.config.RememberDevice.TTL).Unix()
	}

	if err := e.sessions.Save(ctx, sess, e.config.Session.RefreshTTL); err != nil {
		return nil, "", wrapStoreErr(err)
	}

	access, err := e.jwtManager.CreateAccess(user.UserID, sessionID)
	if err != nil {
		return nil, "", err
	}
	refresh, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
	if err != nil {
		return nil, "", err
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, sessionID, nil, nil)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
	}, sessionID, nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidToken, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return nil, ErrInvalidToken
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	sess, err := e.sessions.RotateRefreshHash(
		ctx,
		sessionID,
		internal.HashRefreshSecret(providedSecret),
		internal.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			// The presented secret was already rotated out: someone is
			// replaying an old token. The whole session family is gone.
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricSessionInvalidated)
			if trackErr := e.sessions.TrackReplayAnomaly(ctx, sessionID, e.config.Session.RefreshTTL); trackErr != nil {
				log.Print("authcore: replay anomaly tracking failed")
			}
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", sessionID, ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, redis.Nil):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrInvalidToken, func() map[string]string {
				return map[string]string{
					"reason": "session_not_found",
				}
			})
			return nil, ErrInvalidToken
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, err, func() map[string]string {
				return map[string]string{
					"reason": "rotate_failed",
				}
			})
			return nil, wrapStoreErr(err)
		}
	}

	if statusErr := accountStatusToError(AccountStatus(sess.Status)); statusErr != nil {
		_ = e.sessions.Delete(ctx, sess.SessionID)
		e.metricInc(MetricSessionInvalidated)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, sess.UserID, sess.SessionID, statusErr, func() map[string]string {
			return map[string]string{
				"reason": "account_status",
			}
		})
		return nil, statusErr
	}

	access, err := e.jwtManager.CreateAccess(sess.UserID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	refresh, err := internal.EncodeRefreshToken(sess.SessionID, nextSecret)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sess.SessionID, nil, nil)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	result := &AccessClaims{
		UserID:    claims.UID,
		SessionID: claims.SID,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.sessions == nil {
		return nil
	}

	// Unknown, expired, and malformed tokens all land on the same outcome:
	// nothing to revoke, nothing to report.
	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil
	}

	sess, err := e.sessions.GetReadOnly(ctx, sessionID)
	if err != nil {
		return nil
	}
	if sess.RefreshHash != internal.HashRefreshSecret(providedSecret) {
		return nil
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		log.Print("authcore: session delete failed during logout")
		return nil
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, sess.UserID, sessionID, nil, nil)
	return nil
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// LogoutAll may return an error when input validation, dependency calls, or security checks fail.
// LogoutAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrValidation
	}

	err := e.sessions.DeleteAllForUser(ctx, accountID)
	if err == nil {
		e.metricInc(MetricLogoutAll)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, accountID, "", err, nil)
	if err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// AttemptHistory returns up to n most-recent authentication attempts for
// the account, newest first.
func (e *Engine) AttemptHistory(ctx context.Context, accountID string, n int64) ([]ledger.Entry, error) {
	if e == nil || e.ledger == nil {
		return nil, ErrEngineNotReady
	}
	entries, err := e.ledger.History(ctx, accountID, n)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return entries, nil
}

func (e *Engine) appendAttempt(ctx context.Context, userID, method string, success bool) {
	entry := ledger.Entry{
		Method:  method,
		Success: success,
		IP:      clientIPFromContext(ctx),
	}
	if err := e.ledger.Append(ctx, userID, entry); err != nil {
		log.Print("authcore: attempt history append failed")
	}
}

func accountStatusToError(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountSuspended:
		return ErrAccountSuspended
	case AccountPendingVerification:
		return ErrAccountPendingVerification
	case AccountInactive:
		return ErrAccountInactive
	default:
		return ErrAccountInactive
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return errors.Join(ErrStoreUnavailable, err)
}

package authcore

import (
	"errors"
	"fmt"

	"github.com/authcore-io/authcore/internal/ledger"
	"github.com/authcore-io/authcore/internal/limiters"
	"github.com/authcore-io/authcore/internal/stores"
	"github.com/authcore-io/authcore/jwt"
	"github.com/authcore-io/authcore/password"
	"github.com/authcore-io/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserStore
	notifier Notifier
	verifier IdentityVerifier

	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore describes the withuserstore operation and its observable behavior.
//
// WithUserStore may return an error when input validation, dependency calls, or security checks fail.
// WithUserStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithNotifier describes the withnotifier operation and its observable behavior.
//
// WithNotifier may return an error when input validation, dependency calls, or security checks fail.
// WithNotifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithIdentityVerifier describes the withidentityverifier operation and its observable behavior.
//
// WithIdentityVerifier may return an error when input validation, dependency calls, or security checks fail.
// WithIdentityVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityVerifier(v IdentityVerifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client required", ErrInvalidConfig)
	}
	if b.users == nil {
		return nil, fmt.Errorf("%w: user store required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		users:    b.users,
		notifier: b.notifier,
		verifier: b.verifier,
	}

	engine.sessions = session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.SlidingExpiration,
		cfg.Session.JitterEnabled,
		cfg.Session.JitterRange,
	)
	engine.challenges = stores.NewChallengeStore(b.redis, "chal")
	engine.emailCodes = stores.NewEmailCodeStore(b.redis)
	engine.verifyCodes = stores.NewOneTimeCodeStore(b.redis, "vcode")
	engine.resetCodes = stores.NewOneTimeCodeStore(b.redis, "rcode")
	engine.ledger = ledger.New(b.redis, ledger.Config{
		MaxFailures:   cfg.Lockout.MaxFailures,
		FailureWindow: cfg.Lockout.FailureWindow,
		LockDuration:  cfg.Lockout.LockDuration,
		HistoryLimit:  cfg.Lockout.HistoryLimit,
		HistoryTTL:    cfg.Lockout.HistoryTTL,
	})
	engine.mfaLimiter = limiters.NewMFALimiter(b.redis, limiters.MFALimiterConfig{
		MaxAttempts: cfg.MFA.MaxAttempts,
		Window:      cfg.MFA.AttemptWindow,
	})
	engine.regLimiter = limiters.NewRegistrationLimiter(b.redis, limiters.RegistrationLimiterConfig{
		MaxAttempts: cfg.Registration.MaxAttempts,
		Cooldown:    cfg.Registration.Cooldown,
	})
	engine.verifyLimiter = limiters.NewRequestLimiter(b.redis, "vreq", limiters.RequestLimiterConfig{
		MaxAttempts: cfg.EmailVerification.MaxRequests,
		Window:      cfg.EmailVerification.RequestWindow,
	})
	engine.resetLimiter = limiters.NewRequestLimiter(b.redis, "rreq", limiters.RequestLimiterConfig{
		MaxAttempts: cfg.PasswordReset.MaxRequests,
		Window:      cfg.PasswordReset.RequestWindow,
	})

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	ph, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	engine.hasher = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		ChallengeTTL:  cfg.MFA.ChallengeTTL,
		RememberTTL:   cfg.RememberDevice.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		KeyID:         cfg.JWT.KeyID,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}

package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/authcore-io/authcore/password"
	"github.com/redis/go-redis/v9"
)

type mockUserStore struct {
	mu          sync.Mutex
	users       map[string]UserRecord
	byEmail     map[string]string
	totpRecords map[string]TOTPRecord
	backupCodes map[string][]BackupCodeRecord
	federated   map[string]string

	createErr error
	lookupErr error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:       map[string]UserRecord{},
		byEmail:     map[string]string{},
		totpRecords: map[string]TOTPRecord{},
		backupCodes: map[string][]BackupCodeRecord{},
		federated:   map[string]string{},
	}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return UserRecord{}, m.lookupErr
	}
	userID, ok := m.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.users[userID], nil
}

func (m *mockUserStore) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStore) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return UserRecord{}, m.createErr
	}
	if _, exists := m.byEmail[input.Email]; exists {
		return UserRecord{}, ErrDuplicateEmail
	}
	userID := fmt.Sprintf("u%d", len(m.users)+1)
	user := UserRecord{
		UserID:        userID,
		Email:         input.Email,
		EmailVerified: input.EmailVerified,
		PasswordHash:  input.PasswordHash,
		Status:        input.Status,
	}
	m.users[userID] = user
	m.byEmail[input.Email] = userID
	return user, nil
}

func (m *mockUserStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = newHash
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) UpdateAccountStatus(_ context.Context, userID string, status AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Status = status
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) MarkEmailVerified(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.EmailVerified = true
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) GetTOTPSecret(_ context.Context, userID string) (*TOTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.totpRecords[userID]
	if !ok {
		return &TOTPRecord{}, nil
	}
	cloned := record
	if len(record.Secret) > 0 {
		cloned.Secret = append([]byte(nil), record.Secret...)
	}
	return &cloned, nil
}

func (m *mockUserStore) SaveTOTPSecret(_ context.Context, userID string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := m.totpRecords[userID]
	record.Secret = append([]byte(nil), secret...)
	record.Enabled = false
	record.Confirmed = false
	record.LastUsedCounter = 0
	m.totpRecords[userID] = record
	return nil
}

func (m *mockUserStore) EnableTOTP(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	record := m.totpRecords[userID]
	record.Enabled = true
	record.Confirmed = true
	m.totpRecords[userID] = record
	user.TOTPEnabled = true
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) DisableTOTP(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	delete(m.totpRecords, userID)
	user.TOTPEnabled = false
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) UpdateTOTPLastUsedCounter(_ context.Context, userID string, counter int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := m.totpRecords[userID]
	record.LastUsedCounter = counter
	m.totpRecords[userID] = record
	return nil
}

func (m *mockUserStore) SetEmailMFA(_ context.Context, userID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.EmailMFAEnabled = enabled
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) GetBackupCodes(_ context.Context, userID string) ([]BackupCodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BackupCodeRecord(nil), m.backupCodes[userID]...), nil
}

func (m *mockUserStore) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backupCodes[userID] = append([]BackupCodeRecord(nil), codes...)
	return nil
}

func (m *mockUserStore) ConsumeBackupCode(_ context.Context, userID string, codeHash [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.backupCodes[userID]
	matchIndex := -1
	for i := range records {
		if subtle.ConstantTimeCompare(records[i].Hash[:], codeHash[:]) == 1 && matchIndex == -1 {
			matchIndex = i
		}
	}
	if matchIndex < 0 {
		return false, nil
	}
	records = append(records[:matchIndex], records[matchIndex+1:]...)
	m.backupCodes[userID] = records
	return true, nil
}

func (m *mockUserStore) GetUserByFederatedSubject(_ context.Context, provider, subject string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.federated[provider+"/"+subject]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.users[userID], nil
}

func (m *mockUserStore) LinkFederatedSubject(_ context.Context, userID, provider, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.federated[provider+"/"+subject] = userID
	return nil
}

type mockNotifier struct {
	mu          sync.Mutex
	codes       []string
	verifyCodes []string
	resetCodes  []string
	err         error
}

func (n *mockNotifier) SendLoginCode(_ context.Context, _ string, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.codes = append(n.codes, code)
	return nil
}

func (n *mockNotifier) SendVerificationCode(_ context.Context, _ string, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.verifyCodes = append(n.verifyCodes, code)
	return nil
}

func (n *mockNotifier) SendPasswordResetCode(_ context.Context, _ string, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resetCodes = append(n.resetCodes, code)
	return nil
}

func (n *mockNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.codes) == 0 {
		t.Fatal("expected a delivered email code")
	}
	return n.codes[len(n.codes)-1]
}

func (n *mockNotifier) lastVerifyCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.verifyCodes) == 0 {
		t.Fatal("expected a delivered verification code")
	}
	return n.verifyCodes[len(n.verifyCodes)-1]
}

func (n *mockNotifier) lastResetCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resetCodes) == 0 {
		t.Fatal("expected a delivered reset code")
	}
	return n.resetCodes[len(n.resetCodes)-1]
}

type mockVerifier struct {
	identity *FederatedIdentity
	err      error
}

func (v *mockVerifier) Verify(context.Context, string, string) (*FederatedIdentity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	h, err := password.NewHasher(password.Params{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func baseTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret-key-for-unit-tests!!")
	cfg.JWT.Issuer = "authcore-test"
	// Cheap argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Registration.Enabled = true
	cfg.Lockout.MaxFailures = 5
	cfg.Lockout.FailureWindow = time.Minute
	cfg.Lockout.LockDuration = time.Minute
	cfg.MFA.MaxAttempts = 3
	cfg.MFA.AttemptWindow = 5 * time.Minute
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store UserStore, extra ...func(*Builder)) (*Engine, *redis.Client, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store)
	for _, opt := range extra {
		opt(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, rdb, func() {
		engine.Close()
		mr.Close()
	}
}

func newTestEngineWithMiniredis(t *testing.T, cfg Config, store UserStore) (*Engine, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mr, func() {
		engine.Close()
		mr.Close()
	}
}

func seedActiveUser(t *testing.T, store *mockUserStore, email, plaintext string) string {
	t.Helper()

	hash, err := newTestHasher(t).Hash(plaintext)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	user, err := store.CreateUser(context.Background(), CreateUserInput{
		Email:         email,
		EmailVerified: true,
		PasswordHash:  hash,
		Status:        AccountActive,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user.UserID
}

var errBackendDown = errors.New("backend down")

package verification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockVerificationStore struct{ mock.Mock }

func (m *mockVerificationStore) Put(ctx context.Context, v *domain.UserVerification) error {
	return m.Called(ctx, v).Error(0)
}
func (m *mockVerificationStore) Get(ctx context.Context, userID string) (*domain.UserVerification, error) {
	args := m.Called(ctx, userID)
	if v, _ := args.Get(0).(*domain.UserVerification); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockVerificationStore) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockVerificationStore) IncrementAttempts(ctx context.Context, userID string, nowMS int64) (int, error) {
	args := m.Called(ctx, userID, nowMS)
	return args.Int(0), args.Error(1)
}

type mockSecretCache struct{ mock.Mock }

func (m *mockSecretCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *mockSecretCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if b, _ := args.Get(0).([]byte); b != nil {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSecretCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockPushSender struct{ mock.Mock }

func (m *mockPushSender) SendPush(ctx context.Context, target, message string) error {
	return m.Called(ctx, target, message).Error(0)
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// --- builder ---

func newTestService(vs *mockVerificationStore, sc *mockSecretCache, us *mockUserStore, ps *mockPushSender, clk Clock) Service {
	return NewService(ServiceDeps{
		Verifications: vs,
		Cache:         sc,
		Users:         us,
		Push:          ps,
		Retry:         retry.Config{Attempts: 1, Name: "send code"},
		Policy:        Policy{CodeTTL: 10 * time.Minute, MaxAttempts: 5, CodeLength: 6},
		Clock:         clk,
	})
}

func hashOf(t *testing.T, plain string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func secretJSON(t *testing.T, hash, target string, expiresAt int64) []byte {
	t.Helper()
	b, err := json.Marshal(domain.VerificationSecret{CodeHash: hash, PushTarget: target, ExpiresAt: expiresAt})
	require.NoError(t, err)
	return b
}

// --- RequestCode ---

func TestRequestCode_HappyPath(t *testing.T) {
	vs := &mockVerificationStore{}
	sc := &mockSecretCache{}
	ps := &mockPushSender{}
	clk := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	vs.On("Delete", mock.Anything, "u1").Return(domain.ErrNotFound)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)
	var stored *domain.UserVerification
	vs.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.UserVerification)
	}).Return(nil)
	sc.On("SetWithTTL", mock.Anything, "verification:u1", mock.Anything, 10*time.Minute).Return(nil)
	ps.On("SendPush", mock.Anything, "line:target-1", mock.Anything).Return(nil)

	svc := newTestService(vs, sc, nil, ps, clk)
	issued, err := svc.RequestCode(context.Background(), "u1", "line:target-1")

	require.NoError(t, err)
	assert.Len(t, issued.Code, 6)
	assert.Equal(t, clk.now.Add(10*time.Minute).UnixMilli(), issued.ExpiresAt)
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, "line:target-1", stored.PushTarget)
	assert.Zero(t, stored.Attempts)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.CodeHash), []byte(issued.Code)))
	ps.AssertExpectations(t)
}

func TestRequestCode_SupersedesPriorCode(t *testing.T) {
	vs := &mockVerificationStore{}
	sc := &mockSecretCache{}
	ps := &mockPushSender{}
	clk := &fixedClock{now: time.Now()}

	vs.On("Delete", mock.Anything, "u1").Return(nil)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)
	vs.On("Put", mock.Anything, mock.Anything).Return(nil)
	sc.On("SetWithTTL", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("SendPush", mock.Anything, "t", mock.Anything).Return(nil)

	svc := newTestService(vs, sc, nil, ps, clk)
	_, err := svc.RequestCode(context.Background(), "u1", "t")

	require.NoError(t, err)
	vs.AssertCalled(t, "Delete", mock.Anything, "u1")
	sc.AssertCalled(t, "Delete", mock.Anything, "verification:u1")
}

func TestRequestCode_MissingArgs(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil, &fixedClock{now: time.Now()})

	_, err := svc.RequestCode(context.Background(), "", "t")
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = svc.RequestCode(context.Background(), "u1", "")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestRequestCode_DispatchFailureAfterRetry(t *testing.T) {
	vs := &mockVerificationStore{}
	sc := &mockSecretCache{}
	ps := &mockPushSender{}
	clk := &fixedClock{now: time.Now()}

	vs.On("Delete", mock.Anything, "u1").Return(nil)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)
	vs.On("Put", mock.Anything, mock.Anything).Return(nil)
	sc.On("SetWithTTL", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("SendPush", mock.Anything, "t", mock.Anything).Return(errors.New("provider down"))

	svc := newTestService(vs, sc, nil, ps, clk)
	_, err := svc.RequestCode(context.Background(), "u1", "t")

	assert.ErrorIs(t, err, domain.ErrDispatchFailed)
	// One retry configured: two send attempts total.
	ps.AssertNumberOfCalls(t, "SendPush", 2)
}

func TestRequestCode_CacheWriteFailureIsNotFatal(t *testing.T) {
	vs := &mockVerificationStore{}
	sc := &mockSecretCache{}
	ps := &mockPushSender{}
	clk := &fixedClock{now: time.Now()}

	vs.On("Delete", mock.Anything, "u1").Return(nil)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)
	vs.On("Put", mock.Anything, mock.Anything).Return(nil)
	sc.On("SetWithTTL", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	ps.On("SendPush", mock.Anything, "t", mock.Anything).Return(nil)

	svc := newTestService(vs, sc, nil, ps, clk)
	_, err := svc.RequestCode(context.Background(), "u1", "t")

	require.NoError(t, err)
}

// --- ConfirmCode ---

func TestConfirmCode_HappyPath_CacheHit(t *testing.T) {
	sc := &mockSecretCache{}
	us := &mockUserStore{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	hash := hashOf(t, "ABC123")
	exp := clk.now.Add(5 * time.Minute).UnixMilli()
	sc.On("Get", mock.Anything, "verification:u1").Return(secretJSON(t, hash, "line:t", exp), nil)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{
		"push_target":   "line:t",
		"push_verified": true,
		"push_enabled":  true,
	}).Return(nil)
	vs.On("Delete", mock.Anything, "u1").Return(nil)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)

	svc := newTestService(vs, sc, us, nil, clk)
	err := svc.ConfirmCode(context.Background(), "u1", "ABC123")

	require.NoError(t, err)
	us.AssertExpectations(t)
	vs.AssertCalled(t, "Delete", mock.Anything, "u1")
}

func TestConfirmCode_CaseInsensitive(t *testing.T) {
	sc := &mockSecretCache{}
	us := &mockUserStore{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	hash := hashOf(t, "ABC123")
	exp := clk.now.Add(5 * time.Minute).UnixMilli()
	sc.On("Get", mock.Anything, "verification:u1").Return(secretJSON(t, hash, "t", exp), nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	vs.On("Delete", mock.Anything, "u1").Return(nil)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)

	svc := newTestService(vs, sc, us, nil, clk)
	assert.NoError(t, svc.ConfirmCode(context.Background(), "u1", "  abc123  "))
}

func TestConfirmCode_CacheMissFallsBackToStore(t *testing.T) {
	sc := &mockSecretCache{}
	us := &mockUserStore{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	hash := hashOf(t, "ABC123")
	sc.On("Get", mock.Anything, "verification:u1").Return(nil, domain.ErrNotFound)
	vs.On("Get", mock.Anything, "u1").Return(&domain.UserVerification{
		UserID:     "u1",
		CodeHash:   hash,
		PushTarget: "t",
		ExpiresAt:  clk.now.Add(5 * time.Minute).UnixMilli(),
	}, nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	vs.On("Delete", mock.Anything, "u1").Return(nil)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)

	svc := newTestService(vs, sc, us, nil, clk)
	assert.NoError(t, svc.ConfirmCode(context.Background(), "u1", "ABC123"))
}

func TestConfirmCode_NoActiveCode(t *testing.T) {
	sc := &mockSecretCache{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	sc.On("Get", mock.Anything, "verification:u1").Return(nil, domain.ErrNotFound)
	vs.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)

	svc := newTestService(vs, sc, nil, nil, clk)
	err := svc.ConfirmCode(context.Background(), "u1", "ABC123")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestConfirmCode_Expired(t *testing.T) {
	sc := &mockSecretCache{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	hash := hashOf(t, "ABC123")
	exp := clk.now.Add(-time.Second).UnixMilli()
	sc.On("Get", mock.Anything, "verification:u1").Return(secretJSON(t, hash, "t", exp), nil)
	vs.On("Delete", mock.Anything, "u1").Return(nil)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)

	svc := newTestService(vs, sc, nil, nil, clk)
	err := svc.ConfirmCode(context.Background(), "u1", "ABC123")

	assert.ErrorIs(t, err, domain.ErrCodeExpired)
	vs.AssertCalled(t, "Delete", mock.Anything, "u1")
	sc.AssertCalled(t, "Delete", mock.Anything, "verification:u1")
}

func TestConfirmCode_MismatchIncrementsAttempts(t *testing.T) {
	sc := &mockSecretCache{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	hash := hashOf(t, "ABC123")
	exp := clk.now.Add(5 * time.Minute).UnixMilli()
	sc.On("Get", mock.Anything, "verification:u1").Return(secretJSON(t, hash, "t", exp), nil)
	vs.On("IncrementAttempts", mock.Anything, "u1", clk.now.UnixMilli()).Return(1, nil)

	svc := newTestService(vs, sc, nil, nil, clk)
	err := svc.ConfirmCode(context.Background(), "u1", "WRONG1")

	assert.ErrorIs(t, err, domain.ErrCodeMismatch)
	vs.AssertCalled(t, "IncrementAttempts", mock.Anything, "u1", clk.now.UnixMilli())
}

func TestConfirmCode_FifthMismatchExhausts(t *testing.T) {
	sc := &mockSecretCache{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	hash := hashOf(t, "ABC123")
	exp := clk.now.Add(5 * time.Minute).UnixMilli()
	sc.On("Get", mock.Anything, "verification:u1").Return(secretJSON(t, hash, "t", exp), nil)
	vs.On("IncrementAttempts", mock.Anything, "u1", mock.Anything).Return(5, nil)
	vs.On("Delete", mock.Anything, "u1").Return(nil)
	sc.On("Delete", mock.Anything, "verification:u1").Return(nil)

	svc := newTestService(vs, sc, nil, nil, clk)
	err := svc.ConfirmCode(context.Background(), "u1", "WRONG1")

	assert.ErrorIs(t, err, domain.ErrAttemptsExhausted)
	vs.AssertCalled(t, "Delete", mock.Anything, "u1")
}

func TestConfirmCode_RecordGoneDuringIncrement(t *testing.T) {
	sc := &mockSecretCache{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	hash := hashOf(t, "ABC123")
	exp := clk.now.Add(5 * time.Minute).UnixMilli()
	sc.On("Get", mock.Anything, "verification:u1").Return(secretJSON(t, hash, "t", exp), nil)
	vs.On("IncrementAttempts", mock.Anything, "u1", mock.Anything).Return(0, domain.ErrNotFound)

	svc := newTestService(vs, sc, nil, nil, clk)
	err := svc.ConfirmCode(context.Background(), "u1", "WRONG1")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestConfirmCode_BindingPersistFailure(t *testing.T) {
	sc := &mockSecretCache{}
	us := &mockUserStore{}
	vs := &mockVerificationStore{}
	clk := &fixedClock{now: time.Now()}

	hash := hashOf(t, "ABC123")
	exp := clk.now.Add(5 * time.Minute).UnixMilli()
	sc.On("Get", mock.Anything, "verification:u1").Return(secretJSON(t, hash, "t", exp), nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(errors.New("dynamo down"))

	svc := newTestService(vs, sc, us, nil, clk)
	err := svc.ConfirmCode(context.Background(), "u1", "ABC123")

	require.Error(t, err)
	// Artifacts survive a failed binding so the user can retry the code.
	vs.AssertNotCalled(t, "Delete", mock.Anything, "u1")
}

// --- per-user lock ---

func TestLock_EvictsEntryOnRelease(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil, &fixedClock{now: time.Now()}).(*service)

	unlock := svc.lock("u1")
	svc.mu.Lock()
	assert.Len(t, svc.locks, 1)
	svc.mu.Unlock()

	unlock()
	svc.mu.Lock()
	assert.Empty(t, svc.locks)
	svc.mu.Unlock()
}

func TestLock_ContendedEntrySurvivesUntilLastRelease(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil, &fixedClock{now: time.Now()}).(*service)

	first := svc.lock("u1")
	second := make(chan func(), 1)
	go func() { second <- svc.lock("u1") }()

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		l, ok := svc.locks["u1"]
		return ok && l.refs == 2
	}, time.Second, time.Millisecond)

	first()
	unlock := <-second
	svc.mu.Lock()
	assert.Len(t, svc.locks, 1, "entry must survive while a holder remains")
	svc.mu.Unlock()

	unlock()
	svc.mu.Lock()
	assert.Empty(t, svc.locks)
	svc.mu.Unlock()
}

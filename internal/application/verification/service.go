package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/code"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/retry"
	"golang.org/x/crypto/bcrypt"
)

// VerificationStore is the durable side of the code lifecycle. It is the
// authority for the attempt counter.
type VerificationStore interface {
	Put(ctx context.Context, v *domain.UserVerification) error
	Get(ctx context.Context, userID string) (*domain.UserVerification, error)
	Delete(ctx context.Context, userID string) error
	IncrementAttempts(ctx context.Context, userID string, nowMS int64) (int, error)
}

// SecretCache holds the TTL-backed secret mirror for the confirm window.
type SecretCache interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// UserStore persists the verified identity binding.
type UserStore interface {
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// PushSender delivers the code to the external messaging identity.
type PushSender interface {
	SendPush(ctx context.Context, target, message string) error
}

// Clock abstracts time so tests can drive expiry deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Policy fixes the verification window. One TTL governs both the durable
// record and the cache mirror; the two windows are the same concept and
// must not drift apart.
type Policy struct {
	CodeTTL     time.Duration
	MaxAttempts int
	CodeLength  int
}

// CodeIssued is returned to the caller for UI display.
type CodeIssued struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expires_at"` // epoch ms
}

type Service interface {
	RequestCode(ctx context.Context, userID, pushTarget string) (*CodeIssued, error)
	ConfirmCode(ctx context.Context, userID, submitted string) error
}

type ServiceDeps struct {
	Verifications VerificationStore
	Cache         SecretCache
	Users         UserStore
	Push          PushSender
	Retry         retry.Config
	Policy        Policy
	Clock         Clock
}

type service struct {
	verifications VerificationStore
	cache         SecretCache
	users         UserStore
	push          PushSender
	retryCfg      retry.Config
	policy        Policy
	clock         Clock

	mu    sync.Mutex
	locks map[string]*userLock
}

func NewService(deps ServiceDeps) Service {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	return &service{
		verifications: deps.Verifications,
		cache:         deps.Cache,
		users:         deps.Users,
		push:          deps.Push,
		retryCfg:      deps.Retry,
		policy:        deps.Policy,
		clock:         deps.Clock,
		locks:         make(map[string]*userLock),
	}
}

func cacheKey(userID string) string { return "verification:" + userID }

func (s *service) RequestCode(ctx context.Context, userID, pushTarget string) (*CodeIssued, error) {
	if userID == "" || pushTarget == "" {
		return nil, fmt.Errorf("user id and push target required: %w", domain.ErrBadRequest)
	}

	// Last request wins: any prior code is invalidated before the new one
	// is stored. A missing record is not an error.
	if err := s.verifications.Delete(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("failed to delete prior verification record", "user_id", userID, "err", err)
	}
	if err := s.cache.Delete(ctx, cacheKey(userID)); err != nil {
		slog.Warn("failed to delete prior verification secret", "user_id", userID, "err", err)
	}

	plain, err := code.New(s.policy.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash verification code: %w", err)
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.policy.CodeTTL).UnixMilli()

	rec := &domain.UserVerification{
		UserID:     userID,
		CodeHash:   string(hash),
		PushTarget: pushTarget,
		ExpiresAt:  expiresAt,
		Attempts:   0,
		Verified:   false,
		CreatedAt:  now.UnixMilli(),
		UpdatedAt:  now.UnixMilli(),
	}
	if err := s.verifications.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("store verification record: %w", err)
	}

	secret, err := json.Marshal(domain.VerificationSecret{
		CodeHash:   string(hash),
		PushTarget: pushTarget,
		IssuedAt:   now.UnixMilli(),
		ExpiresAt:  expiresAt,
	})
	if err == nil {
		err = s.cache.SetWithTTL(ctx, cacheKey(userID), secret, s.policy.CodeTTL)
	}
	if err != nil {
		// The durable record alone is enough to confirm against.
		slog.Warn("failed to cache verification secret", "user_id", userID, "err", err)
	}

	msg := "Your verification code: " + plain
	err = retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.push.SendPush(ctx, pushTarget, msg)
	})
	if err != nil {
		// The record stays valid: the code is still usable if the user
		// obtains it through another surface.
		return nil, fmt.Errorf("deliver verification code: %v: %w", err, domain.ErrDispatchFailed)
	}

	return &CodeIssued{Code: plain, ExpiresAt: expiresAt}, nil
}

func (s *service) ConfirmCode(ctx context.Context, userID, submitted string) error {
	if userID == "" || submitted == "" {
		return fmt.Errorf("user id and code required: %w", domain.ErrBadRequest)
	}
	unlock := s.lock(userID)
	defer unlock()

	submitted = strings.ToUpper(strings.TrimSpace(submitted))
	now := s.clock.Now()

	hash, target, expiresAt, err := s.lookupSecret(ctx, userID)
	if err != nil {
		return err
	}

	if now.UnixMilli() > expiresAt {
		s.deleteArtifacts(ctx, userID)
		return fmt.Errorf("code expired for user %s: %w", userID, domain.ErrCodeExpired)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(submitted)) != nil {
		attempts, err := s.verifications.IncrementAttempts(ctx, userID, now.UnixMilli())
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Superseded or expired out from under us.
				return fmt.Errorf("record gone for user %s: %w", userID, domain.ErrCodeNotFound)
			}
			return fmt.Errorf("record attempt: %w", err)
		}
		if attempts >= s.policy.MaxAttempts {
			s.deleteArtifacts(ctx, userID)
			return fmt.Errorf("attempt %d of %d for user %s: %w",
				attempts, s.policy.MaxAttempts, userID, domain.ErrAttemptsExhausted)
		}
		return fmt.Errorf("attempt %d of %d for user %s: %w",
			attempts, s.policy.MaxAttempts, userID, domain.ErrCodeMismatch)
	}

	// The binding on the user record carries the verified state; the
	// verification artifacts are deleted rather than kept around flagged.
	if err := s.users.Update(ctx, userID, map[string]interface{}{
		"push_target":   target,
		"push_verified": true,
		"push_enabled":  true,
	}); err != nil {
		return fmt.Errorf("persist identity binding: %w", err)
	}
	s.deleteArtifacts(ctx, userID)
	return nil
}

// lookupSecret reads the active code, cache first with durable fallback.
// Absence in both means expired or never requested.
func (s *service) lookupSecret(ctx context.Context, userID string) (hash, target string, expiresAt int64, err error) {
	if b, cerr := s.cache.Get(ctx, cacheKey(userID)); cerr == nil {
		var sec domain.VerificationSecret
		if jerr := json.Unmarshal(b, &sec); jerr == nil {
			return sec.CodeHash, sec.PushTarget, sec.ExpiresAt, nil
		}
		slog.Warn("malformed verification secret in cache", "user_id", userID)
	}
	rec, gerr := s.verifications.Get(ctx, userID)
	if gerr != nil {
		if errors.Is(gerr, domain.ErrNotFound) {
			return "", "", 0, fmt.Errorf("no active code for user %s: %w", userID, domain.ErrCodeNotFound)
		}
		return "", "", 0, fmt.Errorf("load verification record: %w", gerr)
	}
	return rec.CodeHash, rec.PushTarget, rec.ExpiresAt, nil
}

func (s *service) deleteArtifacts(ctx context.Context, userID string) {
	if err := s.verifications.Delete(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("failed to delete verification record", "user_id", userID, "err", err)
	}
	if err := s.cache.Delete(ctx, cacheKey(userID)); err != nil {
		slog.Warn("failed to delete verification secret", "user_id", userID, "err", err)
	}
}

// userLock is a refcounted per-user mutex entry. The count tracks holders
// and waiters so the map entry can be evicted once the last one releases.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes ConfirmCode per user. Two concurrent confirms for the
// same user must not both succeed or tear the attempt counter. Entries are
// removed when the last holder releases, so the map does not grow with
// distinct users over the process lifetime.
func (s *service) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

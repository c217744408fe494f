package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
)

// UserStore reads and mutates the durable user record.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// DistributedCache is the shared cache layer in front of the record store.
type DistributedCache interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) error
}

type Service interface {
	Get(ctx context.Context, userID string) (*domain.NotificationSettings, error)
	Update(ctx context.Context, userID string, req domain.NotificationSettings) (*domain.NotificationSettings, error)
	Invalidate(ctx context.Context, userID string)
}

type service struct {
	users UserStore
	cache DistributedCache
	local *localCache
}

const (
	cacheTTL      = 5 * time.Minute
	localCacheTTL = 30 * time.Second

	// settingsVersionKey is the namespace version dependent query caches
	// key their results under; bumping it forces a refetch.
	settingsVersionKey = "settings:version"
)

func settingsKey(userID string) string { return "settings:" + userID }
func channelStatusKey(userID string) string { return "channel-status:" + userID }

func NewService(users UserStore, cache DistributedCache) Service {
	return &service{users: users, cache: cache, local: newLocalCache(localCacheTTL)}
}

// Get serves settings local-cache first, then the distributed cache, then
// the record store, repopulating the faster layers on the way back.
func (s *service) Get(ctx context.Context, userID string) (*domain.NotificationSettings, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", domain.ErrBadRequest)
	}
	if cached, ok := s.local.get(userID); ok {
		return &cached, nil
	}
	if b, err := s.cache.Get(ctx, settingsKey(userID)); err == nil {
		var st domain.NotificationSettings
		if json.Unmarshal(b, &st) == nil {
			s.local.set(userID, st)
			return &st, nil
		}
		slog.Warn("malformed settings cache entry", "user_id", userID)
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := u.Settings()
	s.populate(ctx, userID, st)
	return &st, nil
}

// Update applies the non-nil fields to the user record and invalidates
// every cached copy so subsequent reads are consistent.
func (s *service) Update(ctx context.Context, userID string, req domain.NotificationSettings) (*domain.NotificationSettings, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", domain.ErrBadRequest)
	}
	updates := make(map[string]interface{})
	if req.EmailEnabled != nil {
		updates["email_enabled"] = *req.EmailEnabled
	}
	if req.DiscordEnabled != nil {
		updates["discord_enabled"] = *req.DiscordEnabled
	}
	if req.PushEnabled != nil {
		updates["push_enabled"] = *req.PushEnabled
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no settings fields provided: %w", domain.ErrBadRequest)
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Push delivery needs a confirmed identity to send to.
	if enable, ok := updates["push_enabled"].(bool); ok && enable && !u.PushVerified {
		return nil, fmt.Errorf("push identity not verified: %w", domain.ErrBadRequest)
	}

	if err := s.users.Update(ctx, userID, updates); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	s.Invalidate(ctx, userID)

	fresh, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := fresh.Settings()
	s.populate(ctx, userID, st)
	return &st, nil
}

// Invalidate clears every cached copy of the user's settings. The four
// steps are independent and best-effort: a failure in one layer must not
// leave the others stale.
func (s *service) Invalidate(ctx context.Context, userID string) {
	s.local.delete(userID)
	if err := s.cache.Delete(ctx, settingsKey(userID)); err != nil {
		slog.Warn("failed to invalidate settings cache", "user_id", userID, "err", err)
	}
	if err := s.cache.Delete(ctx, channelStatusKey(userID)); err != nil {
		slog.Warn("failed to invalidate channel-status cache", "user_id", userID, "err", err)
	}
	if err := s.cache.Incr(ctx, settingsVersionKey); err != nil {
		slog.Warn("failed to bump settings version", "err", err)
	}
}

func (s *service) populate(ctx context.Context, userID string, st domain.NotificationSettings) {
	s.local.set(userID, st)
	if b, err := json.Marshal(st); err == nil {
		if err := s.cache.SetWithTTL(ctx, settingsKey(userID), b, cacheTTL); err != nil {
			slog.Warn("failed to populate settings cache", "user_id", userID, "err", err)
		}
	}
}

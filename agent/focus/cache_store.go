package focus

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/agentcouncil/internal/cache"
	"go.uber.org/zap"
)

// Cache 读穿缓存依赖的最小接口，internal/cache.Manager 满足该接口
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	cacheKeyEnabled = "focus:enabled"
	cacheKeyProfile = "focus:profile:"
)

// CachedStore 在任意 Store 前加一层读穿缓存。
// 缓存故障只降级为直接读源，不会让调用失败。
type CachedStore struct {
	next   Store
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore 创建读穿缓存包装
func NewCachedStore(next Store, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "focus_cache")),
	}
}

// ListEnabled 实现 Store
func (s *CachedStore) ListEnabled(ctx context.Context) ([]*Profile, error) {
	var cached []*Profile
	err := s.cache.GetJSON(ctx, cacheKeyEnabled, &cached)
	if err == nil {
		return cached, nil
	}
	s.logMiss(cacheKeyEnabled, err)

	profiles, err := s.next.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, cacheKeyEnabled, profiles, s.ttl); err != nil {
		s.logger.Warn("cache fill failed", zap.String("key", cacheKeyEnabled), zap.Error(err))
	}
	return profiles, nil
}

// Get 实现 Store。不存在的画像不缓存。
func (s *CachedStore) Get(ctx context.Context, id string) (*Profile, error) {
	key := cacheKeyProfile + id

	var cached Profile
	err := s.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	s.logMiss(key, err)

	p, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, p, s.ttl); err != nil {
		s.logger.Warn("cache fill failed", zap.String("key", key), zap.Error(err))
	}
	return p, nil
}

// Save 写入底层存储并失效缓存，底层不可写时返回错误
func (s *CachedStore) Save(ctx context.Context, p *Profile) error {
	w, ok := s.next.(Writer)
	if !ok {
		return errors.New("underlying focus store is read-only")
	}
	if err := w.Save(ctx, p); err != nil {
		return err
	}
	return s.Invalidate(ctx, p.ID)
}

// Invalidate 失效单个画像与启用列表
func (s *CachedStore) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, cacheKeyEnabled)
	for _, id := range ids {
		keys = append(keys, cacheKeyProfile+id)
	}
	return s.cache.Delete(ctx, keys...)
}

func (s *CachedStore) logMiss(key string, err error) {
	if cache.IsCacheMiss(err) {
		s.logger.Debug("cache miss", zap.String("key", key))
		return
	}
	s.logger.Warn("cache read failed, falling back to source", zap.String("key", key), zap.Error(err))
}

package swarm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentcouncil/internal/cache"
)

// PheromoneConfig 信息素更新参数
type PheromoneConfig struct {
	Reinforce float64
	Decay     float64
	MinWeight float64
	MaxWeight float64
}

// Trail 一组候选人的信息素权重，总和恒为 1
type Trail struct {
	mu      sync.Mutex
	cfg     PheromoneConfig
	weights map[string]float64
}

// NewTrail 以 prior 为起点建立权重。
// prior 中缺失的候选人以已知权重的均值进入；prior 为空时均匀分布。结果已归一化。
func NewTrail(candidates []string, prior map[string]float64, cfg PheromoneConfig) *Trail {
	t := &Trail{cfg: cfg, weights: make(map[string]float64, len(candidates))}

	var known []float64
	for _, id := range candidates {
		if w, ok := prior[id]; ok && w > 0 {
			t.weights[id] = w
			known = append(known, w)
		}
	}

	fill := 1.0
	if len(known) > 0 {
		sum := 0.0
		for _, w := range known {
			sum += w
		}
		fill = sum / float64(len(known))
	}
	for _, id := range candidates {
		if _, ok := t.weights[id]; !ok {
			t.weights[id] = fill
		}
	}

	t.normalize()
	return t
}

// Weight 返回候选人当前权重
func (t *Trail) Weight(id string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.weights[id]
}

// Update 强化 matched 中的 Agent、衰减其余 Agent，截断后重新归一化
func (t *Trail) Update(matched map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, w := range t.weights {
		if matched[id] {
			w *= 1 + t.cfg.Reinforce
		} else {
			w *= 1 - t.cfg.Decay
		}
		t.weights[id] = clamp(w, t.cfg.MinWeight, t.cfg.MaxWeight)
	}
	t.normalize()
}

// Snapshot 返回权重副本
func (t *Trail) Snapshot() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.weights))
	for id, w := range t.weights {
		out[id] = w
	}
	return out
}

// normalize 调用方持有锁
func (t *Trail) normalize() {
	if len(t.weights) == 0 {
		return
	}
	ids := make([]string, 0, len(t.weights))
	sum := 0.0
	for id, w := range t.weights {
		ids = append(ids, id)
		sum += w
	}
	sort.Strings(ids)

	if sum <= 0 {
		for _, id := range ids {
			t.weights[id] = 1 / float64(len(ids))
		}
		return
	}
	// 最后一项取余数，保证总和为 1
	rest := 1.0
	for _, id := range ids[:len(ids)-1] {
		w := t.weights[id] / sum
		t.weights[id] = w
		rest -= w
	}
	t.weights[ids[len(ids)-1]] = rest
}

func clamp(w, lo, hi float64) float64 {
	if lo > 0 && w < lo {
		return lo
	}
	if hi > 0 && w > hi {
		return hi
	}
	return w
}

// TrailKey 候选人集合的存储键，与顺序无关
func TrailKey(candidates []string) string {
	ids := append([]string(nil), candidates...)
	sort.Strings(ids)
	return "swarm:trail:" + strings.Join(ids, ",")
}

// =============================================================================
// 💾 TrailStore
// =============================================================================

// TrailStore 信息素权重的持久化
type TrailStore interface {
	// Load 返回 key 对应的权重，不存在时返回 (nil, nil)
	Load(ctx context.Context, key string) (map[string]float64, error)
	// Save 覆盖保存
	Save(ctx context.Context, key string, weights map[string]float64) error
}

// MemoryTrailStore 进程内 TrailStore
type MemoryTrailStore struct {
	mu     sync.RWMutex
	trails map[string]map[string]float64
}

// NewMemoryTrailStore 创建进程内存储
func NewMemoryTrailStore() *MemoryTrailStore {
	return &MemoryTrailStore{trails: make(map[string]map[string]float64)}
}

// Load 实现 TrailStore
func (s *MemoryTrailStore) Load(_ context.Context, key string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.trails[key]
	if !ok {
		return nil, nil
	}
	return copyWeights(w), nil
}

// Save 实现 TrailStore
func (s *MemoryTrailStore) Save(_ context.Context, key string, weights map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trails[key] = copyWeights(weights)
	return nil
}

// JSONCache RedisTrailStore 需要的缓存能力，由 cache.Manager 实现
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisTrailStore 以 JSON 形式把权重保存到 Redis，ttl 为 0 时使用缓存默认值
type RedisTrailStore struct {
	cache JSONCache
	ttl   time.Duration
}

// NewRedisTrailStore 创建 Redis 存储
func NewRedisTrailStore(c JSONCache, ttl time.Duration) *RedisTrailStore {
	return &RedisTrailStore{cache: c, ttl: ttl}
}

// Load 实现 TrailStore
func (s *RedisTrailStore) Load(ctx context.Context, key string) (map[string]float64, error) {
	var w map[string]float64
	err := s.cache.GetJSON(ctx, key, &w)
	if cache.IsCacheMiss(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pheromone trail: %w", err)
	}
	return w, nil
}

// Save 实现 TrailStore
func (s *RedisTrailStore) Save(ctx context.Context, key string, weights map[string]float64) error {
	if err := s.cache.SetJSON(ctx, key, weights, s.ttl); err != nil {
		return fmt.Errorf("save pheromone trail: %w", err)
	}
	return nil
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

package focus

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrProfileNotFound 画像不存在
var ErrProfileNotFound = errors.New("focus profile not found")

// Store 画像来源
type Store interface {
	// ListEnabled 返回所有启用的画像，按 ID 升序
	ListEnabled(ctx context.Context) ([]*Profile, error)

	// Get 按 ID 获取画像，不存在时返回 ErrProfileNotFound
	Get(ctx context.Context, id string) (*Profile, error)
}

// Writer 可写的画像来源，用于种子导入
type Writer interface {
	Save(ctx context.Context, p *Profile) error
}

// MemoryStore 进程内画像存储
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore(profiles ...*Profile) *MemoryStore {
	s := &MemoryStore{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.ID] = p.Clone()
	}
	return s
}

// ListEnabled 实现 Store
func (s *MemoryStore) ListEnabled(ctx context.Context) ([]*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.Enabled {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get 实现 Store
func (s *MemoryStore) Get(ctx context.Context, id string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p.Clone(), nil
}

// Save 实现 Writer
func (s *MemoryStore) Save(_ context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p.Clone()
	return nil
}

// Delete 删除画像
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
}

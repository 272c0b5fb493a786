package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BaSui01/agentcouncil/agent/focus"
	"go.uber.org/zap"
)

// =============================================================================
// 🧭 路由表
// =============================================================================

// Source 路由表来源
type Source string

const (
	SourceStore    Source = "store"
	SourceDefaults Source = "defaults"
)

// matcher 单个 focus 的关键词匹配器
type matcher struct {
	keywords []string // 小写、去重、非空
}

func newMatcher(keywords []string) *matcher {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return &matcher{keywords: out}
}

// hits 统计在 lowered 中出现的不同关键词数
func (m *matcher) hits(lowered string) int {
	n := 0
	for _, k := range m.keywords {
		if strings.Contains(lowered, k) {
			n++
		}
	}
	return n
}

// score 命中比例
func (m *matcher) score(lowered string) float64 {
	if len(m.keywords) == 0 {
		return 0
	}
	return float64(m.hits(lowered)) / float64(len(m.keywords))
}

// table 不可变的路由表快照
type table struct {
	matchers map[string]*matcher
	builtAt  time.Time
	source   Source
}

func buildTable(src map[string][]string, source Source, now time.Time) *table {
	t := &table{
		matchers: make(map[string]*matcher, len(src)),
		builtAt:  now,
		source:   source,
	}
	for id, kws := range src {
		t.matchers[id] = newMatcher(kws)
	}
	return t
}

// Stats 路由表状态
type Stats struct {
	Size      int       `json:"size"`
	BuiltAt   time.Time `json:"built_at"`
	Source    Source    `json:"source"`
	Refreshes uint64    `json:"refreshes"`
	FocusIDs  []string  `json:"focus_ids"`
}

// Observer 路由表刷新回调，用于指标
type Observer interface {
	ObserveRoutingRefresh(source string, size int, err error)
}

// =============================================================================
// 🎯 Router
// =============================================================================

// Router 专长路由器
type Router struct {
	store     focus.Store
	current   atomic.Pointer[table]
	refreshes atomic.Uint64
	observer  Observer
	now       func() time.Time
	logger    *zap.Logger
}

// Option Router 选项
type Option func(*Router)

// WithObserver 设置刷新观察者
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter 创建路由器。初始即安装默认表，store 为 nil 时永远使用默认表。
func NewRouter(store focus.Store, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		store:  store,
		now:    time.Now,
		logger: logger.With(zap.String("component", "router")),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(buildTable(defaultKeywords, SourceDefaults, r.now()))
	return r
}

// Score 返回 text 与 focusID 专长的相关度，未知 focus 返回 0
func (r *Router) Score(text, focusID string) float64 {
	m, ok := r.current.Load().matchers[focusID]
	if !ok {
		return 0
	}
	return m.score(strings.ToLower(text))
}

// Known 路由表中是否存在该 focus
func (r *Router) Known(focusID string) bool {
	_, ok := r.current.Load().matchers[focusID]
	return ok
}

// Refresh 从 profile 来源重建路由表并整体替换。
// 来源出错或为空时安装默认表；出错时仍返回该错误供调用方记录。
func (r *Router) Refresh(ctx context.Context) error {
	var (
		profiles []*focus.Profile
		err      error
	)
	if r.store != nil {
		profiles, err = r.store.ListEnabled(ctx)
	}

	var next *table
	switch {
	case err != nil:
		r.logger.Warn("profile source unavailable, installing default routing table", zap.Error(err))
		next = buildTable(defaultKeywords, SourceDefaults, r.now())
		err = fmt.Errorf("refresh routing table: %w", err)
	case len(profiles) == 0:
		r.logger.Info("no enabled profiles, installing default routing table")
		next = buildTable(defaultKeywords, SourceDefaults, r.now())
	default:
		src := make(map[string][]string, len(profiles))
		for _, p := range profiles {
			src[p.ID] = p.Keywords
		}
		next = buildTable(src, SourceStore, r.now())
	}

	r.current.Store(next)
	r.refreshes.Add(1)

	if r.observer != nil {
		r.observer.ObserveRoutingRefresh(string(next.source), len(next.matchers), err)
	}
	r.logger.Debug("routing table refreshed",
		zap.String("source", string(next.source)),
		zap.Int("size", len(next.matchers)),
	)
	return err
}

// Stats 返回当前路由表状态
func (r *Router) Stats() Stats {
	t := r.current.Load()
	ids := make([]string, 0, len(t.matchers))
	for id := range t.matchers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Stats{
		Size:      len(t.matchers),
		BuiltAt:   t.builtAt,
		Source:    t.source,
		Refreshes: r.refreshes.Load(),
		FocusIDs:  ids,
	}
}

// Start 按 interval 周期刷新，直到 ctx 结束。interval <= 0 时直接返回。
func (r *Router) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("routing refresh loop stopped")
				return
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
					r.logger.Warn("periodic routing refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

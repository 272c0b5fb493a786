package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentcouncil/agent/focus"
	"github.com/BaSui01/agentcouncil/llm"
	"github.com/BaSui01/agentcouncil/llm/tokenizer"
	"github.com/BaSui01/agentcouncil/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏊 Agent 池
// =============================================================================

// Config 池级默认值
type Config struct {
	// ContextWindow 每个 Agent 保留的消息条数
	ContextWindow int
	// DefaultModel Agent 未指定模型时使用
	DefaultModel string
	// DefaultMaxTokens Agent 未指定最大输出时使用
	DefaultMaxTokens int
	// PrefetchConcurrency 加载时并发预取 profile 的上限
	PrefetchConcurrency int
}

// DefaultConfig 返回默认池配置
func DefaultConfig() Config {
	return Config{
		ContextWindow:       20,
		DefaultModel:        "gpt-4o-mini",
		DefaultMaxTokens:    1024,
		PrefetchConcurrency: 8,
	}
}

// Options 单次调用的覆盖项，零值表示未设置
type Options struct {
	// Model 固定模型，设置后走 Complete 而非 CompleteWithFallback
	Model string
	// MaxTokens 调用方期望的最大输出
	MaxTokens int
	// ContextTokens 发给模型的上下文 token 上限，0 表示不裁剪
	ContextTokens int
	// WithoutHistory 不把窗口历史拼进请求（仍会写入窗口）
	WithoutHistory bool
}

// Response 单次调用结果
type Response struct {
	AgentID     string        `json:"agent_id"`
	FocusID     string        `json:"focus_id,omitempty"`
	Content     string        `json:"content"`
	Model       string        `json:"model"`
	Attempted   []string      `json:"attempted,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Usage       types.Usage   `json:"usage"`
	Duration    time.Duration `json:"duration"`
}

// Pool 管理全部 Agent，并负责把 focus profile 叠加到每次调用上
type Pool struct {
	registry Registry
	profiles focus.Store
	gateway  llm.Completer
	cfg      Config

	mu     sync.RWMutex
	agents map[string]*Agent

	// profileCache 每个 Agent 已解析的 profile，key 为 Agent ID
	profileMu    sync.Mutex
	profileCache map[string]*focus.Profile

	tracer trace.Tracer
	logger *zap.Logger
}

// NewPool 创建 Agent 池，需调用 Load 从注册表加载
func NewPool(registry Registry, profiles focus.Store, gateway llm.Completer, cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = def.ContextWindow
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = def.DefaultMaxTokens
	}
	if cfg.PrefetchConcurrency <= 0 {
		cfg.PrefetchConcurrency = def.PrefetchConcurrency
	}
	return &Pool{
		registry:     registry,
		profiles:     profiles,
		gateway:      gateway,
		cfg:          cfg,
		agents:       make(map[string]*Agent),
		profileCache: make(map[string]*focus.Profile),
		tracer:       otel.Tracer("agentcouncil/agent"),
		logger:       logger.With(zap.String("component", "agent_pool")),
	}
}

// Load 从注册表加载 Agent 并并发预取 profile。
// 已存在的 Agent 保留其状态与上下文窗口；预取失败只记录日志。
func (p *Pool) Load(ctx context.Context) error {
	defs, err := p.registry.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}

	p.mu.Lock()
	next := make(map[string]*Agent, len(defs))
	for _, d := range defs {
		if existing, ok := p.agents[d.ID]; ok {
			existing.setFocusID(d.FocusID)
			next[d.ID] = existing
			continue
		}
		next[d.ID] = newAgent(d, p.cfg)
	}
	p.agents = next
	p.mu.Unlock()

	p.profileMu.Lock()
	p.profileCache = make(map[string]*focus.Profile)
	p.profileMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.PrefetchConcurrency)
	for _, d := range defs {
		if d.FocusID == "" {
			continue
		}
		id := d.ID
		g.Go(func() error {
			_, _ = p.Profile(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("agent pool loaded", zap.Int("agents", len(defs)))
	return nil
}

// Get 按 ID 获取 Agent
func (p *Pool) Get(id string) (*Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[id]
	return a, ok
}

// Agents 返回全部 Agent 的快照，按 ID 升序
func (p *Pool) Agents() []Info {
	p.mu.RLock()
	out := make([]Info, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, a.Info())
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Profile 返回 Agent 当前关注点的 profile（先查缓存再取源）。
// 未设置关注点时返回 (nil, nil)；取源失败时返回 PROFILE_LOAD 错误。
func (p *Pool) Profile(ctx context.Context, agentID string) (*focus.Profile, error) {
	a, ok := p.Get(agentID)
	if !ok {
		return nil, types.NewAgentNotFoundError(agentID)
	}
	focusID := a.FocusID()
	if focusID == "" || p.profiles == nil {
		return nil, nil
	}

	p.profileMu.Lock()
	cached, hit := p.profileCache[agentID]
	p.profileMu.Unlock()
	if hit && cached.ID == focusID {
		return cached, nil
	}

	prof, err := p.profiles.Get(ctx, focusID)
	if err != nil {
		return nil, types.NewError(types.ErrProfileLoad,
			fmt.Sprintf("load focus profile %q for agent %q", focusID, agentID)).WithCause(err)
	}

	p.profileMu.Lock()
	p.profileCache[agentID] = prof
	p.profileMu.Unlock()
	return prof, nil
}

// InvalidateProfile 丢弃 Agent 的 profile 缓存
func (p *Pool) InvalidateProfile(agentIDs ...string) {
	p.profileMu.Lock()
	defer p.profileMu.Unlock()
	if len(agentIDs) == 0 {
		p.profileCache = make(map[string]*focus.Profile)
		return
	}
	for _, id := range agentIDs {
		delete(p.profileCache, id)
	}
}

// SetFocus 更新 Agent 的关注点，写注册表后刷新本地状态
func (p *Pool) SetFocus(ctx context.Context, agentID, focusID string) error {
	a, ok := p.Get(agentID)
	if !ok {
		return types.NewAgentNotFoundError(agentID)
	}

	if focusID != "" && p.profiles != nil {
		if _, err := p.profiles.Get(ctx, focusID); err != nil {
			if errors.Is(err, focus.ErrProfileNotFound) {
				return types.NewInvalidRequestError(fmt.Sprintf("unknown focus %q", focusID))
			}
			return types.NewError(types.ErrProfileLoad, "verify focus profile").WithCause(err)
		}
	}

	if err := p.registry.UpdateAgentFocus(ctx, agentID, focusID); err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			return types.NewAgentNotFoundError(agentID)
		}
		return fmt.Errorf("update agent focus: %w", err)
	}

	a.setFocusID(focusID)
	p.InvalidateProfile(agentID)
	p.logger.Info("agent focus changed", zap.String("agent_id", agentID), zap.String("focus_id", focusID))
	return nil
}

// MarkOffline 标记 Agent 离线，进行中的调用结束后也保持离线
func (p *Pool) MarkOffline(agentID string) error {
	a, ok := p.Get(agentID)
	if !ok {
		return types.NewAgentNotFoundError(agentID)
	}
	for {
		cur := a.Status()
		if cur == StatusOffline {
			return nil
		}
		if _, ok := a.transition(cur, StatusOffline); ok {
			p.logger.Info("agent marked offline", zap.String("agent_id", agentID))
			return nil
		}
	}
}

// MarkOnline 让离线 Agent 重新上线
func (p *Pool) MarkOnline(agentID string) error {
	a, ok := p.Get(agentID)
	if !ok {
		return types.NewAgentNotFoundError(agentID)
	}
	if _, ok := a.transition(StatusOffline, StatusIdle); ok {
		p.logger.Info("agent back online", zap.String("agent_id", agentID))
	}
	return nil
}

// =============================================================================
// 🎯 Process
// =============================================================================

// Process 以 Agent 的身份调用 LLM。
// Agent 离线或正忙时立即返回 AGENT_UNAVAILABLE，不排队。
func (p *Pool) Process(ctx context.Context, agentID string, messages []types.Message, opts Options) (*Response, error) {
	if p.gateway == nil {
		return nil, ErrGatewayNotSet
	}
	a, ok := p.Get(agentID)
	if !ok {
		return nil, types.NewAgentNotFoundError(agentID)
	}

	if cur, ok := a.tryAcquire(); !ok {
		return nil, types.NewAgentUnavailableError(agentID, cur.String())
	}
	defer a.release()

	ctx, span := p.tracer.Start(ctx, "agent.process", trace.WithAttributes(
		attribute.String("agent.id", agentID),
	))
	defer span.End()

	start := time.Now()

	prof, err := p.Profile(ctx, agentID)
	if err != nil {
		// profile 取不到不影响调用，按无 profile 处理
		p.logger.Warn("focus profile unavailable, proceeding without it",
			zap.String("agent_id", agentID),
			zap.String("focus_id", a.FocusID()),
			zap.String("code", string(types.ErrProfileLoad)),
			zap.Error(err),
		)
		prof = nil
	}
	if prof != nil && !prof.Enabled {
		prof = nil
	}

	eff := focus.Apply(focus.Base{
		SystemPrompt: a.SystemPrompt,
		Temperature:  a.Temperature,
		Model:        a.Model,
		MaxTokens:    a.MaxTokens,
	}, prof, focus.Overrides{Model: opts.Model, MaxTokens: opts.MaxTokens})

	req := &llm.ChatRequest{
		Model:       eff.Model,
		Messages:    p.buildMessages(a, eff, messages, opts),
		Temperature: float32(eff.Temperature),
		MaxTokens:   eff.MaxTokens,
	}

	var resp *llm.ChatResponse
	if opts.Model != "" {
		resp, err = p.gateway.Complete(ctx, opts.Model, req)
	} else {
		resp, err = p.gateway.CompleteWithFallback(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		if ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewAgentTimeoutError(agentID, err)
		}
		return nil, err
	}

	turn := make([]types.Message, 0, len(messages)+1)
	for _, m := range messages {
		if m.Role != types.RoleSystem {
			turn = append(turn, m)
		}
	}
	turn = append(turn, types.NewAssistantMessage(resp.Content))
	a.window.Append(turn...)

	out := &Response{
		AgentID:     agentID,
		Content:     resp.Content,
		Model:       resp.Model,
		Attempted:   resp.Attempted,
		Temperature: eff.Temperature,
		MaxTokens:   eff.MaxTokens,
		Usage:       resp.Usage,
		Duration:    time.Since(start),
	}
	if prof != nil {
		out.FocusID = prof.ID
	}

	span.SetAttributes(attribute.String("llm.model", resp.Model), attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
	p.logger.Debug("agent processed",
		zap.String("agent_id", agentID),
		zap.String("model", resp.Model),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}

// buildMessages 组装请求：system + （可选）窗口历史 + 本轮消息，再按 ContextTokens 裁剪
func (p *Pool) buildMessages(a *Agent, eff focus.Effective, messages []types.Message, opts Options) []types.Message {
	var history []types.Message
	if !opts.WithoutHistory {
		history = a.window.Messages()
	}

	out := make([]types.Message, 0, 1+len(history)+len(messages))
	out = append(out, types.NewSystemMessage(eff.SystemPrompt))
	out = append(out, history...)
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			// 调用方的 system 内容并入本轮，不替换组合后的提示词
			m.Role = types.RoleUser
		}
		out = append(out, m)
	}

	if opts.ContextTokens > 0 {
		out = tokenizer.FitMessages(tokenizer.ForModel(eff.Model), out, opts.ContextTokens)
	}
	return out
}

package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// minCandidates 投票所需的最少候选人
const minCandidates = 2

// AgentPool Swarm 依赖的 Agent 池能力
type AgentPool interface {
	Agents() []agent.Info
	Process(ctx context.Context, agentID string, messages []types.Message, opts agent.Options) (*agent.Response, error)
}

// Scorer 专长评分
type Scorer interface {
	Score(text, focusID string) float64
}

// Observer 接收每轮统计与最终结果，用于指标
type Observer interface {
	ObserveSwarmRound(t RoundTally)
	ObserveSwarmResult(r *Result)
}

// Config Swarm 默认参数
type Config struct {
	ConvergenceThreshold float64
	MaxRounds            int
	PerAgentTimeout      time.Duration
	Pheromone            PheromoneConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ConvergenceThreshold: 0.6,
		MaxRounds:            3,
		PerAgentTimeout:      30 * time.Second,
		Pheromone: PheromoneConfig{
			Reinforce: 0.2,
			Decay:     0.1,
			MinWeight: 0.01,
			MaxWeight: 1.0,
		},
	}
}

// Options 单次求解参数，零值字段使用 Config 默认值
type Options struct {
	// CandidateIDs 候选人；为空时使用全部未离线的 Agent
	CandidateIDs         []string      `json:"candidate_ids,omitempty"`
	ConvergenceThreshold float64       `json:"convergence_threshold,omitempty"`
	MaxRounds            int           `json:"max_rounds,omitempty"`
	PerAgentTimeout      time.Duration `json:"per_agent_timeout,omitempty"`
	// ResetTrail 忽略已保存的信息素，从均匀分布开始
	ResetTrail bool `json:"reset_trail,omitempty"`
}

// Dropped 某一轮未能投票的候选人
type Dropped struct {
	AgentID string          `json:"agent_id"`
	Round   int             `json:"round"`
	Code    types.ErrorCode `json:"code"`
	Reason  string          `json:"reason"`
}

// RoundTally 一轮的投票统计
type RoundTally struct {
	TaskID    string     `json:"task_id"`
	Round     int        `json:"round"`
	Proposals []Proposal `json:"proposals"`
	Clusters  []Cluster  `json:"clusters"`
	Dropped   []Dropped  `json:"dropped,omitempty"`
	// Share 领先簇的权重占比
	Share float64 `json:"share"`
	// Weights 本轮更新后的信息素
	Weights map[string]float64 `json:"weights"`
}

// Result 求解结果
type Result struct {
	TaskID     string             `json:"task_id"`
	Task       string             `json:"task"`
	Candidates []string           `json:"candidates"`
	Answer     string             `json:"answer"`
	Supporters []string           `json:"supporters"`
	Share      float64            `json:"share"`
	Converged  bool               `json:"converged"`
	Rounds     int                `json:"rounds"`
	Threshold  float64            `json:"threshold"`
	Tallies    []RoundTally       `json:"tallies"`
	Weights    map[string]float64 `json:"weights"`
	Dropped    []Dropped          `json:"dropped,omitempty"`
	Usage      types.Usage        `json:"usage"`
	Duration   time.Duration      `json:"duration"`
}

// Swarm 信息素加权投票协调器
type Swarm struct {
	pool     AgentPool
	scorer   Scorer
	cfg      Config
	trails   TrailStore
	observer Observer

	// latest 每个候选人集合最近一次的权重，供观测接口读取
	mu     sync.RWMutex
	latest map[string]map[string]float64

	tracer trace.Tracer
	logger *zap.Logger
}

// Option Swarm 可选项
type Option func(*Swarm)

// WithTrailStore 替换信息素存储（默认进程内）
func WithTrailStore(s TrailStore) Option {
	return func(sw *Swarm) { sw.trails = s }
}

// WithObserver 设置观测钩子
func WithObserver(o Observer) Option {
	return func(sw *Swarm) { sw.observer = o }
}

// New 创建 Swarm
func New(pool AgentPool, scorer Scorer, cfg Config, logger *zap.Logger, opts ...Option) *Swarm {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.ConvergenceThreshold <= 0 || cfg.ConvergenceThreshold > 1 {
		cfg.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.PerAgentTimeout <= 0 {
		cfg.PerAgentTimeout = def.PerAgentTimeout
	}
	if cfg.Pheromone == (PheromoneConfig{}) {
		cfg.Pheromone = def.Pheromone
	}

	sw := &Swarm{
		pool:   pool,
		scorer: scorer,
		cfg:    cfg,
		trails: NewMemoryTrailStore(),
		latest: make(map[string]map[string]float64),
		tracer: otel.Tracer("agentcouncil/swarm"),
		logger: logger.With(zap.String("component", "swarm")),
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// Pheromones 返回每个候选人集合最近一次的信息素权重
func (s *Swarm) Pheromones() map[string]map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]float64, len(s.latest))
	for k, w := range s.latest {
		out[k] = copyWeights(w)
	}
	return out
}

func (s *Swarm) resolve(opts Options) (Options, error) {
	if opts.ConvergenceThreshold < 0 || opts.ConvergenceThreshold > 1 {
		return opts, types.NewInvalidRequestError("convergence_threshold must be in (0, 1]")
	}
	if opts.MaxRounds < 0 || opts.PerAgentTimeout < 0 {
		return opts, types.NewInvalidRequestError("max_rounds and per_agent_timeout must not be negative")
	}
	if opts.ConvergenceThreshold == 0 {
		opts.ConvergenceThreshold = s.cfg.ConvergenceThreshold
	}
	if opts.MaxRounds == 0 {
		opts.MaxRounds = s.cfg.MaxRounds
	}
	if opts.PerAgentTimeout == 0 {
		opts.PerAgentTimeout = s.cfg.PerAgentTimeout
	}
	return opts, nil
}

// candidate 候选人及其固定的专长加成
type candidate struct {
	ID        string
	FocusID   string
	Specialty float64
}

func (s *Swarm) candidates(task string, ids []string) ([]candidate, error) {
	infos := s.pool.Agents()
	byID := make(map[string]agent.Info, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}

	if len(ids) == 0 {
		for _, info := range infos {
			if info.Status != agent.StatusOffline {
				ids = append(ids, info.ID)
			}
		}
	}

	out := make([]candidate, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		info, ok := byID[id]
		if !ok {
			return nil, types.NewAgentNotFoundError(id)
		}
		c := candidate{ID: id, FocusID: info.FocusID}
		if info.FocusID != "" && s.scorer != nil {
			c.Specialty = s.scorer.Score(task, info.FocusID)
		}
		out = append(out, c)
	}
	return out, nil
}

// =============================================================================
// 🐜 Solve
// =============================================================================

// Solve 迭代投票直到收敛或达到 MaxRounds。未收敛不是错误。
func (s *Swarm) Solve(ctx context.Context, task string, opts Options) (*Result, error) {
	if task == "" {
		return nil, types.NewInvalidRequestError("task is required")
	}
	opts, err := s.resolve(opts)
	if err != nil {
		return nil, err
	}

	cands, err := s.candidates(task, opts.CandidateIDs)
	if err != nil {
		return nil, err
	}
	if len(cands) < minCandidates {
		return nil, types.NewInsufficientParticipantsError(len(cands), minCandidates)
	}

	start := time.Now()
	taskID := uuid.NewString()
	logger := s.logger.With(zap.String("task_id", taskID))

	ctx, span := s.tracer.Start(ctx, "swarm.solve", trace.WithAttributes(
		attribute.String("swarm.task_id", taskID),
		attribute.Int("swarm.candidates", len(cands)),
	))
	defer span.End()

	ids := candidateIDs(cands)
	key := TrailKey(ids)
	trail := NewTrail(ids, s.loadTrail(ctx, key, opts.ResetTrail, logger), s.cfg.Pheromone)

	res := &Result{
		TaskID:     taskID,
		Task:       task,
		Candidates: ids,
		Threshold:  opts.ConvergenceThreshold,
	}

	var previous []Cluster
	for round := 1; round <= opts.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			break
		}

		proposals, dropped := s.runRound(ctx, task, round, opts, cands, trail, previous)
		res.Dropped = append(res.Dropped, dropped...)
		if len(proposals) == 0 {
			logger.Warn("no proposals in round", zap.Int("round", round), zap.Int("dropped", len(dropped)))
			break
		}
		for _, p := range proposals {
			res.Usage.Add(p.usage)
		}

		clusters := tally(votes(proposals))
		lead := clusters[0]

		matched := make(map[string]bool, len(lead.Members))
		for _, id := range lead.Members {
			matched[id] = true
		}
		trail.Update(matched)
		weights := trail.Snapshot()
		s.saveTrail(ctx, key, weights, logger)

		t := RoundTally{
			TaskID:    taskID,
			Round:     round,
			Proposals: votes(proposals),
			Clusters:  clusters,
			Dropped:   dropped,
			Share:     lead.Share,
			Weights:   weights,
		}
		res.Tallies = append(res.Tallies, t)
		res.Rounds = round
		res.Answer = lead.Answer
		res.Supporters = lead.Members
		res.Share = lead.Share
		res.Weights = weights
		if s.observer != nil {
			s.observer.ObserveSwarmRound(t)
		}

		logger.Debug("swarm round tallied",
			zap.Int("round", round),
			zap.Int("proposals", len(proposals)),
			zap.Int("clusters", len(clusters)),
			zap.Float64("share", lead.Share),
		)

		if lead.Share >= opts.ConvergenceThreshold {
			res.Converged = true
			break
		}
		previous = clusters
	}

	if res.Rounds == 0 {
		err := types.NewInsufficientParticipantsError(0, 1).
			WithCause(fmt.Errorf("no candidate produced a vote"))
		if ctx.Err() != nil {
			err = types.NewSessionTimeoutError("swarm canceled before any round completed").WithCause(ctx.Err())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(err.Code))
		return nil, err
	}

	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Bool("swarm.converged", res.Converged),
		attribute.Int("swarm.rounds", res.Rounds),
		attribute.Float64("swarm.share", res.Share),
	)
	if s.observer != nil {
		s.observer.ObserveSwarmResult(res)
	}
	logger.Info("swarm finished",
		zap.Bool("converged", res.Converged),
		zap.Int("rounds", res.Rounds),
		zap.Float64("share", res.Share),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// proposal 带用量的内部提案
type proposal struct {
	Proposal
	usage types.Usage
}

func votes(ps []proposal) []Proposal {
	out := make([]Proposal, len(ps))
	for i, p := range ps {
		out[i] = p.Proposal
	}
	return out
}

// runRound 并发收集提案，结果按候选人顺序排列
func (s *Swarm) runRound(ctx context.Context, task string, round int, opts Options, cands []candidate, trail *Trail, previous []Cluster) ([]proposal, []Dropped) {
	msgs := voteMessages(task, round, opts.MaxRounds, previous)

	type outcome struct {
		p   proposal
		err error
	}
	results := make([]outcome, len(cands))

	var wg sync.WaitGroup
	for i, c := range cands {
		wg.Add(1)
		go func(idx int, c candidate) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, opts.PerAgentTimeout)
			defer cancel()

			resp, err := s.pool.Process(cctx, c.ID, msgs, agent.Options{WithoutHistory: true})
			if err != nil {
				if cctx.Err() != nil && !types.IsErrorCode(err, types.ErrAgentTimeout) {
					err = types.NewAgentTimeoutError(c.ID, err)
				}
				results[idx] = outcome{err: err}
				return
			}

			vote, confidence, reasoning := parseProposal(resp.Content)
			norm := normalize(vote)
			if norm == "" {
				results[idx] = outcome{err: types.NewError(types.ErrUpstreamError, "empty vote")}
				return
			}
			pheromone := trail.Weight(c.ID)
			results[idx] = outcome{p: proposal{
				Proposal: Proposal{
					AgentID:    c.ID,
					FocusID:    c.FocusID,
					Vote:       vote,
					Normalized: norm,
					Confidence: confidence,
					Reasoning:  reasoning,
					Pheromone:  pheromone,
					Specialty:  c.Specialty,
					Weight:     voteWeight(pheromone, c.Specialty, confidence),
				},
				usage: resp.Usage,
			}}
		}(i, c)
	}
	wg.Wait()

	var (
		proposals []proposal
		dropped   []Dropped
	)
	for i, r := range results {
		if r.err == nil {
			proposals = append(proposals, r.p)
			continue
		}
		code := types.GetErrorCode(r.err)
		if code == "" {
			code = types.ErrInternalError
		}
		dropped = append(dropped, Dropped{AgentID: cands[i].ID, Round: round, Code: code, Reason: r.err.Error()})
		s.logger.Debug("candidate did not vote",
			zap.String("agent_id", cands[i].ID),
			zap.Int("round", round),
			zap.String("code", string(code)),
		)
	}
	return proposals, dropped
}

// loadTrail 读取失败时从均匀分布开始
func (s *Swarm) loadTrail(ctx context.Context, key string, reset bool, logger *zap.Logger) map[string]float64 {
	if reset {
		return nil
	}
	w, err := s.trails.Load(ctx, key)
	if err != nil {
		logger.Warn("pheromone trail unavailable, starting uniform", zap.Error(err))
		return nil
	}
	return w
}

// saveTrail 保存失败只记录日志，本次调用仍使用内存中的权重
func (s *Swarm) saveTrail(ctx context.Context, key string, weights map[string]float64, logger *zap.Logger) {
	s.mu.Lock()
	s.latest[key] = weights
	s.mu.Unlock()

	if err := s.trails.Save(ctx, key, weights); err != nil {
		logger.Warn("pheromone trail not persisted", zap.Error(err))
	}
}

func candidateIDs(cs []candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

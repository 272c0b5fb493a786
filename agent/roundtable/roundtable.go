package roundtable

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/agent/focus"
	"github.com/BaSui01/agentcouncil/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// minParticipants 圆桌讨论的最少人数
const minParticipants = 2

// AgentPool 圆桌依赖的 Agent 池能力
type AgentPool interface {
	Agents() []agent.Info
	Profile(ctx context.Context, agentID string) (*focus.Profile, error)
	Process(ctx context.Context, agentID string, messages []types.Message, opts agent.Options) (*agent.Response, error)
}

// Scorer 专长评分
type Scorer interface {
	Score(text, focusID string) float64
}

// Config 圆桌默认参数
type Config struct {
	Rounds          int
	MaxAgents       int
	PerAgentTimeout time.Duration
	TotalTimeout    time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Rounds:          2,
		MaxAgents:       5,
		PerAgentTimeout: 45 * time.Second,
		TotalTimeout:    3 * time.Minute,
	}
}

// Options 单次讨论参数，零值字段使用 Config 默认值
type Options struct {
	// AgentIDs 指定参与者；为空时自动选择
	AgentIDs []string `json:"agent_ids,omitempty"`
	Rounds   int      `json:"rounds,omitempty"`
	// SynthesizerID 汇总者，默认第一位参与者
	SynthesizerID   string        `json:"synthesizer_id,omitempty"`
	PerAgentTimeout time.Duration `json:"per_agent_timeout,omitempty"`
	TotalTimeout    time.Duration `json:"total_timeout,omitempty"`
	MaxAgents       int           `json:"max_agents,omitempty"`

	// Observer 仅本次调用的事件接收者
	Observer Observer `json:"-"`
}

// EntryKind 记录条目类型
type EntryKind string

const (
	KindContribution EntryKind = "contribution"
	KindSynthesis    EntryKind = "synthesis"
)

// Entry 讨论记录中的一条发言
type Entry struct {
	Kind     EntryKind     `json:"kind"`
	Round    int           `json:"round"`
	AgentID  string        `json:"agent_id"`
	FocusID  string        `json:"focus_id,omitempty"`
	Content  string        `json:"content"`
	Model    string        `json:"model,omitempty"`
	Usage    types.Usage   `json:"usage"`
	Duration time.Duration `json:"duration"`
}

// Dropped 被排除或中途掉线的参与者。Round 为 0 表示选择阶段或汇总阶段。
type Dropped struct {
	AgentID string          `json:"agent_id"`
	Round   int             `json:"round"`
	Code    types.ErrorCode `json:"code"`
	Reason  string          `json:"reason"`
}

// Result 讨论结果
type Result struct {
	SessionID       string    `json:"session_id"`
	Topic           string    `json:"topic"`
	Participants    []string  `json:"participants"`
	SynthesizerID   string    `json:"synthesizer_id"`
	Rounds          int       `json:"rounds"`
	CompletedRounds int       `json:"completed_rounds"`
	Transcript      []Entry   `json:"transcript"`
	Synthesis       string    `json:"synthesis"`
	Dropped         []Dropped `json:"dropped,omitempty"`
	// Partial 总超时或汇总失败时为 true，Synthesis 为最后完成一轮的记录
	Partial       bool          `json:"partial"`
	ContextTokens int           `json:"context_tokens,omitempty"`
	Usage         types.Usage   `json:"usage"`
	Duration      time.Duration `json:"duration"`
}

// Roundtable 圆桌讨论协调器，可并发执行多个会话
type Roundtable struct {
	pool      AgentPool
	scorer    Scorer
	cfg       Config
	observers observers
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option 圆桌可选项
type Option func(*Roundtable)

// WithObserver 注册接收所有会话事件的 Observer
func WithObserver(o Observer) Option {
	return func(rt *Roundtable) { rt.observers = append(rt.observers, o) }
}

// New 创建圆桌协调器
func New(pool AgentPool, scorer Scorer, cfg Config, logger *zap.Logger, opts ...Option) *Roundtable {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Rounds <= 0 {
		cfg.Rounds = def.Rounds
	}
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = def.MaxAgents
	}
	if cfg.PerAgentTimeout <= 0 {
		cfg.PerAgentTimeout = def.PerAgentTimeout
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = def.TotalTimeout
	}

	rt := &Roundtable{
		pool:   pool,
		scorer: scorer,
		cfg:    cfg,
		tracer: otel.Tracer("agentcouncil/roundtable"),
		logger: logger.With(zap.String("component", "roundtable")),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Roundtable) resolve(opts Options) (Options, error) {
	if opts.Rounds < 0 || opts.MaxAgents < 0 || opts.PerAgentTimeout < 0 || opts.TotalTimeout < 0 {
		return opts, types.NewInvalidRequestError("rounds, max_agents and timeouts must not be negative")
	}
	if opts.Rounds == 0 {
		opts.Rounds = rt.cfg.Rounds
	}
	if opts.MaxAgents == 0 {
		opts.MaxAgents = rt.cfg.MaxAgents
	}
	if opts.PerAgentTimeout == 0 {
		opts.PerAgentTimeout = rt.cfg.PerAgentTimeout
	}
	if opts.TotalTimeout == 0 {
		opts.TotalTimeout = rt.cfg.TotalTimeout
	}
	return opts, nil
}

// session 单次 Discuss 的运行时状态
type session struct {
	id        string
	topic     string
	opts      Options
	state     State
	observers observers
	logger    *zap.Logger
	start     time.Time
}

func (s *session) setState(st State) {
	s.state = st
	s.logger.Debug("roundtable state", zap.String("state", string(st)))
}

func (s *session) emit(e Event) {
	e.SessionID = s.id
	if e.State == "" {
		e.State = s.state
	}
	s.observers.emit(e)
}

// =============================================================================
// 🗣️ Discuss
// =============================================================================

// Discuss 对 topic 执行一次圆桌讨论。
// 参与者不足、会话超时且无完成轮次时返回错误；其余降级体现在 Result 中。
func (rt *Roundtable) Discuss(ctx context.Context, topic string, opts Options) (*Result, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, types.NewInvalidRequestError("topic is required")
	}
	opts, err := rt.resolve(opts)
	if err != nil {
		return nil, err
	}

	s := &session{
		id:        uuid.NewString(),
		topic:     topic,
		opts:      opts,
		state:     StateSelecting,
		observers: append(append(observers{}, rt.observers...), opts.Observer),
		start:     time.Now(),
	}
	s.logger = rt.logger.With(zap.String("session_id", s.id))

	ctx, span := rt.tracer.Start(ctx, "roundtable.discuss", trace.WithAttributes(
		attribute.String("roundtable.session_id", s.id),
		attribute.Int("roundtable.rounds", opts.Rounds),
	))
	defer span.End()

	res, err := rt.discuss(ctx, s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(types.GetErrorCode(err)))
		s.setState(StateFailed)
		s.emit(Event{Type: EventSessionFinished, Code: string(types.GetErrorCode(err)), Duration: time.Since(s.start)})
		s.logger.Warn("roundtable failed", zap.Error(err))
		return nil, err
	}

	res.Duration = time.Since(s.start)
	span.SetAttributes(
		attribute.Int("roundtable.completed_rounds", res.CompletedRounds),
		attribute.Bool("roundtable.partial", res.Partial),
	)
	s.setState(StateDone)
	s.emit(Event{Type: EventSessionFinished, Partial: res.Partial, Duration: res.Duration})
	s.logger.Info("roundtable completed",
		zap.Strings("participants", res.Participants),
		zap.Int("completed_rounds", res.CompletedRounds),
		zap.Int("dropped", len(res.Dropped)),
		zap.Bool("partial", res.Partial),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (rt *Roundtable) discuss(ctx context.Context, s *session) (*Result, error) {
	opts := s.opts

	ps, dropped, err := rt.selectParticipants(ctx, s.topic, opts.AgentIDs, opts.MaxAgents)
	if err != nil {
		return nil, err
	}
	if len(ps) < minParticipants {
		return nil, types.NewInsufficientParticipantsError(len(ps), minParticipants)
	}

	synthesizer := opts.SynthesizerID
	if synthesizer == "" {
		synthesizer = ps[0].ID
	} else if !rt.known(synthesizer) {
		return nil, types.NewAgentNotFoundError(synthesizer)
	}

	res := &Result{
		SessionID:     s.id,
		Topic:         s.topic,
		Participants:  participantIDs(ps),
		SynthesizerID: synthesizer,
		Rounds:        opts.Rounds,
		Dropped:       dropped,
		ContextTokens: contextBudget(ps),
	}
	s.emit(Event{Type: EventSessionStarted, Participants: res.Participants, AgentID: synthesizer})

	sctx, cancel := context.WithTimeout(ctx, opts.TotalTimeout)
	defer cancel()

	active := ps
	var lastRound []Entry
	for round := 1; round <= opts.Rounds; round++ {
		s.setState(StateRound)
		s.emit(Event{Type: EventRoundStarted, Round: round, Participants: participantIDs(active)})

		entries, drops := rt.runRound(sctx, s, round, active, res.Transcript)
		if sctx.Err() != nil {
			return rt.expire(s, res, lastRound)
		}

		res.Dropped = append(res.Dropped, drops...)
		res.Transcript = append(res.Transcript, entries...)
		for _, e := range entries {
			res.Usage.Add(e.Usage)
		}
		res.CompletedRounds = round
		lastRound = entries
		active = survivors(active, drops)
		s.emit(Event{Type: EventRoundCompleted, Round: round, Participants: participantIDs(active)})

		if len(active) < minParticipants {
			return nil, types.NewInsufficientParticipantsError(len(active), minParticipants).
				WithCause(fmt.Errorf("round %d: %d participants dropped", round, len(drops)))
		}
	}

	s.setState(StateSynthesizing)
	entry, err := rt.synthesize(sctx, s, synthesizer, res.Transcript)
	if err != nil {
		if sctx.Err() != nil {
			return rt.expire(s, res, lastRound)
		}
		// 汇总失败不致命：以最后一轮的记录作为部分结论
		code := errorCode(err)
		res.Dropped = append(res.Dropped, Dropped{AgentID: synthesizer, Code: code, Reason: err.Error()})
		s.emit(Event{Type: EventAgentDropped, AgentID: synthesizer, Code: string(code)})
		res.Partial = true
		res.Synthesis = renderTranscript(lastRound)
		return res, nil
	}

	res.Transcript = append(res.Transcript, entry)
	res.Usage.Add(entry.Usage)
	res.Synthesis = entry.Content
	s.emit(Event{Type: EventSynthesis, AgentID: synthesizer, Content: entry.Content})
	return res, nil
}

// expire 总超时：至少完成一轮时返回部分结果，否则 SESSION_TIMEOUT
func (rt *Roundtable) expire(s *session, res *Result, lastRound []Entry) (*Result, error) {
	if res.CompletedRounds == 0 {
		return nil, types.NewSessionTimeoutError(
			fmt.Sprintf("roundtable exceeded total timeout %s before completing a round", s.opts.TotalTimeout))
	}
	s.logger.Warn("roundtable total timeout, returning partial result",
		zap.Int("completed_rounds", res.CompletedRounds),
	)
	res.Partial = true
	res.Synthesis = renderTranscript(lastRound)
	return res, nil
}

// outcome 一位参与者在一轮中的结果
type outcome struct {
	entry Entry
	err   error
}

// runRound 并发执行一轮；全部返回或各自超时后才结束。
// 每个调用有独立的超时 context，互不取消。
func (rt *Roundtable) runRound(ctx context.Context, s *session, round int, active []participant, transcript []Entry) ([]Entry, []Dropped) {
	names := participantIDs(active)
	msgs := roundMessages(s.topic, round, s.opts.Rounds, names, transcript)
	budget := contextBudget(active)

	results := make([]outcome, len(active))
	var wg sync.WaitGroup
	for i, p := range active {
		wg.Add(1)
		go func(idx int, p participant) {
			defer wg.Done()

			entry, err := rt.call(ctx, p.ID, msgs, s.opts.PerAgentTimeout, agent.Options{
				ContextTokens:  budget,
				WithoutHistory: true,
			})
			if err != nil {
				results[idx] = outcome{err: err}
				return
			}
			entry.Kind = KindContribution
			entry.Round = round
			results[idx] = outcome{entry: entry}
			s.emit(Event{Type: EventEntry, Round: round, AgentID: p.ID, Content: entry.Content, Duration: entry.Duration})
		}(i, p)
	}
	wg.Wait()

	var (
		entries []Entry
		dropped []Dropped
	)
	for i, r := range results {
		if r.err == nil {
			entries = append(entries, r.entry)
			continue
		}
		id := active[i].ID
		code := errorCode(r.err)
		dropped = append(dropped, Dropped{AgentID: id, Round: round, Code: code, Reason: r.err.Error()})
		if ctx.Err() == nil {
			s.emit(Event{Type: EventAgentDropped, Round: round, AgentID: id, Code: string(code)})
			s.logger.Warn("participant dropped",
				zap.Int("round", round),
				zap.String("agent_id", id),
				zap.String("code", string(code)),
				zap.Error(r.err),
			)
		}
	}
	return entries, dropped
}

func (rt *Roundtable) synthesize(ctx context.Context, s *session, synthesizer string, transcript []Entry) (Entry, error) {
	entry, err := rt.call(ctx, synthesizer, synthesisMessages(s.topic, transcript), s.opts.PerAgentTimeout,
		agent.Options{WithoutHistory: true})
	if err != nil {
		return Entry{}, err
	}
	entry.Kind = KindSynthesis
	return entry, nil
}

// call 在独立超时下调用一位 Agent
func (rt *Roundtable) call(ctx context.Context, agentID string, msgs []types.Message, timeout time.Duration, opts agent.Options) (Entry, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := rt.pool.Process(cctx, agentID, msgs, opts)
	if err != nil {
		if cctx.Err() != nil && !types.IsErrorCode(err, types.ErrAgentTimeout) {
			err = types.NewAgentTimeoutError(agentID, err)
		}
		return Entry{}, err
	}
	return Entry{
		AgentID:  agentID,
		FocusID:  resp.FocusID,
		Content:  resp.Content,
		Model:    resp.Model,
		Usage:    resp.Usage,
		Duration: resp.Duration,
	}, nil
}

func (rt *Roundtable) known(agentID string) bool {
	for _, info := range rt.pool.Agents() {
		if info.ID == agentID {
			return true
		}
	}
	return false
}

func errorCode(err error) types.ErrorCode {
	if code := types.GetErrorCode(err); code != "" {
		return code
	}
	return types.ErrInternalError
}

func participantIDs(ps []participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

// survivors 去掉本轮掉线的参与者，保持原顺序
func survivors(active []participant, drops []Dropped) []participant {
	if len(drops) == 0 {
		return active
	}
	gone := make(map[string]bool, len(drops))
	for _, d := range drops {
		gone[d.AgentID] = true
	}
	out := make([]participant, 0, len(active)-len(drops))
	for _, p := range active {
		if !gone[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

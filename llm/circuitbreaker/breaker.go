package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentcouncil/types"
	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中，等待退避截止时间）
	StateOpen
	// StateHalfOpen 半开状态（仅放行一次试探调用）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText 让 State 在 JSON 中以字符串呈现
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config 熔断器配置
type Config struct {
	// Name 熔断器名称（通常为模型 ID）
	Name string

	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// CallTimeout 单次调用超时时间，0 表示不额外限制
	CallTimeout time.Duration

	// ResetTimeout 首次熔断后的退避时长（Open -> HalfOpen）
	ResetTimeout time.Duration

	// MaxResetTimeout 连续熔断时退避时长按 2 倍增长的上限
	MaxResetTimeout time.Duration

	// OnStateChange 状态变更回调
	OnStateChange func(name string, from State, to State)

	// Now 时钟，测试可注入
	Now func() time.Time
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:       3,
		CallTimeout:     0,
		ResetTimeout:    30 * time.Second,
		MaxResetTimeout: 5 * time.Minute,
	}
}

// Snapshot 熔断器状态快照，用于观测接口
type Snapshot struct {
	Name                string    `json:"model"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	OpenUntil           time.Time `json:"open_until,omitempty"`
	Trips               int       `json:"trips"`
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Call 执行调用，如果熔断器打开则返回错误
	Call(ctx context.Context, fn func(ctx context.Context) error) error

	// CallWithResult 执行调用并返回结果
	CallWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error)

	// Allow 判断当前是否会放行调用（不改变状态）
	Allow() bool

	// State 获取当前状态
	State() State

	// Snapshot 获取完整状态快照
	Snapshot() Snapshot

	// Reset 重置熔断器（手动恢复）
	Reset()
}

// breaker 熔断器实现
type breaker struct {
	config *Config
	logger *zap.Logger

	mu              sync.Mutex
	state           State
	failureCount    int       // 连续失败次数
	lastFailureTime time.Time // 最后失败时间
	openUntil       time.Time // 退避截止时间
	trips           int       // 未恢复前的连续熔断次数
	trialInFlight   bool      // 半开状态下是否已有试探调用
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if config.Threshold <= 0 {
		config.Threshold = 3
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.MaxResetTimeout < config.ResetTimeout {
		config.MaxResetTimeout = config.ResetTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &breaker{
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("model", config.Name)),
		state:  StateClosed,
	}
}

// Call 实现 CircuitBreaker.Call
func (b *breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.CallWithResult(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// CallWithResult 实现 CircuitBreaker.CallWithResult
// 核心逻辑：状态机转换 + 失败计数 + 超时控制
func (b *breaker) CallWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	trial, err := b.beforeCall()
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if b.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.config.CallTimeout)
		defer cancel()
	}

	result, err := fn(callCtx)

	switch {
	case err == nil:
		b.afterCall(outcomeSuccess, trial)
	case isClientError(err):
		// 客户端错误（如无效请求）既不计失败也不证明模型已恢复
		b.afterCall(outcomeNeutral, trial)
	case ctx.Err() != nil:
		// 调用方放弃（如圆桌单 Agent 超时），不归咎于模型
		b.afterCall(outcomeNeutral, trial)
	default:
		b.afterCall(outcomeFailure, trial)
	}

	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("call timed out after %s: %w", b.config.CallTimeout, err)
		}
		return nil, err
	}
	return result, nil
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	// outcomeNeutral 只释放半开试探名额，不改变计数与状态
	outcomeNeutral
)

// isClientError 判断错误是否为客户端错误（不应计入熔断失败）。
func isClientError(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrInvalidRequest, types.ErrAuthentication,
		types.ErrQuotaExceeded, types.ErrContentFiltered:
		return true
	}
	return false
}

// beforeCall 调用前检查，返回本次调用是否为半开试探
func (b *breaker) beforeCall() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil

	case StateOpen:
		// 退避截止后进入半开状态，放行唯一一次试探
		if !b.config.Now().Before(b.openUntil) {
			b.setState(StateHalfOpen)
			b.trialInFlight = true
			b.logger.Info("circuit half-open, admitting trial call")
			return true, nil
		}
		return false, ErrCircuitOpen

	case StateHalfOpen:
		if b.trialInFlight {
			return false, ErrTrialInFlight
		}
		b.trialInFlight = true
		return true, nil

	default:
		return false, fmt.Errorf("unknown circuit state: %v", b.state)
	}
}

// afterCall 调用后处理
func (b *breaker) afterCall(o outcome, trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
	}

	switch o {
	case outcomeSuccess:
		b.onSuccess()
	case outcomeFailure:
		b.onFailure()
	}
}

// onSuccess 处理成功调用
func (b *breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0

	case StateHalfOpen:
		b.logger.Info("circuit recovered",
			zap.Int("trips", b.trips),
		)
		b.setState(StateClosed)
		b.failureCount = 0
		b.trips = 0
		b.openUntil = time.Time{}
	}
}

// onFailure 处理失败调用
func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = b.config.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.trip()
		}

	case StateHalfOpen:
		// 试探失败，重新打开并加倍退避
		b.trip()
	}
}

// trip 打开熔断器并计算退避截止时间：ResetTimeout × 2^(trips-1)，不超过 MaxResetTimeout
func (b *breaker) trip() {
	b.trips++
	backoff := b.config.ResetTimeout
	for i := 1; i < b.trips && backoff < b.config.MaxResetTimeout; i++ {
		backoff *= 2
	}
	if backoff > b.config.MaxResetTimeout {
		backoff = b.config.MaxResetTimeout
	}
	b.openUntil = b.lastFailureTime.Add(backoff)

	b.logger.Warn("circuit opened",
		zap.Int("failure_count", b.failureCount),
		zap.Int("threshold", b.config.Threshold),
		zap.Duration("backoff", backoff),
	)
	b.setState(StateOpen)
}

// setState 设置状态并触发回调
func (b *breaker) setState(newState State) {
	oldState := b.state
	if oldState == newState {
		return
	}
	b.state = newState

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(b.config.Name, oldState, newState)
	}
}

// Allow 实现 CircuitBreaker.Allow
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		return !b.config.Now().Before(b.openUntil)
	case StateHalfOpen:
		return !b.trialInFlight
	}
	return false
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot 实现 CircuitBreaker.Snapshot
func (b *breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:                b.config.Name,
		State:               b.state,
		ConsecutiveFailures: b.failureCount,
		LastFailure:         b.lastFailureTime,
		OpenUntil:           b.openUntil,
		Trips:               b.trips,
	}
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.setState(StateClosed)
	b.failureCount = 0
	b.trips = 0
	b.trialInFlight = false
	b.openUntil = time.Time{}

	b.logger.Info("circuit reset",
		zap.String("from_state", oldState.String()),
	)
}

// 错误定义
var (
	ErrCircuitOpen   = types.NewError(types.ErrCircuitOpen, "circuit breaker is open")
	ErrTrialInFlight = types.NewError(types.ErrCircuitOpen, "half-open trial call already in flight")
)

// IsOpen 判断错误是否来自熔断拒绝
func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTrialInFlight)
}

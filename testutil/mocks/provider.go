// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按请求生成响应、延迟与错误注入场景。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentcouncil/llm"
	"github.com/BaSui01/agentcouncil/types"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	name     string
	response string
	err      error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	responseFunc   func(req *llm.ChatRequest) string

	// 行为控制
	delay     time.Duration // 模拟延迟（尊重 ctx 取消）
	failFirst int           // 前 N 次调用失败
	failAfter int           // 在第 N 次调用后失败
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// ErrMockUpstream 注入故障时返回的可重试上游错误
var ErrMockUpstream = types.NewError(types.ErrUpstreamError, "mock upstream failure").WithRetryable(true)

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:             "mock",
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithResponseFunc 按请求内容生成响应
func (m *MockProvider) WithResponseFunc(fn func(req *llm.ChatRequest) string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseFunc = fn
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailFirst 前 N 次调用返回 ErrMockUpstream
func (m *MockProvider) WithFailFirst(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFirst = n
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	delay := m.delay
	fn := m.completionFunc
	respFn := m.responseFunc
	content := m.response
	presetErr := m.err
	failFirst, failAfter := m.failFirst, m.failAfter
	prompt, completion := m.promptTokens, m.completionTokens
	name := m.name
	m.mu.Unlock()

	// 延迟期间不持锁，保证并发调用互不阻塞
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var (
		resp *llm.ChatResponse
		err  error
	)
	switch {
	case n <= failFirst:
		err = ErrMockUpstream
	case failAfter > 0 && n > failAfter:
		err = fmt.Errorf("mock provider: configured to fail after %d calls: %w", failAfter, ErrMockUpstream)
	case presetErr != nil:
		err = presetErr
	case fn != nil:
		resp, err = fn(ctx, req)
	default:
		if respFn != nil {
			content = respFn(req)
		}
		resp = &llm.ChatResponse{
			ID:           fmt.Sprintf("mock-%d", n),
			Provider:     name,
			Model:        req.Model,
			Content:      content,
			FinishReason: "stop",
			Usage: types.Usage{
				PromptTokens:     prompt,
				CompletionTokens: completion,
				TotalTokens:      prompt + completion,
			},
			CreatedAt: time.Now(),
		}
	}

	m.record(req, resp, err)
	return resp, err
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: *req, Response: resp, Error: err})
}

// --- 调用记录查询 ---

// Calls 返回调用记录副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastRequest 返回最后一次请求
func (m *MockProvider) LastRequest() (llm.ChatRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return llm.ChatRequest{}, false
	}
	return m.calls[len(m.calls)-1].Request, true
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}

package agent

import (
	"sync"
	"sync/atomic"
)

// Definition 注册表中的 Agent 定义
type Definition struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	SystemPrompt string  `json:"system_prompt" yaml:"system_prompt"`
	FocusID      string  `json:"focus_id,omitempty" yaml:"focus_id"`
	Model        string  `json:"model,omitempty" yaml:"model"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	MaxTokens    int     `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Offline      bool    `json:"offline,omitempty" yaml:"offline"`
}

// Agent 池中的一个 Agent。
// 基础字段在加载后只读；状态、关注点与上下文窗口可并发访问。
type Agent struct {
	ID           string
	Name         string
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int

	focusMu sync.RWMutex
	focusID string

	status atomic.Int32
	window *ContextWindow
}

func newAgent(def Definition, cfg Config) *Agent {
	a := &Agent{
		ID:           def.ID,
		Name:         def.Name,
		SystemPrompt: def.SystemPrompt,
		Model:        def.Model,
		Temperature:  def.Temperature,
		MaxTokens:    def.MaxTokens,
		focusID:      def.FocusID,
		window:       NewContextWindow(cfg.ContextWindow),
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.Model == "" {
		a.Model = cfg.DefaultModel
	}
	if a.MaxTokens <= 0 {
		a.MaxTokens = cfg.DefaultMaxTokens
	}
	if def.Offline {
		a.status.Store(int32(StatusOffline))
	}
	return a
}

// FocusID 当前关注点
func (a *Agent) FocusID() string {
	a.focusMu.RLock()
	defer a.focusMu.RUnlock()
	return a.focusID
}

func (a *Agent) setFocusID(id string) {
	a.focusMu.Lock()
	defer a.focusMu.Unlock()
	a.focusID = id
}

// Status 当前状态
func (a *Agent) Status() Status {
	return Status(a.status.Load())
}

// Window 上下文窗口
func (a *Agent) Window() *ContextWindow {
	return a.window
}

// transition 以 CAS 执行状态转换，失败时返回当前状态
func (a *Agent) transition(from, to Status) (Status, bool) {
	if !CanTransition(from, to) {
		return a.Status(), false
	}
	if a.status.CompareAndSwap(int32(from), int32(to)) {
		return to, true
	}
	return a.Status(), false
}

// tryAcquire idle → busy；不排队
func (a *Agent) tryAcquire() (Status, bool) {
	return a.transition(StatusIdle, StatusBusy)
}

// release busy → idle；调用期间被标记离线时保持离线
func (a *Agent) release() {
	a.transition(StatusBusy, StatusIdle)
}

// Info Agent 的只读快照
type Info struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FocusID    string `json:"focus_id,omitempty"`
	Model      string `json:"model"`
	Status     Status `json:"status"`
	ContextLen int    `json:"context_len"`
}

// Info 返回快照
func (a *Agent) Info() Info {
	return Info{
		ID:         a.ID,
		Name:       a.Name,
		FocusID:    a.FocusID(),
		Model:      a.Model,
		Status:     a.Status(),
		ContextLen: a.window.Len(),
	}
}

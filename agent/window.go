package agent

import (
	"sync"

	"github.com/BaSui01/agentcouncil/types"
)

// ContextWindow 固定容量的对话窗口，超出容量时丢弃最旧的消息
type ContextWindow struct {
	mu       sync.RWMutex
	capacity int
	msgs     []types.Message
}

// NewContextWindow 创建窗口，capacity <= 0 时退化为 1
func NewContextWindow(capacity int) *ContextWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &ContextWindow{capacity: capacity}
}

// Append 追加消息并裁剪到容量
func (w *ContextWindow) Append(msgs ...types.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.msgs = append(w.msgs, msgs...)
	if over := len(w.msgs) - w.capacity; over > 0 {
		kept := make([]types.Message, w.capacity)
		copy(kept, w.msgs[over:])
		w.msgs = kept
	}
}

// Messages 返回窗口内消息的副本（旧 → 新）
func (w *ContextWindow) Messages() []types.Message {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]types.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

// Len 当前消息数
func (w *ContextWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.msgs)
}

// Capacity 窗口容量
func (w *ContextWindow) Capacity() int {
	return w.capacity
}

// Reset 清空窗口
func (w *ContextWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = nil
}

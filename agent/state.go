package agent

import (
	"fmt"
	"strings"
)

// Status Agent 运行状态
type Status int32

const (
	StatusIdle    Status = iota // 空闲，可接受调用
	StatusBusy                  // 调用中，拒绝并发调用（不排队）
	StatusOffline               // 离线，不参与任何调用
)

// String 返回状态名称
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusOffline:
		return "offline"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus 解析状态名称
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "idle":
		return StatusIdle, nil
	case "busy":
		return StatusBusy, nil
	case "offline":
		return StatusOffline, nil
	default:
		return 0, fmt.Errorf("unknown agent status %q", v)
	}
}

// validTransitions 定义合法的状态转换
var validTransitions = map[Status][]Status{
	StatusIdle:    {StatusBusy, StatusOffline},
	StatusBusy:    {StatusIdle, StatusOffline},
	StatusOffline: {StatusIdle}, // 重新上线
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}
